package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

type entry[V any] struct {
	value    V
	storedAt time.Time
}

type shard[V any] struct {
	mu    sync.Mutex
	items map[string]entry[V]
}

// TTL is a sharded in-memory map whose entries silently vanish after a
// fixed lifetime. Expiry is lazy: a stale entry is dropped on the read
// that finds it, or by Sweep. Absence and expiry are indistinguishable
// on purpose.
type TTL[V any] struct {
	ttl    time.Duration
	shards [shardCount]*shard[V]
}

// NewTTL creates a store whose entries live for ttl after their last Set.
func NewTTL[V any](ttl time.Duration) *TTL[V] {
	s := &TTL[V]{ttl: ttl}
	for i := range s.shards {
		s.shards[i] = &shard[V]{items: make(map[string]entry[V])}
	}
	return s
}

func (s *TTL[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func (s *TTL[V]) expired(e entry[V], now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.storedAt) >= s.ttl
}

// Get returns the live value for key. An expired entry reads as a miss
// and is reclaimed in passing.
func (s *TTL[V]) Get(key string) (V, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if s.expired(e, time.Now()) {
		delete(sh.items, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key and restarts its lifetime.
func (s *TTL[V]) Set(key string, value V) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.items[key] = entry[V]{value: value, storedAt: time.Now()}
	sh.mu.Unlock()
}

// Delete removes key if present.
func (s *TTL[V]) Delete(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.items, key)
	sh.mu.Unlock()
}

// Update applies fn to the current live value (zero value on miss) under
// the shard lock and stores the result, unless fn reports false. The
// read-modify-write is atomic with respect to the key's shard.
func (s *TTL[V]) Update(key string, fn func(cur V, ok bool) (V, bool)) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.items[key]
	if ok && s.expired(e, time.Now()) {
		delete(sh.items, key)
		ok = false
	}
	var cur V
	if ok {
		cur = e.value
	}
	next, keep := fn(cur, ok)
	if !keep {
		delete(sh.items, key)
		return
	}
	sh.items[key] = entry[V]{value: next, storedAt: time.Now()}
}

// Sweep drops every expired entry and returns how many were reclaimed.
func (s *TTL[V]) Sweep() int {
	now := time.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.items {
			if s.expired(e, now) {
				delete(sh.items, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len reports the number of entries, live or not yet reclaimed.
func (s *TTL[V]) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.items)
		sh.mu.Unlock()
	}
	return n
}

// StartSweeper reclaims expired entries every interval until ctx ends.
func (s *TTL[V]) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}
