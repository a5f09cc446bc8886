// Package debounce coalesces bursts of image events per user so a
// multi-image send is processed as one batch.
package debounce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pochenphys/Group-Project/internal/line"
)

// DefaultWindow is how long the aggregator waits for the next image
// before releasing a batch.
const DefaultWindow = 1500 * time.Millisecond

// ReleaseFunc receives a drained batch on its own goroutine.
type ReleaseFunc func(userID string, events []line.Event)

type pending struct {
	events []line.Event
	timer  *time.Timer
	seq    uint64
}

// Aggregator buffers image events per user. Each new image re-arms a
// single-shot timer; a batch whose declared image-set total is complete
// fires immediately. Every buffered batch releases exactly once.
type Aggregator struct {
	window  time.Duration
	release ReleaseFunc

	sem *semaphore.Weighted

	mu      sync.Mutex
	users   map[string]*pending
	seq     uint64
	stopped bool
}

// New creates an Aggregator. maxConcurrent bounds how many release
// callbacks run at once.
func New(window time.Duration, maxConcurrent int64, release ReleaseFunc) *Aggregator {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Aggregator{
		window:  window,
		release: release,
		sem:     semaphore.NewWeighted(maxConcurrent),
		users:   make(map[string]*pending),
	}
}

// Offer adds one image event to the user's batch. The declared-total
// check fires the batch inline when the last image of an image set
// arrives; otherwise the timer restarts from this event.
func (a *Aggregator) Offer(ev line.Event) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}

	userID := ev.UserID
	p, ok := a.users[userID]
	if !ok {
		a.seq++
		p = &pending{seq: a.seq}
		a.users[userID] = p
	}
	p.events = append(p.events, ev)

	if ev.ImageSet != nil && ev.ImageSet.Total > 0 && len(p.events) >= ev.ImageSet.Total {
		a.fireLocked(userID, p)
		a.mu.Unlock()
		return
	}

	if p.timer != nil {
		p.timer.Stop()
	}
	seq := p.seq
	p.timer = time.AfterFunc(a.window, func() {
		a.expire(userID, seq)
	})
	a.mu.Unlock()
}

// expire fires a batch from its timer. The sequence check makes a stale
// timer whose batch already fired a no-op, so no batch releases twice.
func (a *Aggregator) expire(userID string, seq uint64) {
	a.mu.Lock()
	p, ok := a.users[userID]
	if !ok || p.seq != seq {
		a.mu.Unlock()
		return
	}
	a.fireLocked(userID, p)
	a.mu.Unlock()
}

func (a *Aggregator) fireLocked(userID string, p *pending) {
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(a.users, userID)
	events := p.events

	slog.Debug("releasing image batch", "user", userID, "images", len(events))
	go func() {
		if err := a.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer a.sem.Release(1)
		a.release(userID, events)
	}()
}

// Flush fires every buffered batch immediately.
func (a *Aggregator) Flush() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for userID, p := range a.users {
		a.fireLocked(userID, p)
	}
}

// Stop flushes pending batches and rejects further offers.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	a.stopped = true
	for userID, p := range a.users {
		a.fireLocked(userID, p)
	}
	a.mu.Unlock()
}
