package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pochenphys/Group-Project/internal/line"
	"github.com/pochenphys/Group-Project/internal/store"
)

// DefaultTimeout bounds one backend call; generation-heavy backends are
// slow, so this is generous.
const DefaultTimeout = 110 * time.Second

// Result is the merged outcome of a fan-out. Messages are appended in
// completion order; Replies keeps each successful backend's full reply
// for side-channel harvesting.
type Result struct {
	Messages []line.Message
	Replies  []*Reply
	Failed   int
}

// Dispatcher runs events against backend sets in parallel. A failed or
// timed-out backend contributes nothing; the others still answer.
type Dispatcher struct {
	timeout       time.Duration
	conversations *store.TTL[string]
}

// NewDispatcher creates a Dispatcher. conversations carries per-user,
// per-backend conversation IDs across turns so backends keep context.
func NewDispatcher(timeout time.Duration, conversations *store.TTL[string]) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{timeout: timeout, conversations: conversations}
}

func convKey(backend, userID string) string { return backend + "|" + userID }

// Dispatch fans one event out to every target backend and merges what
// comes back. The merge order is completion order on purpose: fast
// answers should not wait on slow ones to be positioned.
func (d *Dispatcher) Dispatch(ctx context.Context, targets []*Backend, ev line.Event, images [][]byte) Result {
	var (
		mu  sync.Mutex
		res Result
	)
	if len(targets) == 0 {
		return res
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range targets {
		b := b
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, d.timeout)
			defer cancel()

			started := time.Now()
			conv, _ := d.conversations.Get(convKey(b.Name, ev.UserID))
			reply, err := b.Process(cctx, conv, ev, images)
			elapsed := time.Since(started)

			if err != nil {
				slog.Warn("backend call failed", "backend", b.Name, "user", ev.UserID, "elapsed", elapsed, "error", err)
				mu.Lock()
				res.Failed++
				mu.Unlock()
				// Isolation: one backend's failure never aborts the others.
				return nil
			}

			slog.Info("backend answered", "backend", b.Name, "user", ev.UserID, "messages", len(reply.Messages), "elapsed", elapsed)
			if reply.ConversationID != "" {
				d.conversations.Set(convKey(b.Name, ev.UserID), reply.ConversationID)
			}

			mu.Lock()
			res.Messages = append(res.Messages, reply.Messages...)
			res.Replies = append(res.Replies, reply)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return res
}
