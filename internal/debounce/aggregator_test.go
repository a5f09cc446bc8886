package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/pochenphys/Group-Project/internal/line"
)

type recorder struct {
	mu      sync.Mutex
	batches map[string][][]line.Event
	done    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{batches: make(map[string][][]line.Event), done: make(chan struct{}, 16)}
}

func (r *recorder) release(userID string, events []line.Event) {
	r.mu.Lock()
	r.batches[userID] = append(r.batches[userID], events)
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *recorder) batchesFor(userID string) [][]line.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.batches[userID]
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for release")
	}
}

func imageEvent(userID, msgID string) line.Event {
	return line.Event{UserID: userID, Kind: line.EventImage, MessageID: msgID}
}

func setEvent(userID, msgID, setID string, index, total int) line.Event {
	ev := imageEvent(userID, msgID)
	ev.ImageSet = &line.ImageSet{ID: setID, Index: index, Total: total}
	return ev
}

func TestBurstCoalescesIntoOneBatch(t *testing.T) {
	rec := newRecorder()
	a := New(50*time.Millisecond, 2, rec.release)

	a.Offer(imageEvent("U1", "m1"))
	a.Offer(imageEvent("U1", "m2"))
	a.Offer(imageEvent("U1", "m3"))
	rec.wait(t)

	batches := rec.batchesFor("U1")
	if len(batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(batches))
	}
	if len(batches[0]) != 3 {
		t.Errorf("batch size = %d, want 3", len(batches[0]))
	}
	if batches[0][0].MessageID != "m1" || batches[0][2].MessageID != "m3" {
		t.Errorf("order lost: %+v", batches[0])
	}
}

func TestSpacedImagesReleaseSeparately(t *testing.T) {
	rec := newRecorder()
	a := New(30*time.Millisecond, 2, rec.release)

	a.Offer(imageEvent("U1", "m1"))
	rec.wait(t)
	a.Offer(imageEvent("U1", "m2"))
	rec.wait(t)

	batches := rec.batchesFor("U1")
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	for i, b := range batches {
		if len(b) != 1 {
			t.Errorf("batch[%d] size = %d, want 1", i, len(b))
		}
	}
}

func TestDeclaredTotalFiresImmediately(t *testing.T) {
	rec := newRecorder()
	// Long window: only the declared total can fire this in time.
	a := New(10*time.Second, 2, rec.release)

	a.Offer(setEvent("U1", "m1", "s1", 1, 2))
	a.Offer(setEvent("U1", "m2", "s1", 2, 2))
	rec.wait(t)

	batches := rec.batchesFor("U1")
	if len(batches) != 1 || len(batches[0]) != 2 {
		t.Fatalf("batches = %+v", batches)
	}
}

func TestUsersAreIndependent(t *testing.T) {
	rec := newRecorder()
	a := New(40*time.Millisecond, 4, rec.release)

	a.Offer(imageEvent("U1", "a1"))
	a.Offer(imageEvent("U2", "b1"))
	a.Offer(imageEvent("U1", "a2"))
	rec.wait(t)
	rec.wait(t)

	if b := rec.batchesFor("U1"); len(b) != 1 || len(b[0]) != 2 {
		t.Errorf("U1 batches = %+v", b)
	}
	if b := rec.batchesFor("U2"); len(b) != 1 || len(b[0]) != 1 {
		t.Errorf("U2 batches = %+v", b)
	}
}

func TestFiredBatchNeverRefires(t *testing.T) {
	rec := newRecorder()
	a := New(30*time.Millisecond, 2, rec.release)

	a.Offer(setEvent("U1", "m1", "s1", 1, 1))
	rec.wait(t)

	// A new batch after the immediate fire must not absorb the old timer.
	a.Offer(imageEvent("U1", "m2"))
	rec.wait(t)

	batches := rec.batchesFor("U1")
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}
	if len(batches[0]) != 1 || len(batches[1]) != 1 {
		t.Errorf("batches = %+v", batches)
	}
}

func TestStopFlushesAndRejects(t *testing.T) {
	rec := newRecorder()
	a := New(10*time.Second, 2, rec.release)

	a.Offer(imageEvent("U1", "m1"))
	a.Stop()
	rec.wait(t)

	if b := rec.batchesFor("U1"); len(b) != 1 {
		t.Fatalf("batches = %d, want 1 after Stop", len(b))
	}

	a.Offer(imageEvent("U1", "m2"))
	select {
	case <-rec.done:
		t.Fatal("offer after Stop released a batch")
	case <-time.After(50 * time.Millisecond):
	}
}
