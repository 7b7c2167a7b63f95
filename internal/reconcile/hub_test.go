package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSource hands out one controllable stream per open.
type fakeSource struct {
	mu      sync.Mutex
	opens   int
	streams []chan []entry
	fail    error
}

func (f *fakeSource) open(ctx context.Context, _ string) (<-chan []entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.fail != nil {
		return nil, f.fail
	}
	in := make(chan []entry)
	out := make(chan []entry)
	f.streams = append(f.streams, in)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- batch:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (f *fakeSource) stream(i int) chan []entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

func (f *fakeSource) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func next(t *testing.T, h *Handle[entry]) []entry {
	t.Helper()
	select {
	case v, ok := <-h.Updates():
		if !ok {
			t.Fatal("updates closed")
		}
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
	return nil
}

func TestHub_SharedSubscription(t *testing.T) {
	src := &fakeSource{}
	hub := NewHub[entry]("categories", testDefaults, src.open)

	a := hub.Acquire("u1")
	b := hub.Acquire("u1")
	if src.openCount() != 1 {
		t.Fatalf("expected one store subscription, got %d", src.openCount())
	}
	if hub.Subscribers("u1") != 2 {
		t.Errorf("subscribers: got %d, want 2", hub.Subscribers("u1"))
	}

	// Initial value is the defaults.
	if got := next(t, a); len(got) != len(testDefaults) {
		t.Errorf("initial: got %v", ids(got))
	}
	next(t, b)

	src.stream(0) <- []entry{{"gym", "Gym"}, {"home", "Custom"}}

	for _, h := range []*Handle[entry]{a, b} {
		got := next(t, h)
		if len(got) != len(testDefaults)+1 {
			t.Errorf("after batch: got %v", ids(got))
		}
		if h.Status() != StatusLive {
			t.Errorf("status: got %q", h.Status())
		}
	}

	a.Release()
	if hub.Subscribers("u1") != 1 {
		t.Errorf("after one release: got %d subscribers", hub.Subscribers("u1"))
	}
	b.Release()
	b.Release()
	if hub.Subscribers("u1") != 0 {
		t.Errorf("after last release: got %d subscribers", hub.Subscribers("u1"))
	}

	// A new consumer opens a fresh subscription.
	c := hub.Acquire("u1")
	defer c.Release()
	if src.openCount() != 2 {
		t.Errorf("expected re-open after teardown, got %d opens", src.openCount())
	}
}

func TestHub_StreamEndFallsBack(t *testing.T) {
	src := &fakeSource{}
	hub := NewHub[entry]("categories", testDefaults, src.open)

	h := hub.Acquire("u1")
	defer h.Release()
	next(t, h)

	src.stream(0) <- []entry{{"gym", "Gym"}}
	next(t, h)

	close(src.stream(0))
	got := next(t, h)
	if len(got) != len(testDefaults) {
		t.Errorf("after disconnect: got %v, want defaults", ids(got))
	}
	if h.Status() != StatusDefaultsOnly {
		t.Errorf("status: got %q", h.Status())
	}
}

func TestHub_StreamEndResubscribes(t *testing.T) {
	src := &fakeSource{}
	hub := NewHub[entry]("categories", testDefaults, src.open)
	hub.retry = 5 * time.Millisecond

	a := hub.Acquire("u1")
	defer a.Release()
	next(t, a)

	close(src.stream(0))
	if got := next(t, a); len(got) != len(testDefaults) {
		t.Fatalf("after disconnect: got %v, want defaults", ids(got))
	}

	deadline := time.Now().Add(time.Second)
	for src.openCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("store subscription was not reopened")
		}
		time.Sleep(time.Millisecond)
	}

	// A later consumer joins the reopened subscription.
	b := hub.Acquire("u1")
	defer b.Release()
	next(t, b)
	if src.openCount() != 2 {
		t.Errorf("opens: got %d, want 2", src.openCount())
	}

	src.stream(1) <- []entry{{"gym", "Gym"}}
	for _, h := range []*Handle[entry]{a, b} {
		got := next(t, h)
		if len(got) != len(testDefaults)+1 {
			t.Errorf("after reopen: got %v", ids(got))
		}
		if h.Status() != StatusLive {
			t.Errorf("status: got %q, want live", h.Status())
		}
	}
}

func TestHub_SourceErrorRetries(t *testing.T) {
	src := &fakeSource{fail: errors.New("unavailable")}
	hub := NewHub[entry]("categories", testDefaults, src.open)
	hub.retry = 5 * time.Millisecond

	h := hub.Acquire("u1")
	defer h.Release()
	next(t, h)

	src.mu.Lock()
	src.fail = nil
	src.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for {
		src.mu.Lock()
		ready := len(src.streams) > 0
		src.mu.Unlock()
		if ready {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("source was not retried")
		}
		time.Sleep(time.Millisecond)
	}

	src.stream(0) <- []entry{{"gym", "Gym"}}
	for {
		got := next(t, h)
		if len(got) == len(testDefaults)+1 {
			break
		}
	}
	if h.Status() != StatusLive {
		t.Errorf("status: got %q, want live", h.Status())
	}
}

func TestHub_SourceErrorUsesDefaults(t *testing.T) {
	src := &fakeSource{fail: errors.New("permission denied")}
	hub := NewHub[entry]("categories", testDefaults, src.open)

	h := hub.Acquire("u1")
	got := next(t, h)
	if len(got) != len(testDefaults) || h.Status() != StatusDefaultsOnly {
		t.Errorf("got %v (%s), want defaults-only", ids(got), h.Status())
	}
	h.Release()
}

func TestHub_DropUser(t *testing.T) {
	src := &fakeSource{}
	hub := NewHub[entry]("categories", testDefaults, src.open)

	h1 := hub.Acquire("u1")
	h2 := hub.Acquire("u2")
	defer h2.Release()

	hub.DropUser("u1")

	// Drain the initial value, then expect the channel to be closed.
	<-h1.Updates()
	select {
	case _, ok := <-h1.Updates():
		if ok {
			t.Error("expected closed updates after DropUser")
		}
	case <-time.After(time.Second):
		t.Fatal("updates not closed")
	}
	h1.Release()

	if hub.Subscribers("u1") != 0 {
		t.Error("u1 should have no subscribers")
	}
	if hub.Subscribers("u2") != 1 {
		t.Error("other users must be unaffected")
	}
}

func TestHub_SlowReaderSeesLatest(t *testing.T) {
	src := &fakeSource{}
	hub := NewHub[entry]("categories", nil, src.open)

	h := hub.Acquire("u1")
	defer h.Release()
	next(t, h)

	src.stream(0) <- []entry{{"a", ""}}
	src.stream(0) <- []entry{{"a", ""}, {"b", ""}}

	deadline := time.After(time.Second)
	for {
		select {
		case got := <-h.Updates():
			if len(got) == 2 {
				return
			}
		case <-deadline:
			t.Fatal("latest batch never delivered")
		}
	}
}
