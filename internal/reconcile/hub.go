// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultRetryDelay is the first wait before a dropped store
	// subscription is reopened. It doubles up to maxRetryDelay.
	DefaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

// Source opens a stream of full custom-entry batches for a user. The stream
// ends by closing the channel, which happens when ctx is cancelled or the
// store connection fails.
type Source[T Entry] func(ctx context.Context, userID string) (<-chan []T, error)

// Hub keeps one store subscription per user for an entity kind and fans the
// reconciled collection out to every acquired Handle. The subscription is
// opened by the first Acquire and closed by the last Release. A stream that
// ends while handles remain is reopened with backoff.
type Hub[T Entry] struct {
	kind     string
	defaults []T
	source   Source[T]
	retry    time.Duration

	mu   sync.Mutex
	subs map[string]*shared[T]
}

type shared[T Entry] struct {
	rec      *Reconciler[T]
	cancel   context.CancelFunc
	done     chan struct{}
	handles  map[*Handle[T]]struct{}
	stopping bool
}

// NewHub creates a hub. kind only labels log lines.
func NewHub[T Entry](kind string, defaults []T, source Source[T]) *Hub[T] {
	return &Hub[T]{
		kind:     kind,
		defaults: defaults,
		source:   source,
		retry:    DefaultRetryDelay,
		subs:     make(map[string]*shared[T]),
	}
}

// Acquire returns a handle on the user's reconciled collection, opening the
// store subscription if this is the first handle. A failing source leaves
// the collection in defaults-only mode.
func (h *Hub[T]) Acquire(userID string) *Handle[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subs[userID]
	if !ok {
		s = h.open(userID)
		h.subs[userID] = s
	}

	handle := &Handle[T]{
		hub:     h,
		userID:  userID,
		sub:     s,
		updates: make(chan []T, 1),
	}
	s.handles[handle] = struct{}{}
	handle.updates <- s.rec.Current()
	return handle
}

// open starts the subscription goroutine. Caller holds h.mu.
func (h *Hub[T]) open(userID string) *shared[T] {
	ctx, cancel := context.WithCancel(context.Background())
	s := &shared[T]{
		rec:     NewReconciler(h.defaults),
		cancel:  cancel,
		done:    make(chan struct{}),
		handles: make(map[*Handle[T]]struct{}),
	}

	stream, err := h.source(ctx, userID)
	if err != nil {
		slog.Warn("reconcile subscription failed, using defaults", "kind", h.kind, "user", userID, "error", err)
		stream = nil
	}

	go h.run(ctx, userID, s, stream)
	return s
}

// run feeds batches to the reconciler until ctx is cancelled. When the
// stream ends or cannot be opened the collection falls back to defaults and
// the source is retried.
func (h *Hub[T]) run(ctx context.Context, userID string, s *shared[T], stream <-chan []T) {
	defer close(s.done)

	delay := h.retry
	for {
		if stream != nil {
			for batch := range stream {
				h.broadcast(s, s.rec.Apply(batch))
				delay = h.retry
			}
			if ctx.Err() != nil {
				return
			}
			slog.Warn("reconcile stream ended, using defaults", "kind", h.kind, "user", userID)
			h.broadcast(s, s.rec.Fallback())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)

		var err error
		stream, err = h.source(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("reconcile resubscribe failed", "kind", h.kind, "user", userID, "retry_in", delay, "error", err)
			stream = nil
		}
	}
}

// broadcast delivers merged to every handle, replacing an unread value.
func (h *Hub[T]) broadcast(s *shared[T], merged []T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for handle := range s.handles {
		select {
		case <-handle.updates:
		default:
		}
		handle.updates <- merged
	}
}

// release detaches one handle and tears the subscription down when it was
// the last one.
func (h *Hub[T]) release(handle *Handle[T]) {
	h.mu.Lock()
	s := handle.sub
	if _, ok := s.handles[handle]; !ok {
		h.mu.Unlock()
		return
	}
	delete(s.handles, handle)
	close(handle.updates)

	last := len(s.handles) == 0 && !s.stopping
	if last {
		s.stopping = true
		if h.subs[handle.userID] == s {
			delete(h.subs, handle.userID)
		}
	}
	h.mu.Unlock()

	if last {
		s.cancel()
		<-s.done
	}
}

// DropUser tears down the user's subscription and closes every handle on
// it, as happens when the signed-in identity changes.
func (h *Hub[T]) DropUser(userID string) {
	h.mu.Lock()
	s, ok := h.subs[userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, userID)
	s.stopping = true
	for handle := range s.handles {
		delete(s.handles, handle)
		close(handle.updates)
	}
	h.mu.Unlock()

	s.cancel()
	<-s.done
}

// Subscribers reports how many handles are open for the user.
func (h *Hub[T]) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[userID]; ok {
		return len(s.handles)
	}
	return 0
}

// Handle is one consumer's view of a shared reconciled collection.
type Handle[T Entry] struct {
	hub     *Hub[T]
	userID  string
	sub     *shared[T]
	updates chan []T
	once    sync.Once
}

// Updates delivers the merged collection on acquire and after every change.
// Only the latest value is kept for a slow reader. The channel is closed by
// Release or when the user's subscriptions are dropped.
func (h *Handle[T]) Updates() <-chan []T {
	return h.updates
}

// Current returns the latest merged collection.
func (h *Handle[T]) Current() []T {
	return h.sub.rec.Current()
}

// Status reports whether the collection is live.
func (h *Handle[T]) Status() Status {
	return h.sub.rec.Status()
}

// Release detaches the handle. It is safe to call more than once.
func (h *Handle[T]) Release() {
	h.once.Do(func() { h.hub.release(h) })
}
