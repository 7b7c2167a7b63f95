// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package reconcile merges built-in default entries with the custom entries
// a user keeps in the document store, and shares one live merged view per
// user and entity kind between every consumer.
package reconcile

import "sync"

// Entry is anything that can appear in a reconciled collection.
type Entry interface {
	EntryID() string
}

// Status reports whether a reconciled collection is fed by the store.
type Status string

const (
	// StatusDefaultsOnly means no custom entries are available, either
	// because nothing was received yet or because the stream failed.
	StatusDefaultsOnly Status = "defaults-only"
	// StatusLive means the collection reflects the latest store snapshot.
	StatusLive Status = "live"
)

// Reconcile returns defaults followed by the custom entries whose id is not
// already taken. Custom entries colliding with a default are dropped, never
// merged. A later custom entry repeating an earlier custom id is dropped too.
// The result is a fresh slice; neither input is modified.
func Reconcile[T Entry](defaults, custom []T) []T {
	seen := make(map[string]struct{}, len(defaults)+len(custom))
	merged := make([]T, 0, len(defaults)+len(custom))

	for _, d := range defaults {
		seen[d.EntryID()] = struct{}{}
		merged = append(merged, d)
	}
	for _, c := range custom {
		id := c.EntryID()
		if _, taken := seen[id]; taken {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, c)
	}
	return merged
}

// Reconciler holds the merged collection for one stream of custom batches.
// Each batch replaces the previous custom set entirely. It never writes to
// the store.
type Reconciler[T Entry] struct {
	defaults []T

	mu      sync.RWMutex
	current []T
	status  Status
}

// NewReconciler starts in defaults-only mode.
func NewReconciler[T Entry](defaults []T) *Reconciler[T] {
	d := append([]T(nil), defaults...)
	return &Reconciler[T]{
		defaults: d,
		current:  Reconcile(d, nil),
		status:   StatusDefaultsOnly,
	}
}

// Apply merges a full custom batch and marks the collection live.
func (r *Reconciler[T]) Apply(custom []T) []T {
	merged := Reconcile(r.defaults, custom)

	r.mu.Lock()
	r.current = merged
	r.status = StatusLive
	r.mu.Unlock()

	return merged
}

// Fallback drops every custom entry after a stream failure.
func (r *Reconciler[T]) Fallback() []T {
	merged := Reconcile(r.defaults, nil)

	r.mu.Lock()
	r.current = merged
	r.status = StatusDefaultsOnly
	r.mu.Unlock()

	return merged
}

// Current returns the latest merged collection. Callers must not modify it.
func (r *Reconciler[T]) Current() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Status reports whether the collection is live.
func (r *Reconciler[T]) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}
