// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package docstore is a per-user document store. Documents are JSON objects
// addressed by (user, collection path, id); collections may nest beneath a
// document ("documents/pan-info/years/2024/files"). Every mutation is
// announced on a change feed so subscribers receive full snapshots.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"tasknest/internal/models"
)

// Doc is a stored document.
type Doc struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the document body into v and then overlays the
// document id onto v's "id" field.
func (d Doc) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", d.ID, err)
	}
	idJSON, err := json.Marshal(map[string]string{"id": d.ID})
	if err != nil {
		return err
	}
	return json.Unmarshal(idJSON, v)
}

// Store is the backing-store contract used by every service.
type Store interface {
	// List returns every document in the collection in store order
	// (creation time, then id).
	List(ctx context.Context, userID, collection string) ([]Doc, error)
	// Get returns the document, or nil if it does not exist.
	Get(ctx context.Context, userID, collection, id string) (*Doc, error)
	// Create inserts a document. An empty id is replaced by a generated one.
	// Returns models.ErrConflict if the id is taken.
	Create(ctx context.Context, userID, collection, id string, data any) (string, error)
	// Set writes the whole document, creating it if needed. With merge the
	// top-level fields of data are merged into the existing body.
	Set(ctx context.Context, userID, collection, id string, data any, merge bool) error
	// Update merges fields into an existing document. Unspecified fields are
	// unchanged. Returns models.ErrNotFound if the document does not exist.
	Update(ctx context.Context, userID, collection, id string, fields map[string]any) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, userID, collection, id string) error
	// DeleteTree removes a document and every collection nested beneath it.
	DeleteTree(ctx context.Context, userID, collection, id string) error
	// ListCollections returns the distinct collection paths under prefix.
	ListCollections(ctx context.Context, userID, prefix string) ([]string, error)

	// ArrayAppend atomically appends elem to the array field.
	ArrayAppend(ctx context.Context, userID, collection, id, field string, elem any) error
	// ArrayReplace atomically merges elem into the array element whose "id"
	// equals elemID, keeping its position.
	ArrayReplace(ctx context.Context, userID, collection, id, field, elemID string, elem any) error
	// ArrayRemove atomically removes the array element whose "id" equals elemID.
	ArrayRemove(ctx context.Context, userID, collection, id, field, elemID string) error

	// Subscribe delivers the full collection immediately and again after
	// every change, until ctx is cancelled or the subscription is closed.
	Subscribe(ctx context.Context, userID, collection string) (*Subscription, error)
}

// Feed carries change notifications between writers and subscribers.
type Feed interface {
	Publish(ctx context.Context, topic string) error
	// Listen returns a channel that receives a value after each publish on
	// topic. The channel is closed once ctx is done or the feed fails.
	Listen(ctx context.Context, topic string) (<-chan struct{}, error)
}

// Topic names the change-feed topic for a user's collection.
func Topic(userID, collection string) string {
	return userID + ":" + collection
}

// Path joins collection path segments.
func Path(segments ...string) string {
	return strings.Join(segments, "/")
}

// Subscription is a live snapshot stream.
type Subscription struct {
	C <-chan []Doc

	cancel context.CancelFunc
	mu     sync.Mutex
	err    error
}

// Err reports why C was closed. It is nil after a plain cancellation.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the subscription. C is closed shortly after.
func (s *Subscription) Close() {
	s.cancel()
}

func (s *Subscription) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// subscribe wires a feed listener to a lister: one snapshot up front, then
// one per change. Changes that arrive while a snapshot is pending coalesce.
func subscribe(ctx context.Context, feed Feed, topic string, list func(context.Context) ([]Doc, error)) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	changes, err := feed.Listen(ctx, topic)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	out := make(chan []Doc, 1)
	sub := &Subscription{C: out, cancel: cancel}

	go func() {
		defer close(out)
		defer cancel()

		send := func() bool {
			docs, err := list(ctx)
			if err != nil {
				if ctx.Err() == nil {
					sub.fail(err)
				}
				return false
			}
			// Replace an unread snapshot rather than block behind it.
			select {
			case <-out:
			default:
			}
			select {
			case out <- docs:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					if ctx.Err() == nil {
						sub.fail(fmt.Errorf("change feed closed for %s", topic))
					}
					return
				}
				if !send() {
					return
				}
			}
		}
	}()

	return sub, nil
}

// encode marshals a document body, which must be a JSON object.
func encode(data any) ([]byte, error) {
	if raw, ok := data.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if len(b) == 0 || b[0] != '{' {
		return nil, fmt.Errorf("encode document: %w", models.Invalid("document body must be an object"))
	}
	return b, nil
}
