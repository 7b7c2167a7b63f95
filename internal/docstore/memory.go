// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tasknest/internal/models"
)

// Memory is an in-process Store with the same semantics as Postgres.
// It backs tests and the "testing" environment.
type Memory struct {
	mu   sync.Mutex
	seq  int64
	docs map[string]map[string]*memDoc // user\x00collection → id → doc
	feed Feed
}

type memDoc struct {
	seq       int64
	data      map[string]any
	createdAt time.Time
	updatedAt time.Time
}

// NewMemory returns an empty in-memory store announcing changes on feed.
func NewMemory(feed Feed) *Memory {
	return &Memory{docs: make(map[string]map[string]*memDoc), feed: feed}
}

func memKey(userID, collection string) string {
	return userID + "\x00" + collection
}

func (m *Memory) publish(ctx context.Context, userID, collection string) {
	if err := m.feed.Publish(ctx, Topic(userID, collection)); err != nil {
		slog.Warn("change feed publish failed", "user", userID, "collection", collection, "error", err)
	}
}

// toMap converts any JSON-encodable value into a generic object.
func toMap(data any) (map[string]any, error) {
	body, err := encode(data)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}

func toValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode element: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *memDoc) snapshot(id string) Doc {
	b, _ := json.Marshal(d.data)
	return Doc{ID: id, Data: b, CreatedAt: d.createdAt, UpdatedAt: d.updatedAt}
}

// List returns the collection in insertion order.
func (m *Memory) List(_ context.Context, userID, collection string) ([]Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.docs[memKey(userID, collection)]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return coll[ids[i]].seq < coll[ids[j]].seq })

	items := make([]Doc, 0, len(ids))
	for _, id := range ids {
		items = append(items, coll[id].snapshot(id))
	}
	return items, nil
}

// Get returns a document or nil.
func (m *Memory) Get(_ context.Context, userID, collection, id string) (*Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.docs[memKey(userID, collection)][id]
	if !ok {
		return nil, nil
	}
	snap := d.snapshot(id)
	return &snap, nil
}

// Create inserts a new document.
func (m *Memory) Create(ctx context.Context, userID, collection, id string, data any) (string, error) {
	body, err := toMap(data)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	coll := m.collection(userID, collection)
	if _, exists := coll[id]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("create %s/%s: %w", collection, id, models.ErrConflict)
	}
	m.insert(coll, id, body)
	m.mu.Unlock()

	m.publish(ctx, userID, collection)
	return id, nil
}

// Set upserts a document.
func (m *Memory) Set(ctx context.Context, userID, collection, id string, data any, merge bool) error {
	body, err := toMap(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	coll := m.collection(userID, collection)
	if d, ok := coll[id]; ok {
		if merge {
			for k, v := range body {
				d.data[k] = v
			}
		} else {
			d.data = body
		}
		d.updatedAt = time.Now()
	} else {
		m.insert(coll, id, body)
	}
	m.mu.Unlock()

	m.publish(ctx, userID, collection)
	return nil
}

// Update merges fields into an existing document.
func (m *Memory) Update(ctx context.Context, userID, collection, id string, fields map[string]any) error {
	body, err := toMap(fields)
	if err != nil {
		return err
	}

	m.mu.Lock()
	d, ok := m.docs[memKey(userID, collection)][id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", collection, id, models.ErrNotFound)
	}
	for k, v := range body {
		d.data[k] = v
	}
	d.updatedAt = time.Now()
	m.mu.Unlock()

	m.publish(ctx, userID, collection)
	return nil
}

// Delete removes a document.
func (m *Memory) Delete(ctx context.Context, userID, collection, id string) error {
	m.mu.Lock()
	delete(m.docs[memKey(userID, collection)], id)
	m.mu.Unlock()

	m.publish(ctx, userID, collection)
	return nil
}

// DeleteTree removes a document and its nested collections.
func (m *Memory) DeleteTree(ctx context.Context, userID, collection, id string) error {
	prefix := memKey(userID, Path(collection, id)+"/")

	m.mu.Lock()
	delete(m.docs[memKey(userID, collection)], id)
	var nested []string
	for key := range m.docs {
		if strings.HasPrefix(key, prefix) {
			nested = append(nested, strings.TrimPrefix(key, userID+"\x00"))
			delete(m.docs, key)
		}
	}
	m.mu.Unlock()

	m.publish(ctx, userID, collection)
	for _, c := range nested {
		m.publish(ctx, userID, c)
	}
	return nil
}

// ListCollections returns non-empty collection paths starting with prefix.
func (m *Memory) ListCollections(_ context.Context, userID, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var paths []string
	for key, coll := range m.docs {
		user, collection, _ := strings.Cut(key, "\x00")
		if user == userID && strings.HasPrefix(collection, prefix) && len(coll) > 0 {
			paths = append(paths, collection)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ArrayAppend appends elem to the array field under the store lock.
func (m *Memory) ArrayAppend(ctx context.Context, userID, collection, id, field string, elem any) error {
	v, err := toValue(elem)
	if err != nil {
		return err
	}
	return m.mutateArray(ctx, userID, collection, id, field, "", func(arr []any, _ int) []any {
		return append(arr, v)
	})
}

// ArrayReplace merges elem into the matching element in place.
func (m *Memory) ArrayReplace(ctx context.Context, userID, collection, id, field, elemID string, elem any) error {
	patch, err := toMap(elem)
	if err != nil {
		return err
	}
	return m.mutateArray(ctx, userID, collection, id, field, elemID, func(arr []any, idx int) []any {
		merged := map[string]any{}
		if cur, ok := arr[idx].(map[string]any); ok {
			for k, v := range cur {
				merged[k] = v
			}
		}
		for k, v := range patch {
			merged[k] = v
		}
		arr[idx] = merged
		return arr
	})
}

// ArrayRemove drops the matching element.
func (m *Memory) ArrayRemove(ctx context.Context, userID, collection, id, field, elemID string) error {
	return m.mutateArray(ctx, userID, collection, id, field, elemID, func(arr []any, idx int) []any {
		return append(arr[:idx:idx], arr[idx+1:]...)
	})
}

// mutateArray applies fn to a copy of the array field. When elemID is set,
// the element must exist and its index is passed to fn.
func (m *Memory) mutateArray(ctx context.Context, userID, collection, id, field, elemID string, fn func([]any, int) []any) error {
	m.mu.Lock()
	d, ok := m.docs[memKey(userID, collection)][id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", collection, id, models.ErrNotFound)
	}

	cur, _ := d.data[field].([]any)
	arr := append([]any(nil), cur...)

	idx := -1
	if elemID != "" {
		for i, e := range arr {
			if obj, ok := e.(map[string]any); ok && obj["id"] == elemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			m.mu.Unlock()
			return fmt.Errorf("%s/%s.%s[%s]: %w", collection, id, field, elemID, models.ErrNotFound)
		}
	}

	d.data[field] = fn(arr, idx)
	d.updatedAt = time.Now()
	m.mu.Unlock()

	m.publish(ctx, userID, collection)
	return nil
}

// Subscribe streams collection snapshots driven by the change feed.
func (m *Memory) Subscribe(ctx context.Context, userID, collection string) (*Subscription, error) {
	return subscribe(ctx, m.feed, Topic(userID, collection), func(ctx context.Context) ([]Doc, error) {
		return m.List(ctx, userID, collection)
	})
}

func (m *Memory) collection(userID, collection string) map[string]*memDoc {
	key := memKey(userID, collection)
	coll, ok := m.docs[key]
	if !ok {
		coll = make(map[string]*memDoc)
		m.docs[key] = coll
	}
	return coll
}

func (m *Memory) insert(coll map[string]*memDoc, id string, body map[string]any) {
	m.seq++
	now := time.Now()
	coll[id] = &memDoc{seq: m.seq, data: body, createdAt: now, updatedAt: now}
}
