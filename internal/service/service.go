// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package service implements the per-user operations on categories, tasks,
// document types, legacy document sections and settings on top of the
// document store. Collections with built-in entries are merged through the
// reconcile package; live views share one store subscription per user.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"tasknest/internal/blob"
	"tasknest/internal/cache"
	"tasknest/internal/docstore"
	"tasknest/internal/models"
	"tasknest/internal/reconcile"
)

// Collection paths within a user's namespace.
const (
	CollTasks         = "tasks"
	CollCategories    = "categories"
	CollSections      = "documents"
	CollDocumentTypes = "documentsV2"
	CollSettings      = "settings"

	settingsID = "preferences"
)

// Snapshot cache kinds.
const (
	kindCategories    = "categories"
	kindTasks         = "tasks"
	kindDocumentTypes = "document-types"
	kindSections      = "sections"
)

// Services bundles every domain service over one store.
type Services struct {
	Categories    *CategoryService
	Tasks         *TaskService
	DocumentTypes *DocumentTypeService
	Sections      *SectionService
	Settings      *SettingsService

	snapshots *cache.SnapshotCache
}

// New wires all services. snapshots may be nil to disable caching.
func New(store docstore.Store, snapshots *cache.SnapshotCache, encoder *blob.Encoder) *Services {
	return &Services{
		Categories:    NewCategoryService(store, snapshots),
		Tasks:         NewTaskService(store, snapshots),
		DocumentTypes: NewDocumentTypeService(store, snapshots, encoder),
		Sections:      NewSectionService(store, snapshots, encoder.Limit()),
		Settings:      NewSettingsService(store),
		snapshots:     snapshots,
	}
}

// DropUser tears down the user's live subscriptions and cached snapshots.
// It runs when the user signs out.
func (s *Services) DropUser(ctx context.Context, userID string) {
	s.Categories.hub.DropUser(userID)
	s.Tasks.hub.DropUser(userID)
	s.DocumentTypes.hub.DropUser(userID)
	s.Sections.hub.DropUser(userID)
	s.Settings.DropUser(userID)
	s.snapshots.InvalidateUser(ctx, userID)
}

// decodeAll decodes store documents, skipping any that do not fit T.
func decodeAll[T any](collection string, docs []docstore.Doc) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.Decode(&v); err != nil {
			slog.Warn("skipping undecodable entry", "collection", collection, "id", d.ID, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// streamSource adapts a store subscription to a reconcile source. mark
// runs on every decoded batch before it is handed over.
func streamSource[T reconcile.Entry](store docstore.Store, collection string, mark func([]T)) reconcile.Source[T] {
	return func(ctx context.Context, userID string) (<-chan []T, error) {
		sub, err := store.Subscribe(ctx, userID, collection)
		if err != nil {
			return nil, err
		}

		out := make(chan []T)
		go func() {
			defer close(out)
			defer sub.Close()

			for docs := range sub.C {
				items := decodeAll[T](collection, docs)
				if mark != nil {
					mark(items)
				}
				select {
				case out <- items:
				case <-ctx.Done():
					return
				}
			}
			if err := sub.Err(); err != nil {
				slog.Warn("store subscription ended", "collection", collection, "user", userID, "error", err)
			}
		}()
		return out, nil
	}
}

// cachedList serves a reconciled list from the snapshot cache, loading and
// storing it on a miss. The fill is dropped when a write invalidated the
// kind while load ran.
func cachedList[T any](ctx context.Context, snapshots *cache.SnapshotCache, userID, kind string, load func() ([]T, error)) ([]T, error) {
	if body, ok := snapshots.Get(ctx, userID, kind); ok {
		var items []T
		if err := json.Unmarshal(body, &items); err == nil {
			return items, nil
		}
	}

	gen, fill := snapshots.Generation(ctx, userID, kind)
	items, err := load()
	if err != nil {
		return nil, err
	}
	if !fill {
		return items, nil
	}
	if body, err := json.Marshal(items); err == nil {
		snapshots.SetIfGeneration(ctx, userID, kind, gen, body)
	}
	return items, nil
}

// invalid converts an ozzo-validation error into a models validation error.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	return models.Invalid("%v", err)
}

// iconValues converts an icon set for validation.In.
func iconValues(icons []models.Icon) []any {
	out := make([]any, len(icons))
	for i, ic := range icons {
		out[i] = ic
	}
	return out
}

// Clock returns the current time. Services expose it for tests.
type Clock func() time.Time
