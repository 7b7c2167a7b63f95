// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"tasknest/internal/cache"
	"tasknest/internal/docstore"
	"tasknest/internal/models"
	"tasknest/internal/reconcile"
	"tasknest/internal/slug"
)

// CategoryInput is the editable part of a category.
type CategoryInput struct {
	Name string      `json:"name"`
	Icon models.Icon `json:"icon"`
}

func (in *CategoryInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	if in.Icon == "" {
		in.Icon = models.IconFolder
	}
}

func (in CategoryInput) validate() error {
	return invalid(validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&in.Icon, validation.In(iconValues(models.CategoryIcons)...)),
	))
}

// CategoryService manages task categories.
type CategoryService struct {
	store     docstore.Store
	snapshots *cache.SnapshotCache
	hub       *reconcile.Hub[models.Category]
}

// NewCategoryService creates the service and its subscription hub.
func NewCategoryService(store docstore.Store, snapshots *cache.SnapshotCache) *CategoryService {
	return &CategoryService{
		store:     store,
		snapshots: snapshots,
		hub: reconcile.NewHub("categories", models.DefaultCategories(),
			streamSource(store, CollCategories, markCustomCategories)),
	}
}

func markCustomCategories(items []models.Category) {
	for i := range items {
		items[i].IsDefault = false
	}
}

// List returns the default categories followed by the user's own.
func (s *CategoryService) List(ctx context.Context, userID string) ([]models.Category, error) {
	return cachedList(ctx, s.snapshots, userID, kindCategories, func() ([]models.Category, error) {
		docs, err := s.store.List(ctx, userID, CollCategories)
		if err != nil {
			return nil, err
		}
		custom := decodeAll[models.Category](CollCategories, docs)
		markCustomCategories(custom)
		return reconcile.Reconcile(models.DefaultCategories(), custom), nil
	})
}

// Get returns one category from the merged list.
func (s *CategoryService) Get(ctx context.Context, userID, id string) (*models.Category, error) {
	all, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("category %s: %w", id, models.ErrNotFound)
}

// Create adds a custom category. Its id is the slug of the name, suffixed
// -1, -2, … until it is free.
func (s *CategoryService) Create(ctx context.Context, userID string, in CategoryInput) (*models.Category, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	base := slug.Generate(in.Name)
	if base == "" {
		return nil, models.Invalid("name: must contain a letter or digit.")
	}

	// A concurrent create can take the id between the check and the write.
	for attempt := 0; attempt < 3; attempt++ {
		all, err := s.list(ctx, userID)
		if err != nil {
			return nil, err
		}
		taken := make(map[string]bool, len(all))
		for _, c := range all {
			taken[c.ID] = true
		}

		c := models.Category{ID: slug.Unique(base, func(id string) bool { return taken[id] }), Name: in.Name, Icon: in.Icon}
		_, err = s.store.Create(ctx, userID, CollCategories, c.ID, c)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.snapshots.Invalidate(ctx, userID, kindCategories)
		return &c, nil
	}
	return nil, fmt.Errorf("create category %q: %w", in.Name, models.ErrConflict)
}

// list reads the merged collection without the snapshot cache.
func (s *CategoryService) list(ctx context.Context, userID string) ([]models.Category, error) {
	docs, err := s.store.List(ctx, userID, CollCategories)
	if err != nil {
		return nil, err
	}
	return reconcile.Reconcile(models.DefaultCategories(), decodeAll[models.Category](CollCategories, docs)), nil
}

// Update renames a custom category or changes its icon.
func (s *CategoryService) Update(ctx context.Context, userID, id string, in CategoryInput) (*models.Category, error) {
	if models.IsDefaultCategoryID(id) {
		return nil, models.Invalid("default categories cannot be changed")
	}
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, userID, CollCategories, id, map[string]any{"name": in.Name, "icon": in.Icon}); err != nil {
		return nil, err
	}
	s.snapshots.Invalidate(ctx, userID, kindCategories)
	return &models.Category{ID: id, Name: in.Name, Icon: in.Icon}, nil
}

// Delete removes a custom category. Tasks filed under it keep the
// reference.
func (s *CategoryService) Delete(ctx context.Context, userID, id string) error {
	if models.IsDefaultCategoryID(id) {
		return models.Invalid("default categories cannot be deleted")
	}
	existing, err := s.store.Get(ctx, userID, CollCategories, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("category %s: %w", id, models.ErrNotFound)
	}

	if err := s.store.Delete(ctx, userID, CollCategories, id); err != nil {
		return err
	}
	s.snapshots.Invalidate(ctx, userID, kindCategories)
	return nil
}

// Subscribe returns a live handle on the merged categories.
func (s *CategoryService) Subscribe(userID string) *reconcile.Handle[models.Category] {
	return s.hub.Acquire(userID)
}
