// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package service

import (
	"context"
	"fmt"
	"sync"

	"tasknest/internal/docstore"
	"tasknest/internal/models"
)

// SettingsService reads and writes the user's preferences document.
type SettingsService struct {
	store docstore.Store

	mu   sync.Mutex
	subs map[string]map[*settingsSub]struct{}
}

// settingsSub is one live preferences subscription.
type settingsSub struct {
	cancel context.CancelFunc
}

// NewSettingsService creates the settings service.
func NewSettingsService(store docstore.Store) *SettingsService {
	return &SettingsService{
		store: store,
		subs:  make(map[string]map[*settingsSub]struct{}),
	}
}

func decodeSettings(d *docstore.Doc) (models.Settings, error) {
	var s models.Settings
	if d == nil {
		return s, nil
	}
	if err := d.Decode(&s); err != nil {
		return s, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// Get returns the stored preferences, or the defaults when none are saved.
func (s *SettingsService) Get(ctx context.Context, userID string) (models.Settings, error) {
	d, err := s.store.Get(ctx, userID, CollSettings, settingsID)
	if err != nil {
		return models.Settings{}, err
	}
	return decodeSettings(d)
}

// Save merges the preferences into the stored document.
func (s *SettingsService) Save(ctx context.Context, userID string, settings models.Settings) error {
	return s.store.Set(ctx, userID, CollSettings, settingsID, settings, true)
}

// Subscribe streams the preferences, starting with the current value. The
// channel closes when ctx is cancelled or the store subscription fails. It
// also closes on DropUser for the user.
func (s *SettingsService) Subscribe(ctx context.Context, userID string) (<-chan models.Settings, error) {
	ctx, cancel := context.WithCancel(ctx)
	sub, err := s.store.Subscribe(ctx, userID, CollSettings)
	if err != nil {
		cancel()
		return nil, err
	}
	reg := s.register(userID, cancel)

	out := make(chan models.Settings, 1)
	go func() {
		defer close(out)
		defer s.unregister(userID, reg)
		defer sub.Close()

		for docs := range sub.C {
			var current *docstore.Doc
			for i := range docs {
				if docs[i].ID == settingsID {
					current = &docs[i]
				}
			}
			settings, err := decodeSettings(current)
			if err != nil {
				continue
			}
			select {
			case out <- settings:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *SettingsService) register(userID string, cancel context.CancelFunc) *settingsSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg := &settingsSub{cancel: cancel}
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[*settingsSub]struct{})
	}
	s.subs[userID][reg] = struct{}{}
	return reg
}

func (s *SettingsService) unregister(userID string, reg *settingsSub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg.cancel()
	delete(s.subs[userID], reg)
	if len(s.subs[userID]) == 0 {
		delete(s.subs, userID)
	}
}

// DropUser ends every preferences subscription of the user.
func (s *SettingsService) DropUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for reg := range s.subs[userID] {
		reg.cancel()
	}
}

// Subscribers reports how many preferences subscriptions the user has open.
func (s *SettingsService) Subscribers(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[userID])
}
