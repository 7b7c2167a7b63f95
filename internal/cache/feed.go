// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// channelPrefix namespaces change-feed channels in Valkey.
const channelPrefix = "changes:"

// ValkeyFeed fans change notifications out through Valkey pub/sub, so every
// server instance sees writes made by every other instance.
type ValkeyFeed struct {
	client *redis.Client
}

// NewValkeyFeed creates a change feed on the given client.
func NewValkeyFeed(client *redis.Client) *ValkeyFeed {
	return &ValkeyFeed{client: client}
}

// Publish announces a change on topic.
func (f *ValkeyFeed) Publish(ctx context.Context, topic string) error {
	if err := f.client.Publish(ctx, channelPrefix+topic, "changed").Err(); err != nil {
		return fmt.Errorf("feed publish %s: %w", topic, err)
	}
	return nil
}

// Listen subscribes to topic. The subscription is confirmed before Listen
// returns, so no publish issued afterwards is missed.
func (f *ValkeyFeed) Listen(ctx context.Context, topic string) (<-chan struct{}, error) {
	pubsub := f.client.Subscribe(ctx, channelPrefix+topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("feed listen %s: %w", topic, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					slog.Warn("change feed channel closed", "topic", topic)
					return
				}
				notify(out)
			}
		}
	}()
	return out, nil
}

// LocalFeed is an in-process change feed for single-instance and test use.
type LocalFeed struct {
	mu        sync.Mutex
	listeners map[string]map[chan struct{}]struct{}
}

// NewLocalFeed returns an empty in-process feed.
func NewLocalFeed() *LocalFeed {
	return &LocalFeed{listeners: make(map[string]map[chan struct{}]struct{})}
}

// Publish wakes every listener on topic.
func (f *LocalFeed) Publish(_ context.Context, topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.listeners[topic] {
		notify(ch)
	}
	return nil
}

// Listen registers a listener that lives until ctx is done.
func (f *LocalFeed) Listen(ctx context.Context, topic string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	f.mu.Lock()
	if f.listeners[topic] == nil {
		f.listeners[topic] = make(map[chan struct{}]struct{})
	}
	f.listeners[topic][ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.listeners[topic], ch)
		if len(f.listeners[topic]) == 0 {
			delete(f.listeners, topic)
		}
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}

// notify performs a non-blocking send; a pending notification already
// covers this change.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
