// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// testValkeyClient returns a client connected to an in-process miniredis.
func testValkeyClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestConnectValkey(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Port()

	client, err := ConnectValkey(host, port, "")
	if err != nil {
		t.Fatalf("ConnectValkey: %v", err)
	}
	defer client.Close()

	pong, err := client.Ping(context.Background()).Result()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if pong != "PONG" {
		t.Errorf("expected PONG, got %q", pong)
	}
}

func TestConnectValkeyUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	if _, err := ConnectValkey(host, port, ""); err == nil {
		t.Error("expected error for unreachable valkey")
	}
}

func TestSnapshotCacheSetAndGet(t *testing.T) {
	client, _ := testValkeyClient(t)
	sc := NewSnapshotCache(client, time.Minute)
	ctx := context.Background()

	data, ok := sc.Get(ctx, "user-1", "categories")
	if ok {
		t.Error("expected cache miss")
	}
	if data != nil {
		t.Error("expected nil data on miss")
	}

	body := []byte(`[{"id":"all-tasks"}]`)
	sc.Set(ctx, "user-1", "categories", body)

	data, ok = sc.Get(ctx, "user-1", "categories")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != string(body) {
		t.Errorf("data mismatch: got %q, want %q", data, body)
	}

	// Other users and kinds are isolated.
	if _, ok := sc.Get(ctx, "user-2", "categories"); ok {
		t.Error("expected miss for another user")
	}
	if _, ok := sc.Get(ctx, "user-1", "tasks"); ok {
		t.Error("expected miss for another kind")
	}
}

func TestSnapshotCacheTTL(t *testing.T) {
	client, mr := testValkeyClient(t)
	sc := NewSnapshotCache(client, time.Minute)
	ctx := context.Background()

	sc.Set(ctx, "user-1", "categories", []byte("[]"))
	mr.FastForward(2 * time.Minute)

	if _, ok := sc.Get(ctx, "user-1", "categories"); ok {
		t.Error("expected miss after TTL expiry")
	}
}

func TestSnapshotCacheInvalidate(t *testing.T) {
	client, _ := testValkeyClient(t)
	sc := NewSnapshotCache(client, time.Minute)
	ctx := context.Background()

	sc.Set(ctx, "user-1", "categories", []byte("cached"))
	sc.Invalidate(ctx, "user-1", "categories")

	if _, ok := sc.Get(ctx, "user-1", "categories"); ok {
		t.Error("expected cache miss after invalidation")
	}
}

func TestSnapshotCacheSetIfGeneration(t *testing.T) {
	client, _ := testValkeyClient(t)
	sc := NewSnapshotCache(client, time.Minute)
	ctx := context.Background()

	gen, ok := sc.Generation(ctx, "user-1", "categories")
	if !ok || gen != 0 {
		t.Fatalf("initial generation = %d, %v", gen, ok)
	}
	if !sc.SetIfGeneration(ctx, "user-1", "categories", gen, []byte("fresh")) {
		t.Fatal("fill with current generation was rejected")
	}
	if got, ok := sc.Get(ctx, "user-1", "categories"); !ok || string(got) != "fresh" {
		t.Fatalf("Get = %q, %v", got, ok)
	}

	// A reader loads, then a write lands before it stores its result.
	stale, _ := sc.Generation(ctx, "user-1", "categories")
	sc.Invalidate(ctx, "user-1", "categories")
	if sc.SetIfGeneration(ctx, "user-1", "categories", stale, []byte("stale")) {
		t.Error("fill loaded before the write was stored")
	}
	if _, ok := sc.Get(ctx, "user-1", "categories"); ok {
		t.Error("expected miss after rejected fill")
	}

	gen, _ = sc.Generation(ctx, "user-1", "categories")
	if gen != stale+1 {
		t.Errorf("generation after write = %d, want %d", gen, stale+1)
	}
	if !sc.SetIfGeneration(ctx, "user-1", "categories", gen, []byte("next")) {
		t.Error("fill after the write was rejected")
	}
}

func TestSnapshotCacheInvalidateUser(t *testing.T) {
	client, _ := testValkeyClient(t)
	sc := NewSnapshotCache(client, time.Minute)
	ctx := context.Background()

	for _, kind := range []string{"categories", "documents", "document-types"} {
		sc.Set(ctx, "user-1", kind, []byte(kind))
	}
	sc.Set(ctx, "user-2", "categories", []byte("keep"))

	sc.InvalidateUser(ctx, "user-1")

	for _, kind := range []string{"categories", "documents", "document-types"} {
		if _, ok := sc.Get(ctx, "user-1", kind); ok {
			t.Errorf("expected miss for %q after InvalidateUser", kind)
		}
	}
	if _, ok := sc.Get(ctx, "user-2", "categories"); !ok {
		t.Error("other user's snapshot should survive")
	}
}

func TestNewSnapshotCacheDefaultTTL(t *testing.T) {
	client, _ := testValkeyClient(t)

	sc := NewSnapshotCache(client, 0)
	if sc.ttl != DefaultSnapshotTTL {
		t.Errorf("expected DefaultSnapshotTTL (%v), got %v", DefaultSnapshotTTL, sc.ttl)
	}
}

func TestNilSnapshotCacheIsNoop(t *testing.T) {
	var sc *SnapshotCache
	ctx := context.Background()

	sc.Set(ctx, "user-1", "categories", []byte("x"))
	if sc.SetIfGeneration(ctx, "user-1", "categories", 0, []byte("x")) {
		t.Error("nil cache should not store")
	}
	if _, ok := sc.Generation(ctx, "user-1", "categories"); ok {
		t.Error("nil cache should report no generation")
	}
	sc.Invalidate(ctx, "user-1", "categories")
	sc.InvalidateUser(ctx, "user-1")
	if _, ok := sc.Get(ctx, "user-1", "categories"); ok {
		t.Error("nil cache should always miss")
	}
}

// waitSignal fails the test if ch does not deliver within a second.
func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		if !ok {
			t.Fatal("listener closed unexpectedly")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change notification")
	}
}

func TestValkeyFeed(t *testing.T) {
	client, _ := testValkeyClient(t)
	feed := NewValkeyFeed(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Listen(ctx, "user-1:tasks")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if err := feed.Publish(ctx, "user-1:tasks"); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitSignal(t, ch)

	cancel()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(time.Second):
		t.Fatal("listener channel not closed after cancel")
	}
}

func TestLocalFeed(t *testing.T) {
	feed := NewLocalFeed()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tasks, _ := feed.Listen(ctx, "user-1:tasks")
	other, _ := feed.Listen(ctx, "user-1:categories")

	feed.Publish(ctx, "user-1:tasks")
	waitSignal(t, tasks)

	select {
	case <-other:
		t.Error("listener on another topic should not be notified")
	default:
	}

	t.Run("bursts coalesce", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			feed.Publish(ctx, "user-1:tasks")
		}
		waitSignal(t, tasks)
		select {
		case <-tasks:
			t.Error("expected a single pending notification")
		default:
		}
	})

	t.Run("cancel closes and unregisters", func(t *testing.T) {
		cancel()
		select {
		case _, ok := <-tasks:
			if ok {
				t.Error("expected closed channel")
			}
		case <-time.After(time.Second):
			t.Fatal("listener channel not closed after cancel")
		}
		// Publishing after cancellation must not panic.
		feed.Publish(context.Background(), "user-1:tasks")
	})
}
