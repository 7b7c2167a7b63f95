// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// snapshot.go caches reconciled collection JSON in Valkey so list endpoints
// skip the store and the merge while nothing has changed.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// snapshotKeyPrefix is the Valkey key prefix for cached snapshots.
	snapshotKeyPrefix = "snapshot:"

	// generationKeyPrefix holds the per user and kind write counters. It is
	// kept apart from snapshotKeyPrefix so InvalidateUser leaves it alone.
	generationKeyPrefix = "snapgen:"

	// DefaultSnapshotTTL bounds staleness if an invalidation is missed.
	DefaultSnapshotTTL = 30 * time.Second
)

// SnapshotCache stores rendered collection snapshots per user and kind.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache creates a snapshot cache backed by the given Valkey client.
func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl == 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(userID, kind string) string {
	return snapshotKeyPrefix + userID + ":" + kind
}

func generationKey(userID, kind string) string {
	return generationKeyPrefix + userID + ":" + kind
}

// errStaleFill aborts a fill whose generation was bumped meanwhile.
var errStaleFill = errors.New("snapshot generation changed")

// Generation returns the write counter for a user's collection kind. Read it
// before loading a snapshot and hand it to SetIfGeneration. ok is false when
// the counter cannot be read, in which case nothing should be stored.
func (c *SnapshotCache) Generation(ctx context.Context, userID, kind string) (gen int64, ok bool) {
	if c == nil {
		return 0, false
	}
	gen, err := c.client.Get(ctx, generationKey(userID, kind)).Int64()
	if err == redis.Nil {
		return 0, true
	}
	if err != nil {
		slog.Warn("snapshot generation get error", "user", userID, "kind", kind, "error", err)
		return 0, false
	}
	return gen, true
}

// SetIfGeneration stores a snapshot only while the write counter still
// equals gen, so a fill loaded before a concurrent Invalidate is dropped.
// It reports whether the snapshot was stored.
func (c *SnapshotCache) SetIfGeneration(ctx context.Context, userID, kind string, gen int64, body []byte) bool {
	if c == nil {
		return false
	}
	genKey := generationKey(userID, kind)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, snapshotKey(userID, kind), body, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		slog.Debug("snapshot fill skipped, collection changed", "user", userID, "kind", kind)
	default:
		slog.Warn("snapshot cache set error", "user", userID, "kind", kind, "error", err)
	}
	return false
}

// Get returns the cached snapshot for a user's collection kind.
func (c *SnapshotCache) Get(ctx context.Context, userID, kind string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, snapshotKey(userID, kind)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("snapshot cache get error", "user", userID, "kind", kind, "error", err)
		return nil, false
	}
	slog.Debug("snapshot cache hit", "user", userID, "kind", kind)
	return val, true
}

// Set stores a snapshot with the configured TTL.
func (c *SnapshotCache) Set(ctx context.Context, userID, kind string, body []byte) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, snapshotKey(userID, kind), body, c.ttl).Err(); err != nil {
		slog.Warn("snapshot cache set error", "user", userID, "kind", kind, "error", err)
	}
}

// Invalidate removes the cached snapshot for a user's collection kind and
// bumps its write counter. Call it after the store write.
func (c *SnapshotCache) Invalidate(ctx context.Context, userID, kind string) {
	if c == nil {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID, kind))
		pipe.Del(ctx, snapshotKey(userID, kind))
		return nil
	})
	if err != nil {
		slog.Warn("snapshot cache invalidate error", "user", userID, "kind", kind, "error", err)
	}
}

// InvalidateUser removes every cached snapshot of a user, e.g. on sign-out.
func (c *SnapshotCache) InvalidateUser(ctx context.Context, userID string) {
	if c == nil {
		return
	}
	var cursor uint64
	var deleted int
	for {
		keys, next, err := c.client.Scan(ctx, cursor, snapshotKeyPrefix+userID+":*", 100).Result()
		if err != nil {
			slog.Warn("snapshot cache scan error", "user", userID, "error", err)
			return
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("snapshot cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Debug("snapshot cache cleared for user", "user", userID, "deleted", deleted)
	}
}
