// Package kv implements the hot-tier KV store client: typed
// string/sorted-set/hash operations plus pub/sub, backed by a shared
// Redis instance every classroomd instance connects to over the network.
// Sharing the backing store (rather than an embedded, per-process one) is
// what lets file content, sorted sets, and size counters stay consistent
// across horizontally scaled instances, and Redis PUBLISH/SUBSCRIBE is by
// itself the cross-instance message fan-out: room membership lookups stay
// local per instance, while a publish reaches every instance's
// subscribers, this process's own included.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a typed wrapper around a shared Redis client.
type Store struct {
	rdb client
}

// Open connects to the Redis instance named by url (e.g.
// "redis://host:6379") and selects logical database db, verifying the
// connection is reachable.
func Open(url string, db int) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("kv: parse redis url: %w", err)
	}
	opts.DB = db
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("kv: connect to redis at %q: %w", opts.Addr, err)
	}
	return newStore(&redisClient{rdb: rdb}), nil
}

func newStore(c client) *Store {
	return &Store{rdb: c}
}

// Close releases the underlying Redis connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// ============================================================================
// Strings
// ============================================================================

// Get returns the value stored at key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.rdb.Get(ctx, key)
}

// Set stores value at key, overwriting any existing value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.rdb.Set(ctx, key, value, 0)
}

// SetWithTTL stores value at key with an expiry, used for rehydrated
// content so a cold project doesn't occupy the hot tier indefinitely.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttlSeconds int64) error {
	var ttl time.Duration
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return s.rdb.Set(ctx, key, value, ttl)
}

// StrLen returns the byte length of the value at key, or 0 if absent.
func (s *Store) StrLen(ctx context.Context, key string) (int, error) {
	n, err := s.rdb.StrLen(ctx, key)
	return int(n), err
}

// IncrBy atomically adds delta to the integer stored at key (treated as 0
// if absent) and returns the new value. Used for the participant size
// counter.
func (s *Store) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return s.rdb.IncrBy(ctx, key, delta)
}

// Delete removes key, if present. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key)
}

// RenameIfAbsent renames oldKey to newKey, failing with ErrExists if newKey
// is already present, or ErrNotFound if oldKey is absent. Used by the file
// store's rename path for its rename-if-not-exists guarantee.
func (s *Store) RenameIfAbsent(ctx context.Context, oldKey, newKey string) error {
	ok, err := s.rdb.RenameNX(ctx, oldKey, newKey)
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return nil
}

// ============================================================================
// Pub/Sub (the cross-instance room fan-out)
// ============================================================================

// Publish delivers payload to every subscriber of channel on every
// instance: Redis PUBLISH reaches all subscribed connections, including
// this process's own, so local and remote recipients take the same path.
// Per-subscriber delivery is best-effort: a slow subscriber drops messages
// rather than stalling the publisher.
func (s *Store) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.rdb.Publish(ctx, channel, payload)
}

// Subscribe registers a new subscriber for channel. The returned
// unsubscribe function must be called to release the subscription; the
// channel is closed once unsubscribe runs or the store is closed.
func (s *Store) Subscribe(channel string) (<-chan []byte, func()) {
	return s.rdb.Subscribe(channel)
}
