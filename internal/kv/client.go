package kv

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// client is the subset of Redis commands Store needs. Production use is
// backed by redisClient (a thin adapter over *redis.Client); NewInMemory
// swaps in memoryClient, a hand-rolled in-memory implementation of the
// same interface, following the same fake-store pattern used for
// internal/permission and internal/feedback's tests rather than a mocking
// framework.
type client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	StrLen(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	RenameNX(ctx context.Context, oldKey, newKey string) (bool, error)
	ZAdd(ctx context.Context, key, member string, score int64) error
	ZRem(ctx context.Context, key, member string) error
	ZScore(ctx context.Context, key, member string) (int64, error)
	ZRangeWithScores(ctx context.Context, key string) ([]ZMember, error)
	HGet(ctx context.Context, key, field string) ([]byte, error)
	HSet(ctx context.Context, key, field string, value []byte) error
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(channel string) (<-chan []byte, func())
	Close() error
}

// redisClient adapts *redis.Client to client, translating redis.Nil (and
// RENAMENX's "no such key" error on a missing source) into this package's
// ErrNotFound so Store's methods never need to know which backend they
// are talking to.
type redisClient struct {
	rdb *redis.Client
}

func (c *redisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return val, err
}

func (c *redisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *redisClient) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *redisClient) StrLen(ctx context.Context, key string) (int64, error) {
	return c.rdb.StrLen(ctx, key).Result()
}

func (c *redisClient) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return c.rdb.IncrBy(ctx, key, delta).Result()
}

func (c *redisClient) RenameNX(ctx context.Context, oldKey, newKey string) (bool, error) {
	ok, err := c.rdb.RenameNX(ctx, oldKey, newKey).Result()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return false, ErrNotFound
		}
		return false, err
	}
	return ok, nil
}

func (c *redisClient) ZAdd(ctx context.Context, key, member string, score int64) error {
	return c.rdb.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member}).Err()
}

func (c *redisClient) ZRem(ctx context.Context, key, member string) error {
	return c.rdb.ZRem(ctx, key, member).Err()
}

func (c *redisClient) ZScore(ctx context.Context, key, member string) (int64, error) {
	score, err := c.rdb.ZScore(ctx, key, member).Result()
	if err == redis.Nil {
		return 0, ErrNotFound
	}
	return int64(score), err
}

// ZRangeWithScores returns every member of the sorted set at key, in
// ascending score order; Redis sorted sets maintain that order natively,
// so no client-side reordering is needed.
func (c *redisClient) ZRangeWithScores(ctx context.Context, key string) ([]ZMember, error) {
	zs, err := c.rdb.ZRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	members := make([]ZMember, len(zs))
	for i, z := range zs {
		members[i] = ZMember{Member: z.Member.(string), Score: int64(z.Score)}
	}
	return members, nil
}

func (c *redisClient) HGet(ctx context.Context, key, field string) ([]byte, error) {
	val, err := c.rdb.HGet(ctx, key, field).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return val, err
}

func (c *redisClient) HSet(ctx context.Context, key, field string, value []byte) error {
	return c.rdb.HSet(ctx, key, field, value).Err()
}

func (c *redisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a dedicated Redis SUBSCRIBE connection for channel and
// pumps its messages into a buffered Go channel, dropping on overflow so a
// slow consumer never stalls the pump. The returned cancel closes the
// subscription; the Go channel closes once the pump drains.
func (c *redisClient) Subscribe(channel string) (<-chan []byte, func()) {
	ps := c.rdb.Subscribe(context.Background(), channel)
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			default:
			}
		}
	}()
	return out, func() { _ = ps.Close() }
}

func (c *redisClient) Close() error {
	return c.rdb.Close()
}
