// Package cache provides memoization with explicit invalidation keyed by
// (function-identity, argument-tuple, entity-scope), backed by
// dgraph-io/ristretto/v2 for high-throughput reads.
//
// Callers build a Key and call GetOrLoad; writers call Invalidate with the
// same key, or InvalidateScope to drop every key sharing an entity scope
// (e.g. every memoization touching one project).
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Key identifies one memoized call: a function name plus its argument
// tuple, rendered as a stable string.
type Key struct {
	Func string
	Args []any
}

func (k Key) String() string {
	return fmt.Sprintf("%s(%v)", k.Func, k.Args)
}

// Cache wraps a ristretto store plus a scope index so a single entity
// (e.g. one project id) can have every memoization that mentions it
// invalidated in one call, keeping the invalidation list co-located with
// the write path that needs it.
type Cache struct {
	rc  *ristretto.Cache[string, any]
	ttl time.Duration

	mu     sync.Mutex
	scopes map[string]map[string]struct{} // scope -> set of cache keys
}

// Config configures the underlying ristretto cache.
type Config struct {
	NumCounters int64
	MaxCost     int64
	TTL         time.Duration
}

// New builds a Cache from cfg.
func New(cfg Config) (*Cache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: new ristretto cache: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{rc: rc, ttl: ttl, scopes: make(map[string]map[string]struct{})}, nil
}

// Close releases the underlying ristretto cache.
func (c *Cache) Close() { c.rc.Close() }

// GetOrLoad returns the memoized value for key, calling load and storing
// its result (under every scope in scopes) on a miss. load errors are never
// cached.
func GetOrLoad[T any](ctx context.Context, c *Cache, key Key, scopes []string, load func(context.Context) (T, error)) (T, error) {
	ks := key.String()
	if v, ok := c.rc.Get(ks); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	val, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	c.rc.SetWithTTL(ks, val, 1, c.ttl)
	c.rc.Wait()

	c.mu.Lock()
	for _, scope := range scopes {
		set, ok := c.scopes[scope]
		if !ok {
			set = make(map[string]struct{})
			c.scopes[scope] = set
		}
		set[ks] = struct{}{}
	}
	c.mu.Unlock()

	return val, nil
}

// Invalidate drops the single memoized value for key.
func (c *Cache) Invalidate(key Key) {
	c.rc.Del(key.String())
}

// InvalidateScope drops every memoized key that was stored under scope,
// e.g. a permission write invalidating every checkPerm/accessibleTo/
// accessedBy memoization that mentioned the changed project or viewer.
func (c *Cache) InvalidateScope(scope string) {
	c.mu.Lock()
	keys := c.scopes[scope]
	delete(c.scopes, scope)
	c.mu.Unlock()

	for ks := range keys {
		c.rc.Del(ks)
	}
}

// ProjectScope and ViewerScope are the two entity scopes permission writes
// invalidate: a project's accessedBy/checkPerm memoizations, and a
// viewer's accessibleTo/checkPerm memoizations.
func ProjectScope(projectID int64) string { return fmt.Sprintf("project:%d", projectID) }
func ViewerScope(viewerParticipantID int64) string {
	return fmt.Sprintf("viewer:%d", viewerParticipantID)
}
func ParticipantScope(participantID int64) string { return fmt.Sprintf("participant:%d", participantID) }
