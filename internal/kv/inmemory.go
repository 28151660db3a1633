package kv

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"
)

// NewInMemory builds a Store over a single-process, in-memory backend:
// the same typed surface as a Redis-backed Store, including pub/sub, but
// with no network and no cross-process sharing. Tests of code that takes
// a *Store (the file store, the dispatcher, the handlers) use it to run
// against real Store semantics without a server.
func NewInMemory() *Store {
	return newStore(newMemoryClient())
}

// memoryClient is a hand-rolled in-memory client, standing in for a real
// Redis connection the way fakeStore stands in for metadata.Store
// elsewhere in this codebase. Integer values are kept as their decimal
// string representation, matching how Redis itself stores INCRBY targets,
// so Get/IncrBy agree on what a counter key looks like. Pub/sub delivery
// is synchronous per subscriber channel, dropping on a full buffer like
// the networked client does.
type memoryClient struct {
	mu     sync.Mutex
	str    map[string][]byte
	zsets  map[string]map[string]int64
	hashes map[string]map[string][]byte
	ps     *pubsub
}

func newMemoryClient() *memoryClient {
	return &memoryClient{
		str:    make(map[string][]byte),
		zsets:  make(map[string]map[string]int64),
		hashes: make(map[string]map[string][]byte),
		ps:     newPubsub(),
	}
}

func (f *memoryClient) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.str[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (f *memoryClient) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.str[key] = append([]byte(nil), value...)
	return nil
}

func (f *memoryClient) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.str, k)
	}
	return nil
}

func (f *memoryClient) StrLen(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.str[key])), nil
}

func (f *memoryClient) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cur int64
	if v, ok := f.str[key]; ok {
		cur, _ = strconv.ParseInt(string(v), 10, 64)
	}
	cur += delta
	f.str[key] = []byte(strconv.FormatInt(cur, 10))
	return cur, nil
}

func (f *memoryClient) RenameNX(_ context.Context, oldKey, newKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.str[oldKey]
	if !ok {
		return false, ErrNotFound
	}
	if _, exists := f.str[newKey]; exists {
		return false, nil
	}
	f.str[newKey] = v
	delete(f.str, oldKey)
	return true, nil
}

func (f *memoryClient) ZAdd(_ context.Context, key, member string, score int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	z, ok := f.zsets[key]
	if !ok {
		z = make(map[string]int64)
		f.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (f *memoryClient) ZRem(_ context.Context, key, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.zsets[key], member)
	return nil
}

func (f *memoryClient) ZScore(_ context.Context, key, member string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	score, ok := f.zsets[key][member]
	if !ok {
		return 0, ErrNotFound
	}
	return score, nil
}

func (f *memoryClient) ZRangeWithScores(_ context.Context, key string) ([]ZMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := make([]ZMember, 0, len(f.zsets[key]))
	for m, sc := range f.zsets[key] {
		members = append(members, ZMember{Member: m, Score: sc})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score < members[j].Score
		}
		return members[i].Member < members[j].Member
	})
	return members, nil
}

func (f *memoryClient) HGet(_ context.Context, key, field string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.hashes[key][field]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (f *memoryClient) HSet(_ context.Context, key, field string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		f.hashes[key] = h
	}
	h[field] = append([]byte(nil), value...)
	return nil
}

func (f *memoryClient) Publish(_ context.Context, channel string, payload []byte) error {
	f.ps.publish(channel, payload)
	return nil
}

func (f *memoryClient) Subscribe(channel string) (<-chan []byte, func()) {
	return f.ps.subscribe(channel)
}

func (f *memoryClient) Close() error {
	f.ps.closeAll()
	return nil
}
