package kv

import (
	"context"
	"strings"
)

// ZMember is one (member, score) pair returned by ZScan, in ascending score
// order.
type ZMember struct {
	Member string
	Score  int64
}

// ZAdd inserts or updates member in the sorted set at key with the given
// score.
func (s *Store) ZAdd(ctx context.Context, key, member string, score int64) error {
	return s.rdb.ZAdd(ctx, key, member, score)
}

// ZRem removes member from the sorted set at key. Removing an absent
// member is not an error.
func (s *Store) ZRem(ctx context.Context, key, member string) error {
	return s.rdb.ZRem(ctx, key, member)
}

// ZScore returns member's score in the sorted set at key, or ErrNotFound.
func (s *Store) ZScore(ctx context.Context, key, member string) (int64, error) {
	return s.rdb.ZScore(ctx, key, member)
}

// ZScan returns all members of the sorted set at key, in ascending score
// order.
func (s *Store) ZScan(ctx context.Context, key string) ([]ZMember, error) {
	return s.rdb.ZRangeWithScores(ctx, key)
}

// ZScanPrefix returns all members of the sorted set at key whose member
// name starts with memberPrefix, in ascending score order.
func (s *Store) ZScanPrefix(ctx context.Context, key, memberPrefix string) ([]ZMember, error) {
	all, err := s.ZScan(ctx, key)
	if err != nil {
		return nil, err
	}
	var matched []ZMember
	for _, m := range all {
		if strings.HasPrefix(m.Member, memberPrefix) {
			matched = append(matched, m)
		}
	}
	return matched, nil
}
