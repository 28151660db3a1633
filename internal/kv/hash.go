package kv

import "context"

// HGet returns the value of field in the hash at key, or ErrNotFound. Used
// for the "last cursor" hash.
func (s *Store) HGet(ctx context.Context, key, field string) ([]byte, error) {
	return s.rdb.HGet(ctx, key, field)
}

// HSet sets field in the hash at key to value.
func (s *Store) HSet(ctx context.Context, key, field string, value []byte) error {
	return s.rdb.HSet(ctx, key, field, value)
}
