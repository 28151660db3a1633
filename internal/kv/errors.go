package kv

import "errors"

// ErrNotFound is returned by Get/HGet/ZScore when the key or member is absent.
var ErrNotFound = errors.New("kv: not found")

// ErrExists is returned by RenameIfAbsent when the destination key already
// exists, so the file store's rename path refuses a name race rather than
// silently overwriting the winner.
var ErrExists = errors.New("kv: destination key already exists")
