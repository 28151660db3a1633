package metadata

import "errors"

// Sentinel errors returned by Store implementations, matched by handlers
// with errors.Is and translated to the §7 wire error kinds at the
// dispatcher's edge.
var (
	ErrNotFound      = errors.New("metadata: not found")
	ErrAlreadyExists = errors.New("metadata: already exists")
)
