package filestore

import "errors"

var (
	// ErrFileExists is returned by Create/rename when the destination
	// name is already present.
	ErrFileExists = errors.New("filestore: file already exists")
	// ErrFileNotFound is returned when an operation targets an absent
	// filename.
	ErrFileNotFound = errors.New("filestore: file not found")
	// ErrTotalSizeExceeded is returned by Save when the projected total
	// would exceed the project's size cap.
	ErrTotalSizeExceeded = errors.New("filestore: total size exceeded")
	// ErrProjectFileMissing is returned by GetContent when rehydration
	// cannot find the expected object in the cold tier.
	ErrProjectFileMissing = errors.New("filestore: project file missing from object store")
)
