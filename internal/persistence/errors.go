package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a record with the same identity already exists.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrOverlap is returned when the store itself rejects two scheduled events
	// with overlapping time ranges.
	ErrOverlap = errors.New("persistence: overlapping scheduled event")
	// ErrConflictingWrite is returned when a transaction could not be committed
	// because of concurrent writers, even after retrying.
	ErrConflictingWrite = errors.New("persistence: conflicting concurrent write")
)
