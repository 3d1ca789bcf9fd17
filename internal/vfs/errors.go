package vfs

import "errors"

// Error kinds returned by the virtual filesystem. Callers distinguish
// failure classes with errors.Is; every error returned by this package
// wraps exactly one of these sentinels.
var (
	// ErrInvalidPath indicates a path that cannot be normalized (empty,
	// traversal segments, trailing slash, control characters).
	ErrInvalidPath = errors.New("invalid path")

	// ErrNotFound indicates a missing entry, or a content match that
	// found no occurrences.
	ErrNotFound = errors.New("not found")

	// ErrPathConflict indicates a collision with an existing incompatible
	// entry (file vs directory clash, rename target exists).
	ErrPathConflict = errors.New("path conflict")

	// ErrInvalidOperation indicates a structurally disallowed operation,
	// such as deleting the root or renaming a directory into itself.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrAmbiguousMatch indicates a string replacement whose target
	// occurs more than once.
	ErrAmbiguousMatch = errors.New("ambiguous match")

	// ErrMalformedSnapshot indicates snapshot input that violates the
	// tree invariants. Decoding aborts entirely on this error.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)
