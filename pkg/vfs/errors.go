package vfs

import (
	"gitlab.com/tozd/go/errors"
)

var (
	// ErrNotFound is returned when no entry exists at a path.
	ErrNotFound = errors.New("entry not found")

	// ErrExists is returned when an entry already exists at a path.
	ErrExists = errors.New("entry already exists")

	// ErrNotDir is returned when a file is found where a directory is
	// required.
	ErrNotDir = errors.New("not a directory")

	// ErrIsDir is returned when a directory is found where a file is
	// required.
	ErrIsDir = errors.New("is a directory")

	// ErrNotEmpty is returned when deleting a non-empty directory without
	// recurse.
	ErrNotEmpty = errors.New("directory not empty")

	// ErrNotSupported is returned when a backend lacks a capability.
	ErrNotSupported = errors.New("operation not supported by backend")

	// ErrInvalidPath is returned for paths that are not clean,
	// slash-separated and rooted at ".".
	ErrInvalidPath = errors.New("invalid path")
)

// IsNotFound reports whether err indicates a missing entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsExists reports whether err indicates a colliding entry.
func IsExists(err error) bool {
	return errors.Is(err, ErrExists)
}

// IsNotSupported reports whether err indicates a missing backend capability.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}
