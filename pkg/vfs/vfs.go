// Package vfs defines the backend abstraction the operation engine drives.
//
// A Backend is any store that can open byte streams, enumerate directories
// and mutate entries. The engine never touches a concrete filesystem
// directly; it only calls through these interfaces. Optional capabilities
// (same-backend rename) are modeled as extension interfaces with package
// level helpers, so callers can ask "can this backend do X" without type
// switching on concrete implementations.
package vfs

import (
	"context"
	"io"
	"time"

	"gitlab.com/tozd/go/errors"
)

// File is a byte stream opened at a path. Read or write support depends on
// the flags the stream was opened with; the unsupported direction returns
// ErrNotSupported.
type File interface {
	io.Reader
	io.Writer
	io.Closer
}

// Entry describes one path in a backend.
type Entry struct {
	// Name is the last path element.
	Name string
	// Path is the full slash-separated path of the entry.
	Path string
	// Size is the content length in bytes, 0 for directories.
	Size int64
	// Dir reports whether the entry is a directory.
	Dir bool
	// ModTime is the last modification time, zero if the backend does not
	// track it.
	ModTime time.Time
	// PackageMount marks directories that are auto-mounted package
	// contents. Tree planners can be told to skip these.
	PackageMount bool
}

// IsFile reports whether the entry is a regular file.
func (e *Entry) IsFile() bool {
	return !e.Dir
}

// Backend is the minimal contract the engine consumes.
//
// All paths are slash-separated and relative to the backend root, with "."
// naming the root itself (io/fs conventions).
type Backend interface {
	// Entry returns metadata for the named path, or ErrNotFound.
	Entry(ctx context.Context, name string) (*Entry, error)

	// Browse returns the entries of the named directory, ordered by name.
	Browse(ctx context.Context, name string) ([]*Entry, error)

	// OpenFile opens a byte stream at the named path. flag is a subset of
	// the os.O_* values: O_RDONLY, or O_WRONLY combined with O_CREATE and
	// one of O_EXCL / O_TRUNC.
	OpenFile(ctx context.Context, name string, flag int) (File, error)

	// MakeDir creates a single directory. The parent must exist.
	MakeDir(ctx context.Context, name string) error

	// Delete removes the named entry. Non-empty directories are only
	// removed when recurse is set.
	Delete(ctx context.Context, name string, recurse bool) error
}

// MoveBackend is implemented by backends that support renaming an entry
// within the same backend.
type MoveBackend interface {
	Backend

	// Move renames oldname to newname. The destination must not exist.
	Move(ctx context.Context, oldname, newname string) error
}

// CanMove reports whether the backend supports same-backend renames.
func CanMove(fsys Backend) bool {
	_, ok := fsys.(MoveBackend)
	return ok
}

// Move renames oldname to newname if the backend supports it.
func Move(ctx context.Context, fsys Backend, oldname, newname string) error {
	m, ok := fsys.(MoveBackend)
	if !ok {
		return errors.Errorf("move %q: %w", oldname, ErrNotSupported)
	}
	return m.Move(ctx, oldname, newname)
}

// Exists reports whether an entry exists at the named path.
func Exists(ctx context.Context, fsys Backend, name string) (bool, error) {
	_, err := fsys.Entry(ctx, name)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
