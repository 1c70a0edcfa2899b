// Package localfs adapts a directory of the host filesystem to
// vfs.Backend. Paths are jailed to the root directory; anything resolving
// outside it is rejected before touching the OS.
package localfs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/walteh/vfsops/pkg/vfs"
	"gitlab.com/tozd/go/errors"
)

// FS is a backend rooted at an OS directory.
type FS struct {
	root string
}

var _ vfs.MoveBackend = (*FS)(nil)

// New returns a backend rooted at dir, which must exist.
func New(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Errorf("resolving root %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Errorf("checking root %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("root %q: %w", dir, vfs.ErrNotDir)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute OS path of the backend root.
func (f *FS) Root() string {
	return f.root
}

func (f *FS) resolve(name string) (string, string, error) {
	name, err := vfs.Normalize(name)
	if err != nil {
		return "", "", err
	}
	full := filepath.Join(f.root, filepath.FromSlash(name))
	if full != f.root && !strings.HasPrefix(full, f.root+string(filepath.Separator)) {
		return "", "", errors.Errorf("%q escapes the backend root: %w", name, vfs.ErrInvalidPath)
	}
	return full, name, nil
}

// Entry implements vfs.Backend.
func (f *FS) Entry(ctx context.Context, name string) (*vfs.Entry, error) {
	full, name, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, wrapOSError("stat", name, err)
	}
	return osEntry(name, info), nil
}

// Browse implements vfs.Backend.
func (f *FS) Browse(ctx context.Context, name string) ([]*vfs.Entry, error) {
	full, name, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(full)
	if err != nil {
		return nil, wrapOSError("browse", name, err)
	}

	out := make([]*vfs.Entry, 0, len(dirents))
	for _, de := range dirents {
		info, err := de.Info()
		if err != nil {
			return nil, wrapOSError("browse", name, err)
		}
		child := de.Name()
		if name != "." {
			child = name + "/" + child
		}
		out = append(out, osEntry(child, info))
	}
	slices.SortFunc(out, func(a, b *vfs.Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// OpenFile implements vfs.Backend.
func (f *FS) OpenFile(ctx context.Context, name string, flag int) (vfs.File, error) {
	full, name, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(full, flag, 0o644)
	if err != nil {
		return nil, wrapOSError("open", name, err)
	}
	return file, nil
}

// MakeDir implements vfs.Backend.
func (f *FS) MakeDir(ctx context.Context, name string) error {
	full, name, err := f.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Mkdir(full, 0o755); err != nil {
		return wrapOSError("mkdir", name, err)
	}
	return nil
}

// Delete implements vfs.Backend.
func (f *FS) Delete(ctx context.Context, name string, recurse bool) error {
	full, name, err := f.resolve(name)
	if err != nil {
		return err
	}
	if name == "." {
		return errors.Errorf("delete %q: %w", name, vfs.ErrInvalidPath)
	}
	if recurse {
		if _, err := os.Stat(full); err != nil {
			return wrapOSError("delete", name, err)
		}
		if err := os.RemoveAll(full); err != nil {
			return wrapOSError("delete", name, err)
		}
		return nil
	}
	if err := os.Remove(full); err != nil {
		return wrapOSError("delete", name, err)
	}
	return nil
}

// Move implements vfs.MoveBackend.
func (f *FS) Move(ctx context.Context, oldname, newname string) error {
	oldFull, oldname, err := f.resolve(oldname)
	if err != nil {
		return err
	}
	newFull, newname, err := f.resolve(newname)
	if err != nil {
		return err
	}
	// os.Rename replaces existing files silently; the engine expects the
	// backend to refuse instead.
	if _, err := os.Stat(newFull); err == nil {
		return errors.Errorf("move to %q: %w", newname, vfs.ErrExists)
	}
	if err := os.Rename(oldFull, newFull); err != nil {
		return wrapOSError("move", oldname, err)
	}
	return nil
}

func osEntry(name string, info fs.FileInfo) *vfs.Entry {
	size := info.Size()
	if info.IsDir() {
		size = 0
	}
	return &vfs.Entry{
		Name:    vfs.Base(name),
		Path:    name,
		Size:    size,
		Dir:     info.IsDir(),
		ModTime: info.ModTime(),
	}
}

func wrapOSError(op, name string, err error) error {
	switch {
	case os.IsNotExist(err):
		return errors.Errorf("%s %q: %w", op, name, vfs.ErrNotFound)
	case os.IsExist(err):
		return errors.Errorf("%s %q: %w", op, name, vfs.ErrExists)
	default:
		return errors.Errorf("%s %q: %w", op, name, err)
	}
}
