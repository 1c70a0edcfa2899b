// Package memfs provides a goroutine-safe in-memory vfs.Backend. It backs
// the engine's test suite and is handy as a scratch target for manifest dry
// runs.
package memfs

import (
	"bytes"
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/walteh/vfsops/pkg/vfs"
	"gitlab.com/tozd/go/errors"
)

// FS is an in-memory backend. Directories are explicit: creating a file
// requires its parent directory to exist, mirroring how real backends
// behave under the engine's CreateDirectory walk.
type FS struct {
	mu    sync.RWMutex
	nodes map[string]*node
}

type node struct {
	data     []byte
	dir      bool
	modTime  time.Time
	pkgMount bool
}

// New returns an empty filesystem containing only the root directory.
func New() *FS {
	return &FS{
		nodes: map[string]*node{
			".": {dir: true, modTime: time.Now()},
		},
	}
}

var _ vfs.MoveBackend = (*FS)(nil)

// Entry implements vfs.Backend.
func (f *FS) Entry(ctx context.Context, name string) (*vfs.Entry, error) {
	name, err := vfs.Normalize(name)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	n, ok := f.nodes[name]
	if !ok {
		return nil, errors.Errorf("stat %q: %w", name, vfs.ErrNotFound)
	}
	return f.entryLocked(name, n), nil
}

// Browse implements vfs.Backend.
func (f *FS) Browse(ctx context.Context, name string) ([]*vfs.Entry, error) {
	name, err := vfs.Normalize(name)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	n, ok := f.nodes[name]
	if !ok {
		return nil, errors.Errorf("browse %q: %w", name, vfs.ErrNotFound)
	}
	if !n.dir {
		return nil, errors.Errorf("browse %q: %w", name, vfs.ErrNotDir)
	}

	var out []*vfs.Entry
	for p, child := range f.nodes {
		if p == "." || vfs.Parent(p) != name {
			continue
		}
		out = append(out, f.entryLocked(p, child))
	}
	slices.SortFunc(out, func(a, b *vfs.Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// OpenFile implements vfs.Backend.
func (f *FS) OpenFile(ctx context.Context, name string, flag int) (vfs.File, error) {
	name, err := vfs.Normalize(name)
	if err != nil {
		return nil, err
	}

	if flag&(os.O_WRONLY|os.O_RDWR) == 0 {
		return f.openRead(name)
	}
	return f.openWrite(name, flag)
}

func (f *FS) openRead(name string) (vfs.File, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n, ok := f.nodes[name]
	if !ok {
		return nil, errors.Errorf("open %q: %w", name, vfs.ErrNotFound)
	}
	if n.dir {
		return nil, errors.Errorf("open %q: %w", name, vfs.ErrIsDir)
	}
	// Readers see a snapshot of the content at open time.
	return &reader{r: bytes.NewReader(append([]byte(nil), n.data...))}, nil
}

func (f *FS) openWrite(name string, flag int) (vfs.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[name]
	if ok {
		if n.dir {
			return nil, errors.Errorf("open %q: %w", name, vfs.ErrIsDir)
		}
		if flag&os.O_EXCL != 0 {
			return nil, errors.Errorf("open %q: %w", name, vfs.ErrExists)
		}
	} else {
		if flag&os.O_CREATE == 0 {
			return nil, errors.Errorf("open %q: %w", name, vfs.ErrNotFound)
		}
		parent, pok := f.nodes[vfs.Parent(name)]
		if !pok {
			return nil, errors.Errorf("open %q: parent: %w", name, vfs.ErrNotFound)
		}
		if !parent.dir {
			return nil, errors.Errorf("open %q: parent: %w", name, vfs.ErrNotDir)
		}
	}
	// Content is committed on Close so concurrent readers never observe a
	// half-written file.
	return &writer{fs: f, name: name}, nil
}

// MakeDir implements vfs.Backend.
func (f *FS) MakeDir(ctx context.Context, name string) error {
	name, err := vfs.Normalize(name)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.nodes[name]; ok {
		return errors.Errorf("mkdir %q: %w", name, vfs.ErrExists)
	}
	parent, ok := f.nodes[vfs.Parent(name)]
	if !ok {
		return errors.Errorf("mkdir %q: parent: %w", name, vfs.ErrNotFound)
	}
	if !parent.dir {
		return errors.Errorf("mkdir %q: parent: %w", name, vfs.ErrNotDir)
	}
	f.nodes[name] = &node{dir: true, modTime: time.Now()}
	return nil
}

// Delete implements vfs.Backend.
func (f *FS) Delete(ctx context.Context, name string, recurse bool) error {
	name, err := vfs.Normalize(name)
	if err != nil {
		return err
	}
	if name == "." {
		return errors.Errorf("delete %q: %w", name, vfs.ErrInvalidPath)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[name]
	if !ok {
		return errors.Errorf("delete %q: %w", name, vfs.ErrNotFound)
	}
	if n.dir {
		var children []string
		for p := range f.nodes {
			if vfs.IsAncestor(name, p) {
				children = append(children, p)
			}
		}
		if len(children) > 0 && !recurse {
			return errors.Errorf("delete %q: %w", name, vfs.ErrNotEmpty)
		}
		for _, p := range children {
			delete(f.nodes, p)
		}
	}
	delete(f.nodes, name)
	return nil
}

// Move implements vfs.MoveBackend.
func (f *FS) Move(ctx context.Context, oldname, newname string) error {
	oldname, err := vfs.Normalize(oldname)
	if err != nil {
		return err
	}
	newname, err = vfs.Normalize(newname)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[oldname]
	if !ok {
		return errors.Errorf("move %q: %w", oldname, vfs.ErrNotFound)
	}
	if _, ok := f.nodes[newname]; ok {
		return errors.Errorf("move to %q: %w", newname, vfs.ErrExists)
	}
	parent, ok := f.nodes[vfs.Parent(newname)]
	if !ok || !parent.dir {
		return errors.Errorf("move to %q: parent: %w", newname, vfs.ErrNotFound)
	}

	if n.dir {
		prefix := oldname + "/"
		moved := map[string]*node{}
		for p, child := range f.nodes {
			if strings.HasPrefix(p, prefix) {
				moved[newname+"/"+strings.TrimPrefix(p, prefix)] = child
				delete(f.nodes, p)
			}
		}
		for p, child := range moved {
			f.nodes[p] = child
		}
	}
	f.nodes[newname] = n
	delete(f.nodes, oldname)
	return nil
}

// MarkPackageMount flags an existing directory as auto-mounted package
// content.
func (f *FS) MarkPackageMount(name string) error {
	name, err := vfs.Normalize(name)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[name]
	if !ok {
		return errors.Errorf("mark %q: %w", name, vfs.ErrNotFound)
	}
	if !n.dir {
		return errors.Errorf("mark %q: %w", name, vfs.ErrNotDir)
	}
	n.pkgMount = true
	return nil
}

// WriteFile creates or replaces a file, creating missing parent
// directories. Test convenience.
func (f *FS) WriteFile(name string, data []byte) error {
	name, err := vfs.Normalize(name)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, dir := range vfs.Ancestors(vfs.Parent(name)) {
		if n, ok := f.nodes[dir]; ok {
			if !n.dir {
				return errors.Errorf("write %q: %w", name, vfs.ErrNotDir)
			}
			continue
		}
		f.nodes[dir] = &node{dir: true, modTime: time.Now()}
	}
	f.nodes[name] = &node{data: append([]byte(nil), data...), modTime: time.Now()}
	return nil
}

// ReadFile returns a copy of a file's content. Test convenience.
func (f *FS) ReadFile(name string) ([]byte, error) {
	name, err := vfs.Normalize(name)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	n, ok := f.nodes[name]
	if !ok {
		return nil, errors.Errorf("read %q: %w", name, vfs.ErrNotFound)
	}
	if n.dir {
		return nil, errors.Errorf("read %q: %w", name, vfs.ErrIsDir)
	}
	return append([]byte{}, n.data...), nil
}

func (f *FS) entryLocked(name string, n *node) *vfs.Entry {
	return &vfs.Entry{
		Name:         vfs.Base(name),
		Path:         name,
		Size:         int64(len(n.data)),
		Dir:          n.dir,
		ModTime:      n.modTime,
		PackageMount: n.pkgMount,
	}
}

type reader struct {
	r *bytes.Reader
}

func (r *reader) Read(p []byte) (int, error) { return r.r.Read(p) }

func (r *reader) Write(p []byte) (int, error) {
	return 0, errors.WithStack(vfs.ErrNotSupported)
}

func (r *reader) Close() error { return nil }

type writer struct {
	fs     *FS
	name   string
	buf    bytes.Buffer
	closed bool
}

func (w *writer) Read(p []byte) (int, error) {
	return 0, errors.WithStack(vfs.ErrNotSupported)
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.Errorf("write %q: file already closed", w.name)
	}
	return w.buf.Write(p)
}

func (w *writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()
	// Commit a copy, non-nil even for a zero-byte file, so empty files
	// round-trip as empty content rather than absent content.
	w.fs.nodes[w.name] = &node{data: append([]byte{}, w.buf.Bytes()...), modTime: time.Now()}
	return nil
}
