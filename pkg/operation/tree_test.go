// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package operation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/vfsops/pkg/vfs"
	"github.com/walteh/vfsops/pkg/vfs/memfs"
)

func seedTree(t *testing.T) *memfs.FS {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, fs.WriteFile("src/c.txt", []byte("c")))
	require.NoError(t, fs.WriteFile("src/a/b/deep.txt", []byte("deep")))
	require.NoError(t, fs.WriteFile("src/a/shallow.txt", []byte("shallow")))
	return fs
}

func TestCopyTree(t *testing.T) {
	ctx := context.Background()
	fs := seedTree(t)
	s := NewSession(SessionOptions{})
	defer s.Close()

	op := NewCopyTree(s, fs, "src", fs, "dst")
	require.NoError(t, op.Run(ctx))
	require.NoError(t, op.AssertSuccessful())

	for _, name := range []string{"c.txt", "a/shallow.txt", "a/b/deep.txt"} {
		srcData, err := fs.ReadFile("src/" + name)
		require.NoError(t, err)
		dstData, err := fs.ReadFile("dst/" + name)
		require.NoError(t, err, "copied file %s should exist", name)
		assert.Equal(t, srcData, dstData, "content of %s should match", name)
	}
}

func TestCopyTreeSourceChecks(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	require.NoError(t, fs.WriteFile("file.txt", nil))
	s := NewSession(SessionOptions{})
	defer s.Close()

	t.Run("missing_source", func(t *testing.T) {
		op := NewCopyTree(s, fs, "ghost", fs, "out")
		err := op.Run(ctx)
		require.Error(t, err)
		assert.True(t, vfs.IsNotFound(err))
	})

	t.Run("file_source", func(t *testing.T) {
		op := NewCopyTree(s, fs, "file.txt", fs, "out")
		err := op.Run(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, vfs.ErrNotDir)
	})
}

func TestCopyTreeOmitPatterns(t *testing.T) {
	ctx := context.Background()
	fs := seedTree(t)
	require.NoError(t, fs.WriteFile("src/a/skip.log", []byte("log")))
	s := NewSession(SessionOptions{})
	defer s.Close()

	op := NewCopyTree(s, fs, "src", fs, "dst").
		WithPolicy(Policy{OmitPatterns: []string{"**/*.log", "a/b/**"}})
	require.NoError(t, op.Run(ctx))

	_, err := fs.Entry(ctx, "dst/a/skip.log")
	assert.True(t, vfs.IsNotFound(err), "omit pattern should exclude the log file")
	_, err = fs.Entry(ctx, "dst/a/b/deep.txt")
	assert.True(t, vfs.IsNotFound(err), "patterns match source-relative paths")
	_, err = fs.Entry(ctx, "dst/a/shallow.txt")
	assert.NoError(t, err, "unmatched files still copy")
}

func TestCopyTreePackageMounts(t *testing.T) {
	ctx := context.Background()
	fs := seedTree(t)
	require.NoError(t, fs.MarkPackageMount("src/a/b"))
	s := NewSession(SessionOptions{})
	defer s.Close()

	op := NewCopyTree(s, fs, "src", fs, "dst").
		WithPolicy(Policy{Flags: FlagOmitPackageMounts})
	require.NoError(t, op.Run(ctx))

	_, err := fs.Entry(ctx, "dst/a/b")
	assert.True(t, vfs.IsNotFound(err), "package mounts are skipped entirely")
	_, err = fs.Entry(ctx, "dst/a/shallow.txt")
	assert.NoError(t, err)
}

func TestDeleteTreeOrder(t *testing.T) {
	ctx := context.Background()
	fs := seedTree(t)
	s := NewSession(SessionOptions{})
	defer s.Close()

	op := NewDeleteTree(s, fs, "src")
	require.NoError(t, op.Estimate(ctx))

	// Files in discovery order first, then directories deepest first, the
	// root last.
	var descs []string
	for _, child := range op.Operations() {
		descs = append(descs, child.Describe())
	}
	require.NotEmpty(t, descs)
	assert.Equal(t, "delete src", descs[len(descs)-1], "the root goes last")

	idx := func(name string) int {
		for i, d := range descs {
			if strings.HasSuffix(d, " "+name) {
				return i
			}
		}
		t.Fatalf("no child for %s in %v", name, descs)
		return -1
	}
	assert.Less(t, idx("src/a/b/deep.txt"), idx("src/a/b"), "files before their directory")
	assert.Less(t, idx("src/a/b"), idx("src/a"), "directories deepest first")
	assert.Less(t, idx("src/a"), idx("src"))

	require.NoError(t, op.Run(ctx))
	_, err := fs.Entry(ctx, "src")
	assert.True(t, vfs.IsNotFound(err))
}

func TestDeleteTreeSingleFile(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	require.NoError(t, fs.WriteFile("solo.txt", nil))
	s := NewSession(SessionOptions{})
	defer s.Close()

	op := NewDeleteTree(s, fs, "solo.txt")
	require.NoError(t, op.Run(ctx))
	_, err := fs.Entry(ctx, "solo.txt")
	assert.True(t, vfs.IsNotFound(err), "a file target degenerates to a plain delete")
}

func TestDeleteTreeKeepsSkippedSubtrees(t *testing.T) {
	ctx := context.Background()
	fs := seedTree(t)
	s := NewSession(SessionOptions{})
	defer s.Close()

	op := NewDeleteTree(s, fs, "src").
		WithPolicy(Policy{OmitPatterns: []string{"a/b/**", "a/b"}})
	require.NoError(t, op.Run(ctx))
	require.NoError(t, op.AssertSuccessful())

	_, err := fs.Entry(ctx, "src/a/b/deep.txt")
	assert.NoError(t, err, "omitted entries survive")
	_, err = fs.Entry(ctx, "src/a")
	assert.NoError(t, err, "ancestors of survivors must also survive")
	_, err = fs.Entry(ctx, "src/c.txt")
	assert.True(t, vfs.IsNotFound(err), "everything else is deleted")
}

func TestTransferTree(t *testing.T) {
	ctx := context.Background()
	src := seedTree(t)
	dst := memfs.New()
	s := NewSession(SessionOptions{})
	defer s.Close()

	op := NewTransferTree(s, src, "src", dst, "moved")
	require.NoError(t, op.Run(ctx))
	require.NoError(t, op.AssertSuccessful())

	for _, name := range []string{"c.txt", "a/shallow.txt", "a/b/deep.txt"} {
		_, err := dst.ReadFile("moved/" + name)
		assert.NoError(t, err, "%s should arrive at the destination", name)
	}
	_, err := src.Entry(ctx, "src")
	assert.True(t, vfs.IsNotFound(err), "the source tree is gone after a transfer")
}

func TestTransferTreeRollback(t *testing.T) {
	ctx := context.Background()
	src := seedTree(t)
	dst := memfs.New()
	s := NewSession(SessionOptions{})
	defer s.Close()

	op := NewTransferTree(s, src, "src", dst, "moved")
	require.NoError(t, op.Run(ctx))
	require.True(t, op.CanRollback(), "every transfer step carries an inverse")

	rb := op.CreateRollback()
	require.NotNil(t, rb)
	require.NoError(t, rb.Run(ctx))
	require.NoError(t, rb.AssertSuccessful())

	// The source tree is back, content intact.
	for _, name := range []string{"c.txt", "a/shallow.txt", "a/b/deep.txt"} {
		data, err := src.ReadFile("src/" + name)
		require.NoError(t, err, "%s should be restored", name)
		assert.NotEmpty(t, data)
	}
}

func TestTreeCycleGuard(t *testing.T) {
	ctx := context.Background()
	s := NewSession(SessionOptions{})
	defer s.Close()

	// A violation poisons only the offending subtree, whatever the error
	// policy; the recorded violation always joins the final aggregate.
	t.Run("default_policy_keeps_siblings", func(t *testing.T) {
		fs := &cyclicFS{FS: seedTree(t)}
		op := NewCopyTree(s, fs, "src", fs, "dst")
		err := op.Run(ctx)
		require.Error(t, err)
		assert.ErrorContains(t, err, "cycle")

		_, serr := fs.Entry(ctx, "dst/c.txt")
		assert.NoError(t, serr, "healthy siblings were still planned and copied")
		_, serr = fs.Entry(ctx, "dst/a/shallow.txt")
		assert.NoError(t, serr)
	})

	t.Run("continue_on_error", func(t *testing.T) {
		fs := &cyclicFS{FS: seedTree(t)}
		op := NewCopyTree(s, fs, "src", fs, "dst2").
			WithPolicy(Policy{Flags: FlagContinueOnError})
		err := op.Run(ctx)
		require.Error(t, err)
		assert.ErrorContains(t, err, "cycle")

		_, serr := fs.Entry(ctx, "dst2/c.txt")
		assert.NoError(t, serr)
	})
}

// cyclicFS makes one directory report itself as its own child, simulating a
// backend loop.
type cyclicFS struct {
	*memfs.FS
}

func (c *cyclicFS) Browse(ctx context.Context, name string) ([]*vfs.Entry, error) {
	entries, err := c.FS.Browse(ctx, name)
	if err != nil {
		return nil, err
	}
	if name == "src/a" {
		self, serr := c.FS.Entry(ctx, name)
		if serr != nil {
			return nil, serr
		}
		entries = append(entries, self)
	}
	return entries, nil
}
