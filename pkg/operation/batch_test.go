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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/vfsops/pkg/vfs"
	"github.com/walteh/vfsops/pkg/vfs/memfs"
)

func TestBatchRunsInOrder(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	s := NewSession(SessionOptions{})
	defer s.Close()

	// Each step depends on the previous one having run.
	batch := NewBatch(s, "ordered",
		NewCreateDirectory(s, fs, "a"),
		NewCreateDirectory(s, fs, "a/b"),
		NewMove(s, fs, "a/b", "a/c"),
	)

	require.NoError(t, batch.Run(ctx))
	require.NoError(t, batch.AssertSuccessful())

	_, err := fs.Entry(ctx, "a/c")
	assert.NoError(t, err)
	for _, child := range batch.Operations() {
		assert.True(t, child.State().Succeeded(), "%s should have succeeded", child.Describe())
	}
}

func TestBatchStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	s := NewSession(SessionOptions{})
	defer s.Close()

	batch := NewBatch(s, "stops").Add(
		NewDelete(s, fs, "missing", false),
		NewCreateDirectory(s, fs, "never"),
	)

	require.Error(t, batch.Run(ctx))
	assert.Equal(t, StateErrored, batch.State())

	_, err := fs.Entry(ctx, "never")
	assert.True(t, vfs.IsNotFound(err), "children after the failure must not run")
}

func TestBatchContinueOnError(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	s := NewSession(SessionOptions{})
	defer s.Close()

	batch := NewBatch(s, "aggregate").
		WithPolicy(Policy{Flags: FlagContinueOnError}).
		Add(
			NewDelete(s, fs, "missing-one", false),
			NewCreateDirectory(s, fs, "made"),
			NewDelete(s, fs, "missing-two", false),
		)

	err := batch.Run(ctx)
	require.Error(t, err)
	assert.ErrorContains(t, err, "2 of 3 children failed")

	_, serr := fs.Entry(ctx, "made")
	assert.NoError(t, serr, "healthy children still run")
}

func TestBatchIdempotentRerun(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	s := NewSession(SessionOptions{})
	defer s.Close()

	okDir := NewCreateDirectory(s, fs, "ok")
	// The failing child only breaks at run time: its destination parent
	// never exists.
	require.NoError(t, fs.WriteFile("seed", payload(4)))
	failing := NewCopyFile(s, fs, "seed", fs, "nodir/out")
	batch := NewBatch(s, "rerun", okDir, failing)

	require.Error(t, batch.Run(ctx))
	require.Equal(t, StateCompleted, okDir.State())

	// A batch in a terminal state re-runs as a silent no-op; completed
	// children are never executed twice.
	require.NoError(t, fs.Delete(ctx, "ok", false))
	require.NoError(t, batch.Run(ctx))
	_, err := fs.Entry(ctx, "ok")
	assert.Error(t, err, "the no-op re-run must not recreate anything")
}

func TestBatchDeferredEstimation(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	s := NewSession(SessionOptions{})
	defer s.Close()

	// The move only becomes viable once the mkdir has run; deferring its
	// estimation keeps an up-front batch estimate from failing.
	mk := NewCreateDirectory(s, fs, "a/b")
	mv := NewMove(s, fs, "a/b", "a/c").
		WithPolicy(Policy{Estimation: EstimationDeferred})
	batch := NewBatch(s, "deferred", mk, mv)

	require.NoError(t, batch.Estimate(ctx))
	assert.Equal(t, StateEstimated, mk.State())
	assert.Equal(t, StateInitialized, mv.State(), "deferred children wait for their run")

	require.NoError(t, batch.Run(ctx))
	require.NoError(t, batch.AssertSuccessful())
	_, err := fs.Entry(ctx, "a/c")
	assert.NoError(t, err)
}

func TestBatchProgressAggregates(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	require.NoError(t, fs.WriteFile("a", payload(100)))
	require.NoError(t, fs.WriteFile("b", payload(50)))
	s := NewSession(SessionOptions{})
	defer s.Close()

	batch := NewBatch(s, "sum",
		NewCopyFile(s, fs, "a", fs, "a2"),
		NewCopyFile(s, fs, "b", fs, "b2"),
	)
	require.NoError(t, batch.Estimate(ctx))

	_, total := batch.Progress()
	assert.Equal(t, int64(150), total, "batch total is the sum of child totals")

	require.NoError(t, batch.Run(ctx))
	done, _ := batch.Progress()
	assert.Equal(t, int64(150), done)
}

func TestBatchRollback(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	require.NoError(t, fs.WriteFile("src", payload(10)))
	s := NewSession(SessionOptions{})
	defer s.Close()

	batch := NewBatch(s, "undoable",
		NewCreateDirectory(s, fs, "d"),
		NewCopyFile(s, fs, "src", fs, "d/copy"),
	)
	require.NoError(t, batch.Run(ctx))
	require.True(t, batch.CanRollback())

	rb := batch.CreateRollback()
	require.NotNil(t, rb)
	require.NoError(t, rb.Run(ctx))
	require.NoError(t, rb.AssertSuccessful())

	// Reverse order: the copy goes first, then the directory is removable.
	_, err := fs.Entry(ctx, "d")
	assert.True(t, vfs.IsNotFound(err), "rollback unwinds in reverse order")
	_, err = fs.Entry(ctx, "src")
	assert.NoError(t, err)
}

func TestBatchRollbackAllOrNothing(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	require.NoError(t, fs.WriteFile("victim", payload(5)))
	s := NewSession(SessionOptions{})
	defer s.Close()

	batch := NewBatch(s, "mixed",
		NewCreateDirectory(s, fs, "d"),
		// Deleting a file is irreversible.
		NewDelete(s, fs, "victim", false),
	)
	require.NoError(t, batch.Run(ctx))

	assert.False(t, batch.CanRollback(), "one irreversible child poisons the batch")
	assert.Nil(t, batch.CreateRollback())
}

func TestBatchEmptyRollback(t *testing.T) {
	ctx := context.Background()
	s := NewSession(SessionOptions{})
	defer s.Close()

	batch := NewBatch(s, "empty")
	require.NoError(t, batch.Run(ctx))
	assert.Nil(t, batch.CreateRollback(), "nothing completed, nothing to undo")
}

func TestRunWithRollback(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	require.NoError(t, fs.WriteFile("src", payload(20)))
	s := NewSession(SessionOptions{})
	defer s.Close()

	batch := NewBatch(s, "tx",
		NewCopyFile(s, fs, "src", fs, "staged"),
		// Estimation passes but the run fails: the destination parent
		// directory never exists.
		NewCopyFile(s, fs, "src", fs, "nodir/out"),
	)

	err := RunWithRollback(ctx, batch)
	require.Error(t, err, "the original failure is always surfaced")

	_, serr := fs.Entry(ctx, "staged")
	assert.True(t, vfs.IsNotFound(serr), "completed work is rolled back on failure")
}
