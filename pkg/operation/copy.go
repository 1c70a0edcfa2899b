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
	"io"
	"os"

	"github.com/walteh/vfsops/pkg/pool"
	"github.com/walteh/vfsops/pkg/vfs"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
)

// copyQueueDepth bounds the reader→writer hand-off queue. The real
// backpressure limit is the pool budget; the queue just decouples the two
// sides enough to pipeline.
const copyQueueDepth = 4

// 📄 CopyFile streams one file between backends through the session's block
// pool. Run pairs a reader goroutine with the calling goroutine: the reader
// allocates blocks, fills them from the source and hands them over a
// bounded queue; the caller writes them to the destination, accumulates
// progress and returns every consumed block to the pool. Blocks are written
// in read order. Cancellation is observed at the top of both loops, and all
// in-flight blocks are returned to the pool on every exit path.
type CopyFile struct {
	base

	srcFS vfs.Backend
	src   string
	dstFS vfs.Backend
	dst   string

	created   bool
	overwrote bool
}

var _ Operation = (*CopyFile)(nil)

// NewCopyFile builds the operation against a session. Source and
// destination may live in different backends.
func NewCopyFile(s *Session, srcFS vfs.Backend, src string, dstFS vfs.Backend, dst string) *CopyFile {
	op := &CopyFile{srcFS: srcFS, src: src, dstFS: dstFS, dst: dst}
	op.base.init(s, "copy "+src+" -> "+dst)
	return op
}

// WithPolicy overrides the session policy for this operation.
func (op *CopyFile) WithPolicy(p Policy) *CopyFile {
	op.applyPolicy(p)
	return op
}

// Estimate implements Operation.
func (op *CopyFile) Estimate(ctx context.Context) error {
	return op.driveEstimate(ctx, op, op.check)
}

// Run implements Operation.
func (op *CopyFile) Run(ctx context.Context) error {
	return op.driveRun(ctx, op, op.check, op.apply)
}

// Overwritten reports whether the copy replaced a pre-existing destination.
func (op *CopyFile) Overwritten() bool {
	return op.overwrote
}

func (op *CopyFile) check(ctx context.Context) error {
	src, err := vfs.Normalize(op.src)
	if err != nil {
		return err
	}
	dst, err := vfs.Normalize(op.dst)
	if err != nil {
		return err
	}
	op.src, op.dst = src, dst

	entry, err := op.srcFS.Entry(ctx, op.src)
	if err != nil {
		if vfs.IsNotFound(err) {
			return op.missingSource(op.src)
		}
		return err
	}
	if entry.Dir {
		return errors.Errorf("source %q: %w", op.src, vfs.ErrIsDir)
	}
	op.setTotal(entry.Size)

	willOverwrite := false
	dstEntry, err := op.dstFS.Entry(ctx, op.dst)
	switch {
	case err == nil && dstEntry.Dir:
		return errors.Errorf("destination %q: %w", op.dst, vfs.ErrIsDir)
	case err == nil:
		overwrite, perr := op.existingDestination(op.dst)
		if perr != nil {
			return perr
		}
		willOverwrite = overwrite
	case !vfs.IsNotFound(err):
		return err
	}

	op.canRollback.Store(op.rollbackEnabled() && !willOverwrite)
	return nil
}

func (op *CopyFile) apply(ctx context.Context) (err error) {
	r, err := op.srcFS.OpenFile(ctx, op.src, os.O_RDONLY)
	if err != nil {
		// Vanished since the viability check; same policy decision.
		if vfs.IsNotFound(err) {
			return op.missingSource(op.src)
		}
		return errors.Errorf("opening source %q: %w", op.src, err)
	}
	defer r.Close()

	flag := os.O_WRONLY | os.O_CREATE

	// Destination state may have changed since estimation; decide
	// create-new vs truncate from what is there right now.
	dstEntry, derr := op.dstFS.Entry(ctx, op.dst)
	switch {
	case derr == nil && dstEntry.Dir:
		return errors.Errorf("destination %q: %w", op.dst, vfs.ErrIsDir)
	case derr == nil:
		overwrite, perr := op.existingDestination(op.dst)
		if perr != nil {
			return perr
		}
		_ = overwrite // only the overwrite policy reaches here
		op.overwrote = true
		op.canRollback.Store(false)
		flag |= os.O_TRUNC
	case vfs.IsNotFound(derr):
		flag |= os.O_EXCL
	default:
		return derr
	}

	w, err := op.dstFS.OpenFile(ctx, op.dst, flag)
	if err != nil {
		if vfs.IsExists(err) {
			// Lost the race after the re-check above.
			_, perr := op.existingDestination(op.dst)
			return perr
		}
		return errors.Errorf("opening destination %q: %w", op.dst, err)
	}
	if !op.overwrote {
		op.created = true
	}
	defer func() {
		if w != nil {
			_ = w.Close()
		}
	}()

	op.startProgress()
	alloc := op.session.Pool()
	blocks := make(chan *pool.Block, copyQueueDepth)

	// A dedicated cancel lets the writer stop a reader that is blocked on
	// allocation or on the queue.
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(cctx)
	g.Go(func() error {
		defer close(blocks)
		return op.produce(gctx, r, alloc, blocks)
	})

	werr := op.consume(gctx, w, alloc, blocks)
	if werr != nil {
		cancel()
	}
	rerr := g.Wait()

	// The producer closed the queue on exit; everything it left behind
	// goes back to the pool before we surface any error.
	for blk := range blocks {
		_ = alloc.Return(blk)
	}
	op.flushProgress(ctx, op)

	switch {
	case werr != nil && isCancellation(werr):
		return werr
	case rerr != nil && isCancellation(rerr):
		return rerr
	case werr != nil:
		return werr
	case rerr != nil:
		return rerr
	}

	cerr := w.Close()
	w = nil
	if cerr != nil {
		return errors.Errorf("closing destination %q: %w", op.dst, cerr)
	}
	return nil
}

// produce is the reader loop: check cancellation, allocate a block, fill
// it, hand it off. The pool provides the backpressure; once the budget is
// exhausted the allocate blocks until the consumer returns blocks.
func (op *CopyFile) produce(ctx context.Context, r vfs.File, alloc pool.Allocator, blocks chan<- *pool.Block) error {
	for {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		if op.session.Cancelled() {
			return errors.Errorf("reading %q: session cancelled: %w", op.src, context.Canceled)
		}

		blk, err := alloc.Allocate(ctx)
		if err != nil {
			return errors.Errorf("allocating block for %q: %w", op.dst, err)
		}

		n, rerr := r.Read(blk.Buf())
		if n > 0 {
			blk.SetLen(n)
			select {
			case blocks <- blk:
			case <-ctx.Done():
				_ = alloc.Return(blk)
				return errors.WithStack(ctx.Err())
			}
		} else {
			_ = alloc.Return(blk)
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return errors.Errorf("reading %q: %w", op.src, rerr)
		}
	}
}

// consume is the writer loop. Every received block is returned to the pool
// in a deferred path so an error or cancellation can never leak pool
// capacity.
func (op *CopyFile) consume(ctx context.Context, w vfs.File, alloc pool.Allocator, blocks <-chan *pool.Block) error {
	for blk := range blocks {
		err := func() error {
			defer func() { _ = alloc.Return(blk) }()

			if err := ctx.Err(); err != nil {
				return errors.WithStack(err)
			}
			if op.session.Cancelled() {
				return errors.Errorf("writing %q: session cancelled: %w", op.dst, context.Canceled)
			}

			n, werr := w.Write(blk.Bytes())
			if werr != nil {
				return errors.Errorf("writing %q: %w", op.dst, werr)
			}
			if n != blk.Len() {
				return errors.Errorf("writing %q: %w", op.dst, io.ErrShortWrite)
			}
			op.addProgress(ctx, op, int64(n))
			return nil
		}()
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateRollback implements Operation. The inverse deletes the destination,
// offered only when this run newly created it.
func (op *CopyFile) CreateRollback() Operation {
	if !op.CanRollback() || !op.created || op.overwrote {
		return nil
	}
	return NewDelete(op.session, op.dstFS, op.dst, false).
		WithPolicy(Policy{MissingSource: MissingSourceSkip, Estimation: EstimationDeferred})
}
