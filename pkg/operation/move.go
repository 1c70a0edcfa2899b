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

	"github.com/walteh/vfsops/pkg/vfs"
	"gitlab.com/tozd/go/errors"
)

// 📦 Move renames an entry within one backend. Cross-backend moves are
// TransferTree territory. The destination is re-validated immediately
// before the backend move, closing the estimate/run race window as tightly
// as the backend allows. Rollback is the inverse move, offered only when
// nothing was overwritten.
type Move struct {
	base

	fsys vfs.Backend
	src  string
	dst  string

	// overwritePending remembers that the last destination check saw a
	// colliding entry the policy allows to be replaced.
	overwritePending bool

	moved     bool
	overwrote bool
}

var _ Operation = (*Move)(nil)

// NewMove builds the operation against a session.
func NewMove(s *Session, fsys vfs.Backend, src, dst string) *Move {
	op := &Move{fsys: fsys, src: src, dst: dst}
	op.base.init(s, "move "+src+" -> "+dst)
	return op
}

// WithPolicy overrides the session policy for this operation.
func (op *Move) WithPolicy(p Policy) *Move {
	op.applyPolicy(p)
	return op
}

// Estimate implements Operation.
func (op *Move) Estimate(ctx context.Context) error {
	return op.driveEstimate(ctx, op, op.check)
}

// Run implements Operation.
func (op *Move) Run(ctx context.Context) error {
	return op.driveRun(ctx, op, op.check, op.apply)
}

// Overwritten reports whether the move deleted a pre-existing destination.
func (op *Move) Overwritten() bool {
	return op.overwrote
}

func (op *Move) check(ctx context.Context) error {
	src, err := vfs.Normalize(op.src)
	if err != nil {
		return err
	}
	dst, err := vfs.Normalize(op.dst)
	if err != nil {
		return err
	}
	op.src, op.dst = src, dst

	if !vfs.CanMove(op.fsys) {
		return errors.Errorf("move %q: %w", op.src, vfs.ErrNotSupported)
	}

	if _, err := op.fsys.Entry(ctx, op.src); err != nil {
		if vfs.IsNotFound(err) {
			return op.missingSource(op.src)
		}
		return err
	}

	if err := op.checkDestination(ctx); err != nil {
		return err
	}

	op.canRollback.Store(op.rollbackEnabled() && !op.overwritePending)
	return nil
}

func (op *Move) checkDestination(ctx context.Context) error {
	op.overwritePending = false
	entry, err := op.fsys.Entry(ctx, op.dst)
	if err != nil {
		if vfs.IsNotFound(err) {
			return nil
		}
		return err
	}
	if entry.Dir {
		// Never replace a directory by rename.
		return errors.Errorf("destination %q: %w", op.dst, vfs.ErrExists)
	}
	overwrite, perr := op.existingDestination(op.dst)
	if perr != nil {
		return perr
	}
	op.overwritePending = overwrite
	return nil
}

func (op *Move) apply(ctx context.Context) error {
	// Re-validate right before mutating.
	if err := op.checkDestination(ctx); err != nil {
		return err
	}
	if op.overwritePending {
		if err := op.fsys.Delete(ctx, op.dst, false); err != nil && !vfs.IsNotFound(err) {
			return errors.Errorf("replacing %q: %w", op.dst, err)
		}
		op.overwrote = true
		op.canRollback.Store(false)
	}

	if err := vfs.Move(ctx, op.fsys, op.src, op.dst); err != nil {
		return errors.Errorf("moving %q to %q: %w", op.src, op.dst, err)
	}
	op.moved = true
	return nil
}

// CreateRollback implements Operation.
func (op *Move) CreateRollback() Operation {
	if !op.CanRollback() || !op.moved || op.overwrote {
		return nil
	}
	return NewMove(op.session, op.fsys, op.dst, op.src).
		WithPolicy(Policy{Estimation: EstimationDeferred})
}
