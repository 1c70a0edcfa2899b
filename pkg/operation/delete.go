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

// 🗑️ Delete removes one entry. An absent target follows the missing-source
// policy. Rollback is offered only when the pre-state is fully
// reconstructable: an empty directory, or a step whose planner attached an
// explicit restore operation.
type Delete struct {
	base

	fsys    vfs.Backend
	name    string
	recurse bool

	wasEmptyDir bool
	deleted     bool

	// restore, when set by a planner, becomes the rollback. TransferTree
	// uses it to copy a deleted source file back from its destination.
	restore Operation
}

var _ Operation = (*Delete)(nil)

// NewDelete builds the operation against a session.
func NewDelete(s *Session, fsys vfs.Backend, name string, recurse bool) *Delete {
	op := &Delete{fsys: fsys, name: name, recurse: recurse}
	op.base.init(s, "delete "+name)
	return op
}

// WithPolicy overrides the session policy for this operation.
func (op *Delete) WithPolicy(p Policy) *Delete {
	op.applyPolicy(p)
	return op
}

// Estimate implements Operation.
func (op *Delete) Estimate(ctx context.Context) error {
	return op.driveEstimate(ctx, op, op.check)
}

// Run implements Operation.
func (op *Delete) Run(ctx context.Context) error {
	return op.driveRun(ctx, op, op.check, op.apply)
}

func (op *Delete) check(ctx context.Context) error {
	name, err := vfs.Normalize(op.name)
	if err != nil {
		return err
	}
	op.name = name

	entry, err := op.fsys.Entry(ctx, op.name)
	if err != nil {
		if vfs.IsNotFound(err) {
			return op.missingSource(op.name)
		}
		return err
	}

	if entry.Dir {
		children, err := op.fsys.Browse(ctx, op.name)
		if err != nil {
			return err
		}
		if len(children) > 0 && !op.recurse {
			return errors.Errorf("directory %q: %w", op.name, vfs.ErrNotEmpty)
		}
		op.wasEmptyDir = len(children) == 0
	}

	op.canRollback.Store(op.rollbackEnabled() && (op.restore != nil || op.wasEmptyDir))
	return nil
}

func (op *Delete) apply(ctx context.Context) error {
	if err := op.fsys.Delete(ctx, op.name, op.recurse); err != nil {
		// Someone else removed it since estimation; honor the skip policy.
		if vfs.IsNotFound(err) {
			return op.missingSource(op.name)
		}
		return errors.Errorf("deleting %q: %w", op.name, err)
	}
	op.deleted = true
	return nil
}

// CreateRollback implements Operation.
func (op *Delete) CreateRollback() Operation {
	if !op.CanRollback() || !op.deleted {
		return nil
	}
	if op.restore != nil {
		return op.restore
	}
	if op.wasEmptyDir {
		return NewCreateDirectory(op.session, op.fsys, op.name).
			WithPolicy(Policy{Estimation: EstimationDeferred})
	}
	return nil
}
