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

// 📁 CreateDirectory creates a directory, walking the path component by
// component and creating only the missing segments. Each segment actually
// created is recorded so the rollback removes exactly those, deepest first.
type CreateDirectory struct {
	base

	fsys vfs.Backend
	name string

	// mustReplace is set during estimation when the destination exists as
	// a file and the policy says overwrite.
	mustReplace bool

	created      []string
	replacedFile bool
}

var _ Operation = (*CreateDirectory)(nil)

// NewCreateDirectory builds the operation against a session.
func NewCreateDirectory(s *Session, fsys vfs.Backend, name string) *CreateDirectory {
	op := &CreateDirectory{fsys: fsys, name: name}
	op.base.init(s, "mkdir "+name)
	return op
}

// WithPolicy overrides the session policy for this operation.
func (op *CreateDirectory) WithPolicy(p Policy) *CreateDirectory {
	op.applyPolicy(p)
	return op
}

// Estimate implements Operation.
func (op *CreateDirectory) Estimate(ctx context.Context) error {
	return op.driveEstimate(ctx, op, op.check)
}

// Run implements Operation.
func (op *CreateDirectory) Run(ctx context.Context) error {
	return op.driveRun(ctx, op, op.check, op.apply)
}

func (op *CreateDirectory) check(ctx context.Context) error {
	name, err := vfs.Normalize(op.name)
	if err != nil {
		return err
	}
	op.name = name

	entry, err := op.fsys.Entry(ctx, op.name)
	switch {
	case err == nil && entry.Dir:
		// Already a directory: only the fail policy objects.
		if op.policy.ExistingDestination == ExistingDestinationFail {
			return errors.Errorf("destination %q: %w", op.name, vfs.ErrExists)
		}
		return errors.WithStack(errSkip)
	case err == nil:
		// A file is in the way; overwrite may replace it.
		overwrite, perr := op.existingDestination(op.name)
		if perr != nil {
			return perr
		}
		op.mustReplace = overwrite
	case !vfs.IsNotFound(err):
		return err
	}

	// Replacing a file forfeits rollback: its content is not
	// reconstructable.
	op.canRollback.Store(op.rollbackEnabled() && !op.mustReplace)
	return nil
}

func (op *CreateDirectory) apply(ctx context.Context) error {
	if op.mustReplace {
		if err := op.fsys.Delete(ctx, op.name, false); err != nil && !vfs.IsNotFound(err) {
			return errors.Errorf("replacing file %q: %w", op.name, err)
		}
		op.replacedFile = true
		op.canRollback.Store(false)
	}

	for _, seg := range vfs.Ancestors(op.name) {
		entry, err := op.fsys.Entry(ctx, seg)
		switch {
		case err == nil && entry.Dir:
			continue
		case err == nil:
			return errors.Errorf("segment %q: %w", seg, vfs.ErrNotDir)
		case !vfs.IsNotFound(err):
			return err
		}

		if err := op.fsys.MakeDir(ctx, seg); err != nil {
			// A concurrent creator winning the race is fine.
			if vfs.IsExists(err) {
				continue
			}
			return errors.Errorf("creating %q: %w", seg, err)
		}
		op.created = append(op.created, seg)
	}
	return nil
}

// Created returns the segments this operation actually created, in creation
// order.
func (op *CreateDirectory) Created() []string {
	out := make([]string, len(op.created))
	copy(out, op.created)
	return out
}

// CreateRollback implements Operation. The inverse deletes the created
// segments deepest first. Nothing is offered when a file was replaced.
func (op *CreateDirectory) CreateRollback() Operation {
	if !op.CanRollback() || op.replacedFile || len(op.created) == 0 {
		return nil
	}
	rb := NewBatch(op.session, "rollback "+op.desc)
	// Each delete only becomes viable once the deeper one has run, so
	// estimation waits until each step executes.
	for i := len(op.created) - 1; i >= 0; i-- {
		rb.Add(NewDelete(op.session, op.fsys, op.created[i], false).
			WithPolicy(Policy{MissingSource: MissingSourceSkip, Estimation: EstimationDeferred}))
	}
	return rb
}
