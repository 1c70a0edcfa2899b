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
	"path"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
	"github.com/walteh/vfsops/pkg/vfs"
	"gitlab.com/tozd/go/errors"
)

// Tree planners walk a source tree with an explicit work list (no
// recursion, so backend depth cannot blow the stack) and compile the walk
// into Batch children. Directory deletions are always deferred and appended
// in reverse discovery order, so a directory goes only after every
// descendant.
//
// A traversal invariant defends against backend cycles: an entry reported
// by Browse must be strictly below the directory browsed. A violating
// subtree is dropped with an error recorded; siblings keep planning.

// treeItem is one pending directory of a traversal.
type treeItem struct {
	src string
	dst string
}

// 🌳 CopyTree plans a recursive copy: one CreateDirectory per source
// directory, one CopyFile per source file, destination paths derived by
// prefix substitution.
type CopyTree struct {
	Batch

	srcFS vfs.Backend
	src   string
	dstFS vfs.Backend
	dst   string
}

var _ Operation = (*CopyTree)(nil)

// NewCopyTree builds the planner against a session.
func NewCopyTree(s *Session, srcFS vfs.Backend, src string, dstFS vfs.Backend, dst string) *CopyTree {
	op := &CopyTree{srcFS: srcFS, src: src, dstFS: dstFS, dst: dst}
	op.base.init(s, "copy-tree "+src+" -> "+dst)
	return op
}

// WithPolicy overrides the session policy for this planner and the children
// it emits.
func (op *CopyTree) WithPolicy(p Policy) *CopyTree {
	op.applyPolicy(p)
	return op
}

// Estimate implements Operation. An explicit estimate checks the plan's
// children up front; Run only plans, leaving each child to estimate inline
// right before it executes.
func (op *CopyTree) Estimate(ctx context.Context) error {
	return op.driveEstimate(ctx, op, func(ctx context.Context) error {
		if err := op.plan(ctx); err != nil {
			return err
		}
		return op.estimateChildren(ctx)
	})
}

// Run implements Operation.
func (op *CopyTree) Run(ctx context.Context) error {
	return op.driveRun(ctx, op, op.plan, op.runChildren)
}

func (op *CopyTree) plan(ctx context.Context) error {
	if op.children != nil {
		return nil
	}

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
	if !entry.Dir {
		return errors.Errorf("source %q: %w", op.src, vfs.ErrNotDir)
	}

	op.Add(NewCreateDirectory(op.session, op.dstFS, op.dst).WithPolicy(op.policy))

	walker := treeWalker{op: &op.Batch, fsys: op.srcFS, root: op.src}
	err = walker.walk(ctx, treeItem{src: op.src, dst: op.dst}, func(ctx context.Context, e *vfs.Entry, it treeItem) error {
		childDst := path.Join(it.dst, e.Name)
		if e.Dir {
			op.Add(NewCreateDirectory(op.session, op.dstFS, childDst).WithPolicy(op.policy))
			walker.push(treeItem{src: e.Path, dst: childDst})
		} else {
			op.Add(NewCopyFile(op.session, op.srcFS, e.Path, op.dstFS, childDst).WithPolicy(op.policy))
		}
		return nil
	})
	return err
}

// 🌳 DeleteTree plans a recursive delete: file deletions are emitted as
// discovered, directory deletions (the root included) are deferred and
// reversed so children go first.
type DeleteTree struct {
	Batch

	fsys vfs.Backend
	name string
}

var _ Operation = (*DeleteTree)(nil)

// NewDeleteTree builds the planner against a session.
func NewDeleteTree(s *Session, fsys vfs.Backend, name string) *DeleteTree {
	op := &DeleteTree{fsys: fsys, name: name}
	op.base.init(s, "delete-tree "+name)
	return op
}

// WithPolicy overrides the session policy for this planner and the children
// it emits.
func (op *DeleteTree) WithPolicy(p Policy) *DeleteTree {
	op.applyPolicy(p)
	return op
}

// Estimate implements Operation. An explicit estimate checks the plan's
// children up front; Run only plans, leaving each child to estimate inline
// right before it executes.
func (op *DeleteTree) Estimate(ctx context.Context) error {
	return op.driveEstimate(ctx, op, func(ctx context.Context) error {
		if err := op.plan(ctx); err != nil {
			return err
		}
		return op.estimateChildren(ctx)
	})
}

// Run implements Operation.
func (op *DeleteTree) Run(ctx context.Context) error {
	return op.driveRun(ctx, op, op.plan, op.runChildren)
}

func (op *DeleteTree) plan(ctx context.Context) error {
	if op.children != nil {
		return nil
	}

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
	if !entry.Dir {
		op.Add(NewDelete(op.session, op.fsys, op.name, false).WithPolicy(op.policy))
		return nil
	}

	dirs := []string{op.name}
	walker := treeWalker{op: &op.Batch, fsys: op.fsys, root: op.name}
	err = walker.walk(ctx, treeItem{src: op.name}, func(ctx context.Context, e *vfs.Entry, it treeItem) error {
		if e.Dir {
			dirs = append(dirs, e.Path)
			walker.push(treeItem{src: e.Path})
		} else {
			op.Add(NewDelete(op.session, op.fsys, e.Path, false).WithPolicy(op.policy))
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Directories only after all their descendants. Directories with a
	// surviving (skipped) descendant must survive too.
	for i := len(dirs) - 1; i >= 0; i-- {
		if walker.kept[dirs[i]] {
			continue
		}
		op.Add(NewDelete(op.session, op.fsys, dirs[i], true).WithPolicy(op.policy))
	}
	return nil
}

// 🌳 TransferTree plans a cross-backend move: copy-then-delete-source for
// files, create-then-delete-source for directories. Every delete step
// carries its own inverse — recreate the directory, or copy the file back
// from its new location — so the whole transfer stays rollback-capable.
type TransferTree struct {
	Batch

	srcFS vfs.Backend
	src   string
	dstFS vfs.Backend
	dst   string
}

var _ Operation = (*TransferTree)(nil)

// NewTransferTree builds the planner against a session.
func NewTransferTree(s *Session, srcFS vfs.Backend, src string, dstFS vfs.Backend, dst string) *TransferTree {
	op := &TransferTree{srcFS: srcFS, src: src, dstFS: dstFS, dst: dst}
	op.base.init(s, "transfer-tree "+src+" -> "+dst)
	return op
}

// WithPolicy overrides the session policy for this planner and the children
// it emits.
func (op *TransferTree) WithPolicy(p Policy) *TransferTree {
	op.applyPolicy(p)
	return op
}

// Estimate implements Operation. An explicit estimate checks the plan's
// children up front; Run only plans, leaving each child to estimate inline
// right before it executes.
func (op *TransferTree) Estimate(ctx context.Context) error {
	return op.driveEstimate(ctx, op, func(ctx context.Context) error {
		if err := op.plan(ctx); err != nil {
			return err
		}
		return op.estimateChildren(ctx)
	})
}

// Run implements Operation.
func (op *TransferTree) Run(ctx context.Context) error {
	return op.driveRun(ctx, op, op.plan, op.runChildren)
}

func (op *TransferTree) plan(ctx context.Context) error {
	if op.children != nil {
		return nil
	}

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
	if !entry.Dir {
		return errors.Errorf("source %q: %w", op.src, vfs.ErrNotDir)
	}

	op.Add(NewCreateDirectory(op.session, op.dstFS, op.dst).WithPolicy(op.policy))

	dirs := []string{op.src}
	walker := treeWalker{op: &op.Batch, fsys: op.srcFS, root: op.src}
	err = walker.walk(ctx, treeItem{src: op.src, dst: op.dst}, func(ctx context.Context, e *vfs.Entry, it treeItem) error {
		childDst := path.Join(it.dst, e.Name)
		if e.Dir {
			op.Add(NewCreateDirectory(op.session, op.dstFS, childDst).WithPolicy(op.policy))
			dirs = append(dirs, e.Path)
			walker.push(treeItem{src: e.Path, dst: childDst})
			return nil
		}

		op.Add(NewCopyFile(op.session, op.srcFS, e.Path, op.dstFS, childDst).WithPolicy(op.policy))
		del := NewDelete(op.session, op.srcFS, e.Path, false).WithPolicy(op.policy)
		del.restore = NewCopyFile(op.session, op.dstFS, childDst, op.srcFS, e.Path).
			WithPolicy(Policy{Estimation: EstimationDeferred})
		op.Add(del)
		return nil
	})
	if err != nil {
		return err
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		if walker.kept[dirs[i]] {
			continue
		}
		del := NewDelete(op.session, op.srcFS, dirs[i], true).WithPolicy(op.policy)
		del.restore = NewCreateDirectory(op.session, op.srcFS, dirs[i]).
			WithPolicy(Policy{Estimation: EstimationDeferred})
		op.Add(del)
	}
	return nil
}

// treeWalker drives the shared work-list traversal: cycle guard, package
// mount and pattern skips, per-subtree error recording.
type treeWalker struct {
	op   *Batch
	fsys vfs.Backend
	root string

	stack []treeItem
	// kept marks directories that must survive because a descendant was
	// skipped out of the plan.
	kept map[string]bool
}

func (w *treeWalker) push(it treeItem) {
	w.stack = append(w.stack, it)
}

func (w *treeWalker) walk(ctx context.Context, root treeItem, visit func(context.Context, *vfs.Entry, treeItem) error) error {
	w.kept = map[string]bool{}
	w.push(root)

	continueOnError := w.op.policy.Flags.Has(FlagContinueOnError)

	for len(w.stack) > 0 {
		if w.op.cancelled(ctx) {
			return w.op.cancelErr(ctx)
		}

		it := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]

		entries, err := w.fsys.Browse(ctx, it.src)
		if err != nil {
			err = errors.Errorf("browsing %q: %w", it.src, err)
			if !continueOnError {
				return err
			}
			w.op.planErrs = append(w.op.planErrs, err)
			continue
		}

		for _, e := range entries {
			// Cycle guard: anything Browse reports must be strictly
			// below the browsed directory. A violation poisons only the
			// offending subtree; siblings keep planning and the recorded
			// error joins the batch aggregate.
			if e.Path == it.src || !vfs.IsAncestor(it.src, e.Path) {
				w.op.planErrs = append(w.op.planErrs,
					errors.Errorf("entry %q reported under %q: backend cycle detected", e.Path, it.src))
				continue
			}

			if w.skip(ctx, e) {
				w.keep(e.Path)
				continue
			}
			if err := visit(ctx, e, it); err != nil {
				return err
			}
		}
	}
	return nil
}

// skip applies the package-mount flag and the omit patterns to one entry.
func (w *treeWalker) skip(ctx context.Context, e *vfs.Entry) bool {
	if e.PackageMount && w.op.policy.Flags.Has(FlagOmitPackageMounts) {
		return true
	}
	if len(w.op.policy.OmitPatterns) == 0 {
		return false
	}

	rel, err := vfs.Rebase(e.Path, w.root, ".")
	if err != nil {
		return false
	}
	for _, pattern := range w.op.policy.OmitPatterns {
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			zerolog.Ctx(ctx).Debug().Str("pattern", pattern).Str("path", rel).Err(err).Msg("error matching omit pattern")
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// keep marks every ancestor of name, up to and including the walk root, as
// surviving.
func (w *treeWalker) keep(name string) {
	for p := vfs.Parent(name); ; p = vfs.Parent(p) {
		w.kept[p] = true
		if p == w.root || p == "." {
			return
		}
	}
}
