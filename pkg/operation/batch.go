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

	"gitlab.com/tozd/go/errors"
)

// 📋 Batch is an ordered composite of operations. Children estimate and run
// strictly in list order; parallelism lives inside leaves, never across
// siblings. Re-running a partially executed batch skips children that
// already finished. With the continue-on-error flag the batch visits every
// child and aggregates the failures; without it the first failure stops
// the batch.
type Batch struct {
	base

	children []Operation

	// planErrs collects per-subtree planner failures that did not abort
	// planning (continue-on-error); they join the final aggregate.
	planErrs []error
}

var _ Operation = (*Batch)(nil)

// NewBatch builds an empty batch; add children with Add before estimating.
func NewBatch(s *Session, desc string, children ...Operation) *Batch {
	op := &Batch{children: children}
	op.base.init(s, desc)
	return op
}

// WithPolicy overrides the session policy for this batch. Children keep
// their own effective policies.
func (op *Batch) WithPolicy(p Policy) *Batch {
	op.applyPolicy(p)
	return op
}

// Add appends children. Only valid before the batch leaves Initialized.
func (op *Batch) Add(children ...Operation) *Batch {
	op.children = append(op.children, children...)
	return op
}

// Operations returns the child list.
func (op *Batch) Operations() []Operation {
	out := make([]Operation, len(op.children))
	copy(out, op.children)
	return out
}

// Estimate implements Operation.
func (op *Batch) Estimate(ctx context.Context) error {
	return op.driveEstimate(ctx, op, op.estimateChildren)
}

// Run implements Operation. Children are never estimated up front here:
// each child estimates inline immediately before it executes, so later
// children see the world as earlier siblings left it.
func (op *Batch) Run(ctx context.Context) error {
	return op.driveRun(ctx, op, op.noCheck, op.runChildren)
}

// noCheck is the Run-path viability check of a plain batch. There is
// nothing to validate up front; the children check themselves inline.
func (op *Batch) noCheck(context.Context) error {
	return nil
}

// Progress implements Operation, aggregating across children.
func (op *Batch) Progress() (int64, int64) {
	done := int64(-1)
	for _, child := range op.children {
		d, _ := child.Progress()
		if d >= 0 {
			if done < 0 {
				done = 0
			}
			done += d
		}
	}
	return done, op.total.Load()
}

// estimateChildren estimates each child in order, leaving children whose
// policy defers estimation for their own run. A failing child stops the
// batch unless continue-on-error is set, in which case the child stays
// Errored, is skipped by runChildren, and its failure joins the final
// aggregate.
func (op *Batch) estimateChildren(ctx context.Context) error {
	continueOnError := op.policy.Flags.Has(FlagContinueOnError)

	for _, child := range op.children {
		if op.cancelled(ctx) {
			return op.cancelErr(ctx)
		}
		if child.Policy().Estimation == EstimationDeferred {
			continue
		}
		err := child.Estimate(ctx)
		if err == nil && child.State() == StateErrored {
			err = child.AssertSuccessful()
		}
		if err != nil && !isCancellation(err) && continueOnError {
			continue
		}
		if err != nil {
			return errors.Errorf("estimating %s: %w", child.Describe(), err)
		}
	}

	op.aggregate()
	return nil
}

// aggregate recomputes the batch total and rollback capability from the
// children.
func (op *Batch) aggregate() {
	total := int64(-1)
	can := op.rollbackEnabled()
	for _, child := range op.children {
		_, t := child.Progress()
		if t >= 0 {
			if total < 0 {
				total = 0
			}
			total += t
		}
		if !child.CanRollback() {
			can = false
		}
	}
	op.setTotal(total)
	op.canRollback.Store(can)
}

// runChildren executes the children in order, skipping the ones already in
// a terminal state so a partially executed batch can be re-run.
func (op *Batch) runChildren(ctx context.Context) error {
	continueOnError := op.policy.Flags.Has(FlagContinueOnError)

	// Totals and rollback capability reflect whatever the children learned
	// while running, whether or not they were estimated up front.
	defer op.aggregate()

	for _, child := range op.children {
		if op.cancelled(ctx) {
			return op.cancelErr(ctx)
		}
		if child.State().Terminal() {
			continue
		}

		err := child.Run(ctx)
		if err == nil && !child.State().Succeeded() && child.State().Terminal() {
			err = child.AssertSuccessful()
		}
		if err == nil {
			continue
		}
		if isCancellation(err) {
			return err
		}
		if continueOnError {
			continue
		}
		return errors.Errorf("running %s: %w", child.Describe(), err)
	}

	errs := op.collectFailures()
	if len(errs) > 0 {
		return errors.Errorf("%d of %d children failed: %w",
			len(errs), len(op.children), errors.Join(errs...))
	}
	return nil
}

func (op *Batch) collectFailures() []error {
	var errs []error
	errs = append(errs, op.planErrs...)
	for _, child := range op.children {
		if child.State() == StateErrored {
			errs = append(errs, child.AssertSuccessful())
		}
	}
	return errs
}

// CreateRollback implements Operation. The inverse is a new batch of the
// children's rollbacks in reverse order. If any completed child cannot be
// reversed the batch offers no rollback at all.
func (op *Batch) CreateRollback() Operation {
	if !op.rollbackEnabled() {
		return nil
	}
	rb := NewBatch(op.session, "rollback "+op.desc)
	for i := len(op.children) - 1; i >= 0; i-- {
		child := op.children[i]
		if child.State() != StateCompleted {
			continue
		}
		inverse := child.CreateRollback()
		if inverse == nil {
			if !child.CanRollback() {
				return nil
			}
			// Rollback-capable but nothing was changed.
			continue
		}
		rb.Add(inverse)
	}
	if len(rb.children) == 0 {
		return nil
	}
	return rb
}
