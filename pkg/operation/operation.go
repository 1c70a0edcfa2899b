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
	"sync"
	"sync/atomic"
	"time"

	"github.com/walteh/vfsops/pkg/vfs"
	"gitlab.com/tozd/go/errors"
)

// 🎯 Operation is one state-machine-governed unit of filesystem mutation,
// leaf or composite. Estimate validates without mutating; Run mutates.
// Both are safe to call from multiple goroutines: transitions are
// compare-and-swap guarded, so the mutating body executes at most once per
// operation instance, and losing callers return nil without re-executing.
type Operation interface {
	// Estimate runs the non-mutating viability check and moves the
	// operation to Estimated, Skipped, Cancelled or Errored.
	Estimate(ctx context.Context) error

	// Run executes the mutation, estimating inline first if needed, and
	// moves the operation to Completed, Skipped, Cancelled or Errored.
	Run(ctx context.Context) error

	// State returns the current lifecycle state.
	State() State

	// Progress returns bytes done and bytes total; either is -1 when
	// unknown.
	Progress() (done, total int64)

	// CanRollback reports whether CreateRollback can produce an inverse.
	// The answer may be revised by estimation and execution.
	CanRollback() bool

	// CreateRollback returns an operation reversing exactly what this one
	// changed, or nil when there is nothing to undo or the pre-state is
	// not reconstructable.
	CreateRollback() Operation

	// Policy returns the effective policy (own override merged over the
	// session default).
	Policy() Policy

	// Describe returns a short human-readable description.
	Describe() string

	// AssertSuccessful returns nil for Completed and Skipped, a
	// cancellation error for Cancelled, the recorded errors for Errored,
	// and a distinct error for operations that have not finished.
	AssertSuccessful() error
}

// errSkip is returned by operation bodies to request the Skipped state.
var errSkip = errors.New("operation skipped by policy")

// base carries the machinery shared by every operation: session reference,
// effective policy, atomic state, progress counters and recorded errors.
type base struct {
	session *Session
	policy  Policy
	desc    string

	state       atomic.Int32
	done        atomic.Int64
	total       atomic.Int64
	canRollback atomic.Bool

	errMu sync.Mutex
	errs  []error

	lastProgress atomic.Int64
}

func (b *base) init(s *Session, desc string) {
	b.session = s
	b.policy = s.policy
	b.desc = desc
	b.done.Store(-1)
	b.total.Store(-1)
}

func (b *base) applyPolicy(p Policy) {
	b.policy = p.Merge(b.session.policy)
}

// State implements Operation.
func (b *base) State() State {
	return State(b.state.Load())
}

// Progress implements Operation.
func (b *base) Progress() (int64, int64) {
	return b.done.Load(), b.total.Load()
}

// CanRollback implements Operation.
func (b *base) CanRollback() bool {
	return b.canRollback.Load()
}

// Policy implements Operation.
func (b *base) Policy() Policy {
	return b.policy
}

// Describe implements Operation.
func (b *base) Describe() string {
	return b.desc
}

// AssertSuccessful implements Operation.
func (b *base) AssertSuccessful() error {
	switch st := b.State(); st {
	case StateCompleted, StateSkipped:
		return nil
	case StateCancelled:
		return errors.Errorf("%s: %w", b.desc, context.Canceled)
	case StateErrored:
		return errors.Errorf("%s: %w", b.desc, errors.Join(b.Errors()...))
	default:
		return errors.Errorf("%s has not finished (state %s)", b.desc, st)
	}
}

// Errors returns the errors recorded so far.
func (b *base) Errors() []error {
	b.errMu.Lock()
	defer b.errMu.Unlock()
	out := make([]error, len(b.errs))
	copy(out, b.errs)
	return out
}

// transition attempts from→to. Only the winning caller emits the
// StateChanged event; a lost race is a silent no-op.
func (b *base) transition(ctx context.Context, op Operation, from, to State) bool {
	if !b.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	b.session.publish(ctx, b.policy, Event{Kind: EventStateChanged, Op: op, State: to})
	return true
}

// toCancelled moves any non-terminal state to Cancelled.
func (b *base) toCancelled(ctx context.Context, op Operation) bool {
	for {
		st := b.State()
		if st.Terminal() {
			return false
		}
		if b.transition(ctx, op, st, StateCancelled) {
			return true
		}
	}
}

func (b *base) recordError(ctx context.Context, op Operation, err error) {
	b.errMu.Lock()
	b.errs = append(b.errs, err)
	b.errMu.Unlock()

	b.session.publish(ctx, b.policy, Event{Kind: EventError, Op: op, Err: err})

	if b.policy.Flags.Has(FlagCancelAllOnError) {
		b.session.Cancel()
	}
}

func (b *base) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil || b.session.Cancelled()
}

func (b *base) cancelErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Errorf("%s: %w", b.desc, err)
	}
	return errors.Errorf("%s: session cancelled: %w", b.desc, context.Canceled)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// finish applies the suppress-errors flag to an outgoing error.
func (b *base) finish(err error) error {
	if b.policy.Flags.Has(FlagSuppressErrors) {
		return nil
	}
	return err
}

// driveEstimate is the Estimate state driver. check must not mutate the
// backend; it may return errSkip to request Skipped.
func (b *base) driveEstimate(ctx context.Context, op Operation, check func(context.Context) error) error {
	if b.cancelled(ctx) {
		b.toCancelled(ctx, op)
		return b.finish(b.cancelErr(ctx))
	}
	if !b.transition(ctx, op, StateInitialized, StateEstimating) {
		return nil
	}

	err := check(ctx)
	switch {
	case err == nil:
		b.transition(ctx, op, StateEstimating, StateEstimated)
		return nil
	case errors.Is(err, errSkip):
		b.transition(ctx, op, StateEstimating, StateSkipped)
		return nil
	case isCancellation(err):
		b.toCancelled(ctx, op)
		return b.finish(err)
	default:
		b.recordError(ctx, op, err)
		b.transition(ctx, op, StateEstimating, StateErrored)
		return b.finish(err)
	}
}

// driveRun is the Run state driver. It estimates inline when the operation
// was never estimated, re-checks when the policy demands it, then executes
// body under the Running state.
func (b *base) driveRun(ctx context.Context, op Operation, check, body func(context.Context) error) error {
	switch b.State() {
	case StateInitialized:
		if err := b.driveEstimate(ctx, op, check); err != nil {
			return err
		}
	case StateEstimated:
		if b.policy.Estimation == EstimationOnRun {
			if err := b.recheck(ctx, op, check); err != nil {
				return err
			}
		}
	}

	if b.State().Terminal() {
		return nil
	}
	if b.cancelled(ctx) {
		b.toCancelled(ctx, op)
		return b.finish(b.cancelErr(ctx))
	}
	if !b.transition(ctx, op, StateEstimated, StateRunning) {
		return nil
	}

	err := body(ctx)
	switch {
	case err == nil:
		b.transition(ctx, op, StateRunning, StateCompleted)
		return nil
	case errors.Is(err, errSkip):
		b.transition(ctx, op, StateRunning, StateSkipped)
		return nil
	case isCancellation(err):
		b.toCancelled(ctx, op)
		return b.finish(err)
	default:
		b.recordError(ctx, op, err)
		b.transition(ctx, op, StateRunning, StateErrored)
		return b.finish(err)
	}
}

// recheck re-runs the viability check of an already estimated operation,
// closing the estimate/run race window as far as the backend allows.
func (b *base) recheck(ctx context.Context, op Operation, check func(context.Context) error) error {
	err := check(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errSkip):
		b.transition(ctx, op, StateEstimated, StateSkipped)
		return nil
	case isCancellation(err):
		b.toCancelled(ctx, op)
		return b.finish(err)
	default:
		b.recordError(ctx, op, err)
		b.transition(ctx, op, StateEstimated, StateErrored)
		return b.finish(err)
	}
}

// setTotal records the expected byte total.
func (b *base) setTotal(n int64) {
	b.total.Store(n)
}

// startProgress zeroes the progress counter when a transfer begins.
func (b *base) startProgress() {
	b.done.Store(0)
}

// addProgress accumulates transferred bytes and emits a rate-limited
// Progress event.
func (b *base) addProgress(ctx context.Context, op Operation, n int64) {
	d := b.done.Add(n)

	now := time.Now().UnixNano()
	last := b.lastProgress.Load()
	if now-last < int64(b.session.progressInterval) {
		return
	}
	if !b.lastProgress.CompareAndSwap(last, now) {
		return
	}
	b.session.publish(ctx, b.policy, Event{
		Kind:  EventProgress,
		Op:    op,
		Done:  d,
		Total: b.total.Load(),
	})
}

// flushProgress emits a final Progress event regardless of rate limiting.
func (b *base) flushProgress(ctx context.Context, op Operation) {
	b.session.publish(ctx, b.policy, Event{
		Kind:  EventProgress,
		Op:    op,
		Done:  b.done.Load(),
		Total: b.total.Load(),
	})
}

func (b *base) rollbackEnabled() bool {
	return b.policy.Rollback == RollbackEnabled
}

// missingSource converts an absent source into the policy-selected outcome.
func (b *base) missingSource(name string) error {
	if b.policy.MissingSource == MissingSourceSkip {
		return errors.WithStack(errSkip)
	}
	return errors.Errorf("source %q: %w", name, vfs.ErrNotFound)
}

// existingDestination converts a destination collision into the
// policy-selected outcome. overwrite is true when the caller should delete
// the colliding entry and proceed.
func (b *base) existingDestination(name string) (overwrite bool, err error) {
	switch b.policy.ExistingDestination {
	case ExistingDestinationSkip:
		return false, errors.WithStack(errSkip)
	case ExistingDestinationOverwrite:
		return true, nil
	default:
		return false, errors.Errorf("destination %q: %w", name, vfs.ErrExists)
	}
}
