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
	"time"

	"github.com/rs/zerolog"
	"github.com/walteh/vfsops/pkg/pool"
)

// defaultBlockSize sizes blocks of the fallback unbounded pool.
const defaultBlockSize = 64 * 1024

// defaultProgressInterval rate-limits Progress events per operation.
const defaultProgressInterval = 100 * time.Millisecond

// 🔧 SessionOptions configures a session.
type SessionOptions struct {
	// Policy is the session default; unset fields resolve against
	// DefaultPolicy.
	Policy Policy
	// Pool supplies blocks for streaming transfers. Defaults to an
	// unbounded pseudo-pool.
	Pool pool.Allocator
	// ProgressInterval is the minimum spacing between Progress events of
	// one operation. Defaults to 100ms.
	ProgressInterval time.Duration
}

// 🎛️ Session is the shared execution context for a group of operations: the
// policy default, one cancellation signal, the event log, the observer list
// and the block pool. A session outlives every operation built against it.
type Session struct {
	policy           Policy
	pool             pool.Allocator
	progressInterval time.Duration

	cancelOnce sync.Once
	done       chan struct{}

	logMu sync.Mutex
	log   []Event

	obsMu     sync.Mutex
	observers []*Subscription
	closed    bool
}

// NewSession creates a session.
func NewSession(opts SessionOptions) *Session {
	alloc := opts.Pool
	if alloc == nil {
		alloc = pool.NewUnbounded(defaultBlockSize)
	}
	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	return &Session{
		policy:           opts.Policy.Merge(DefaultPolicy()),
		pool:             alloc,
		progressInterval: interval,
		done:             make(chan struct{}),
	}
}

// Policy returns the resolved session default policy.
func (s *Session) Policy() Policy {
	return s.policy
}

// Pool returns the session's block allocator.
func (s *Session) Pool() pool.Allocator {
	return s.pool
}

// Cancel requests cooperative cancellation of every operation built against
// the session. It is safe to call from any goroutine, repeatedly.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() { close(s.done) })
}

// Cancelled reports whether the session has been cancelled.
func (s *Session) Cancelled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the session is cancelled.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close cancels the session and completes all observers. The session must
// not be used afterwards.
func (s *Session) Close() {
	s.Cancel()

	s.obsMu.Lock()
	s.closed = true
	subs := s.observers
	s.observers = nil
	s.obsMu.Unlock()

	for _, sub := range subs {
		sub.complete()
	}
}

// Events returns a snapshot of the event log.
func (s *Session) Events() []Event {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	out := make([]Event, len(s.log))
	copy(out, s.log)
	return out
}

// Subscribe registers an observer. The returned subscription detaches it;
// subscribing to a closed session completes the observer immediately.
func (s *Session) Subscribe(o Observer) *Subscription {
	sub := &Subscription{s: s, o: o}

	s.obsMu.Lock()
	if s.closed {
		s.obsMu.Unlock()
		sub.complete()
		return sub
	}
	s.observers = append(s.observers, sub)
	s.obsMu.Unlock()
	return sub
}

// 🎫 Subscription is the disposable handle of one subscribed observer.
type Subscription struct {
	s    *Session
	o    Observer
	once sync.Once
}

// Close detaches the observer and completes it.
func (sub *Subscription) Close() {
	sub.s.obsMu.Lock()
	for i, other := range sub.s.observers {
		if other == sub {
			sub.s.observers = append(sub.s.observers[:i:i], sub.s.observers[i+1:]...)
			break
		}
	}
	sub.s.obsMu.Unlock()
	sub.complete()
}

func (sub *Subscription) complete() {
	sub.once.Do(func() { sub.o.OnComplete() })
}

// publish logs and dispatches one event according to the emitting
// operation's effective policy. Progress events are dispatch-only. The
// observer list is snapshotted so dispatch never blocks subscription
// changes.
func (s *Session) publish(ctx context.Context, pol Policy, ev Event) {
	ev.Time = time.Now()

	if ev.Kind != EventProgress && pol.Flags.Has(FlagLogEvents) {
		s.logMu.Lock()
		s.log = append(s.log, ev)
		s.logMu.Unlock()
	}

	zerolog.Ctx(ctx).Debug().
		Stringer("event", ev.Kind).
		Stringer("state", ev.State).
		Str("operation", describe(ev.Op)).
		Err(ev.Err).
		Msg("session event")

	if !pol.Flags.Has(FlagDispatchEvents) {
		return
	}

	s.obsMu.Lock()
	subs := make([]*Subscription, len(s.observers))
	copy(subs, s.observers)
	s.obsMu.Unlock()

	for _, sub := range subs {
		sub.o.OnEvent(ev)
	}
}

func describe(op Operation) string {
	if op == nil {
		return ""
	}
	return op.Describe()
}
