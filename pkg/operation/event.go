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
	"time"
)

// 📣 EventKind discriminates session events.
type EventKind int

const (
	// EventStateChanged reports a successful state transition.
	EventStateChanged EventKind = iota
	// EventError reports an error recorded on an operation.
	EventError
	// EventProgress reports byte progress of a running operation. Progress
	// events are dispatched to observers but never logged, and are rate
	// limited per operation.
	EventProgress
)

// String returns a string representation of EventKind.
func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state_changed"
	case EventError:
		return "error"
	case EventProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// 📣 Event is one observation drained from a session.
type Event struct {
	Kind EventKind
	// Op is the operation the event concerns.
	Op Operation
	// State is the new state for EventStateChanged.
	State State
	// Err is the recorded error for EventError.
	Err error
	// Done and Total carry byte counts for EventProgress; Total is -1 when
	// unknown.
	Done  int64
	Total int64
	// Time is when the event was emitted.
	Time time.Time
}

// 👀 Observer receives events pushed from a session. OnComplete is called
// exactly once, when the session closes or the observer unsubscribes.
type Observer interface {
	OnEvent(ev Event)
	OnComplete()
}

// ObserverFunc adapts a function to Observer with a no-op OnComplete.
type ObserverFunc func(ev Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

// OnComplete implements Observer.
func (f ObserverFunc) OnComplete() {}
