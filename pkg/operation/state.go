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

// 📊 State is the lifecycle position of an operation. Transitions move
// strictly forward: Initialized → Estimating → Estimated → Running →
// {Completed | Skipped | Cancelled | Errored}. Skipped is reachable from
// Estimating and Running, Cancelled from any non-terminal state, Errored
// from Estimating and Running.
type State int32

const (
	StateInitialized State = iota
	StateEstimating
	StateEstimated
	StateRunning
	StateCompleted
	StateSkipped
	StateCancelled
	StateErrored
)

// String returns a string representation of State.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateEstimating:
		return "estimating"
	case StateEstimated:
		return "estimated"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateSkipped:
		return "skipped"
	case StateCancelled:
		return "cancelled"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateSkipped, StateCancelled, StateErrored:
		return true
	default:
		return false
	}
}

// Succeeded reports whether the state counts as a silent success.
func (s State) Succeeded() bool {
	return s == StateCompleted || s == StateSkipped
}
