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

// Package operation is the transactional file-operation engine.
//
// Every unit of work — leaf (CreateDirectory, Delete, Move, CopyFile) or
// composite (Batch, CopyTree, DeleteTree, TransferTree) — is an Operation
// driven through one state machine:
//
//	Initialized → Estimating → Estimated → Running → Completed
//	                  ↘ Skipped/Errored       ↘ Skipped/Errored
//	        (any non-terminal state) → Cancelled
//
// Operations are built against a Session, which supplies the default
// Policy, the block pool for streaming transfers, the cancellation signal
// shared by the whole group, the event log and the observer list.
//
// Estimate never mutates; Run mutates at most once per instance, enforced
// by compare-and-swap transitions so concurrent callers are safe. Policies
// decide what happens at the edges: a missing source, a destination
// collision, when to re-check, whether completed work may be reversed.
// CreateRollback produces the inverse of exactly what an operation changed,
// and only when the pre-state is fully reconstructable.
package operation
