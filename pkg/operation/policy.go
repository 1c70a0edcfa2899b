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

// 🔧 MissingSource selects what happens when an operation's source does not
// exist.
type MissingSource int

const (
	// MissingSourceDefault defers to the session policy.
	MissingSourceDefault MissingSource = iota
	// MissingSourceFail makes the operation error with a not-found error.
	MissingSourceFail
	// MissingSourceSkip moves the operation to Skipped.
	MissingSourceSkip
)

// 🔧 ExistingDestination selects what happens when an operation's
// destination already exists.
type ExistingDestination int

const (
	// ExistingDestinationDefault defers to the session policy.
	ExistingDestinationDefault ExistingDestination = iota
	// ExistingDestinationFail makes the operation error with an
	// already-exists error.
	ExistingDestinationFail
	// ExistingDestinationSkip moves the operation to Skipped.
	ExistingDestinationSkip
	// ExistingDestinationOverwrite deletes the colliding entry first.
	// Overwriting forfeits rollback: the overwritten content cannot be
	// reconstructed.
	ExistingDestinationOverwrite
)

// 🔧 Estimation selects when the non-mutating viability check runs.
type Estimation int

const (
	// EstimationDefault defers to the session policy.
	EstimationDefault Estimation = iota
	// EstimationEager expects an explicit Estimate call before Run; Run
	// still estimates inline when the caller skipped it.
	EstimationEager
	// EstimationDeferred estimates inside Run only.
	EstimationDeferred
	// EstimationOnRun re-runs the viability check at the start of Run even
	// when the operation was already estimated.
	EstimationOnRun
)

// 🔧 Rollback selects whether operations track undo information.
type Rollback int

const (
	// RollbackDefault defers to the session policy.
	RollbackDefault Rollback = iota
	// RollbackEnabled tracks what each operation mutated so an inverse
	// operation can be produced.
	RollbackEnabled
	// RollbackDisabled skips undo tracking; CreateRollback returns nil.
	RollbackDisabled
)

// 🚩 Flags are the boolean policy switches. Merging unions them.
type Flags uint8

const (
	// FlagCancelAllOnError cancels the whole session the first time any
	// operation records an error.
	FlagCancelAllOnError Flags = 1 << iota
	// FlagOmitPackageMounts makes tree planners skip directories flagged
	// as auto-mounted package contents.
	FlagOmitPackageMounts
	// FlagContinueOnError lets composites keep going past a failing child
	// and aggregate the failures.
	FlagContinueOnError
	// FlagSuppressErrors swallows errors after recording them; callers
	// inspect state or AssertSuccessful instead.
	FlagSuppressErrors
	// FlagLogEvents appends events to the session event log.
	FlagLogEvents
	// FlagDispatchEvents pushes events to session observers.
	FlagDispatchEvents
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// 📜 Policy bundles the behavioral switches of an operation. The zero value
// defers every field to the session default; field values win over the
// session default only when set, and Flags are unioned. This is deliberate:
// independent typed fields instead of one packed bitmask, so merging is
// explicit per-field logic.
type Policy struct {
	MissingSource       MissingSource       `json:"missing_source,omitempty"       yaml:"missing_source,omitempty"`
	ExistingDestination ExistingDestination `json:"existing_destination,omitempty" yaml:"existing_destination,omitempty"`
	Estimation          Estimation          `json:"estimation,omitempty"           yaml:"estimation,omitempty"`
	Rollback            Rollback            `json:"rollback,omitempty"             yaml:"rollback,omitempty"`

	// OmitPatterns are doublestar globs, relative to the planner root,
	// that tree planners exclude. Merging concatenates session patterns
	// and operation patterns.
	OmitPatterns []string `json:"omit_patterns,omitempty" yaml:"omit_patterns,omitempty"`

	Flags Flags `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// DefaultPolicy is the base every session policy is resolved against.
func DefaultPolicy() Policy {
	return Policy{
		MissingSource:       MissingSourceFail,
		ExistingDestination: ExistingDestinationFail,
		Estimation:          EstimationEager,
		Rollback:            RollbackEnabled,
		Flags:               FlagLogEvents | FlagDispatchEvents,
	}
}

// Merge resolves p against a session default: each enum field keeps its own
// value when set and falls back to def otherwise, flags are unioned and
// omit patterns concatenated.
func (p Policy) Merge(def Policy) Policy {
	out := p
	if out.MissingSource == MissingSourceDefault {
		out.MissingSource = def.MissingSource
	}
	if out.ExistingDestination == ExistingDestinationDefault {
		out.ExistingDestination = def.ExistingDestination
	}
	if out.Estimation == EstimationDefault {
		out.Estimation = def.Estimation
	}
	if out.Rollback == RollbackDefault {
		out.Rollback = def.Rollback
	}
	if len(def.OmitPatterns) > 0 {
		merged := make([]string, 0, len(def.OmitPatterns)+len(out.OmitPatterns))
		merged = append(merged, def.OmitPatterns...)
		merged = append(merged, out.OmitPatterns...)
		out.OmitPatterns = merged
	}
	out.Flags |= def.Flags
	return out
}
