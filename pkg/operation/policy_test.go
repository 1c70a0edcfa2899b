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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyMerge(t *testing.T) {
	def := DefaultPolicy()

	tests := []struct {
		name string
		in   Policy
		want Policy
	}{
		{
			name: "zero_takes_all_defaults",
			in:   Policy{},
			want: def,
		},
		{
			name: "set_fields_win",
			in: Policy{
				MissingSource:       MissingSourceSkip,
				ExistingDestination: ExistingDestinationOverwrite,
			},
			want: Policy{
				MissingSource:       MissingSourceSkip,
				ExistingDestination: ExistingDestinationOverwrite,
				Estimation:          def.Estimation,
				Rollback:            def.Rollback,
				Flags:               def.Flags,
			},
		},
		{
			name: "flags_union",
			in:   Policy{Flags: FlagContinueOnError},
			want: Policy{
				MissingSource:       def.MissingSource,
				ExistingDestination: def.ExistingDestination,
				Estimation:          def.Estimation,
				Rollback:            def.Rollback,
				Flags:               def.Flags | FlagContinueOnError,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Merge(def))
		})
	}
}

func TestPolicyMergeOmitPatterns(t *testing.T) {
	def := Policy{OmitPatterns: []string{"**/.git/**"}}
	in := Policy{OmitPatterns: []string{"*.tmp"}}

	merged := in.Merge(def)
	assert.Equal(t, []string{"**/.git/**", "*.tmp"}, merged.OmitPatterns,
		"session patterns should come first, operation patterns appended")
}

func TestFlagsHas(t *testing.T) {
	f := FlagLogEvents | FlagDispatchEvents
	assert.True(t, f.Has(FlagLogEvents))
	assert.True(t, f.Has(FlagLogEvents|FlagDispatchEvents))
	assert.False(t, f.Has(FlagContinueOnError))
	assert.False(t, f.Has(FlagLogEvents|FlagContinueOnError), "Has requires every bit")
}

func TestDefaultPolicy(t *testing.T) {
	def := DefaultPolicy()
	assert.Equal(t, MissingSourceFail, def.MissingSource)
	assert.Equal(t, ExistingDestinationFail, def.ExistingDestination)
	assert.Equal(t, EstimationEager, def.Estimation)
	assert.Equal(t, RollbackEnabled, def.Rollback)
	assert.True(t, def.Flags.Has(FlagLogEvents|FlagDispatchEvents))
}
