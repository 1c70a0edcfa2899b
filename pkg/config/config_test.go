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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walteh/vfsops/pkg/operation"
	"github.com/walteh/vfsops/pkg/vfs/memfs"
)

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		file        string
		content     string
		wantErr     bool
		errContains string
		check       func(t *testing.T, m *Manifest)
	}{
		{
			name: "yaml_manifest",
			file: "ops.yaml",
			content: `
root: /srv/data
pool:
  block_size: 4096
  max_blocks: 8
defaults:
  existing_destination: overwrite
  omit_patterns:
    - "**/*.tmp"
steps:
  - op: mkdir
    source: staging
  - op: copy
    source: in.bin
    destination: staging/in.bin
    policy:
      rollback: disabled
`,
			check: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "/srv/data", m.Root)
				require.NotNil(t, m.Pool)
				assert.Equal(t, 4096, m.Pool.BlockSize)
				assert.Equal(t, 8, m.Pool.MaxBlocks)
				require.NotNil(t, m.Defaults)
				assert.Equal(t, "overwrite", m.Defaults.ExistingDestination)
				require.Len(t, m.Steps, 2)
				assert.Equal(t, "mkdir", m.Steps[0].Op)
				assert.Equal(t, "staging", m.Steps[0].Source)
				require.NotNil(t, m.Steps[1].Policy)
				assert.Equal(t, "disabled", m.Steps[1].Policy.Rollback)
			},
		},
		{
			name: "json_manifest",
			file: "ops.json",
			content: `{
  "steps": [
    {"op": "delete-tree", "source": "old"}
  ]
}`,
			check: func(t *testing.T, m *Manifest) {
				require.Len(t, m.Steps, 1)
				assert.Equal(t, "delete-tree", m.Steps[0].Op)
			},
		},
		{
			name: "hcl_manifest",
			file: "ops.hcl",
			content: `
root = "/srv/data"

step "move" {
  source      = "a.txt"
  destination = "b.txt"
}
`,
			check: func(t *testing.T, m *Manifest) {
				require.Len(t, m.Steps, 1)
				assert.Equal(t, "move", m.Steps[0].Op)
				assert.Equal(t, "a.txt", m.Steps[0].Source)
				assert.Equal(t, "b.txt", m.Steps[0].Destination)
			},
		},
		{
			name:        "unknown_yaml_field",
			file:        "bad.yaml",
			content:     "steps: []\nbogus: true\n",
			wantErr:     true,
			errContains: "parsing YAML",
		},
		{
			name:        "unknown_extension",
			file:        "ops.toml",
			content:     "steps = []",
			wantErr:     true,
			errContains: "unsupported file extension",
		},
		{
			name:        "no_steps",
			file:        "empty.yaml",
			content:     "root: /tmp\n",
			wantErr:     true,
			errContains: "no steps",
		},
		{
			name: "unknown_op",
			file: "badop.yaml",
			content: `
steps:
  - op: shred
    source: x
`,
			wantErr:     true,
			errContains: "unknown op",
		},
		{
			name: "missing_destination",
			file: "nodest.yaml",
			content: `
steps:
  - op: copy
    source: x
`,
			wantErr:     true,
			errContains: "destination is required",
		},
		{
			name: "unwanted_destination",
			file: "extradest.yaml",
			content: `
steps:
  - op: delete
    source: x
    destination: y
`,
			wantErr:     true,
			errContains: "destination is not accepted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, tt.file, tt.content)
			m, err := Load(ctx, path)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorContains(t, err, tt.errContains)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, path, m.Location())
			tt.check(t, m)
		})
	}
}

func TestPolicyConfigParsing(t *testing.T) {
	tests := []struct {
		name    string
		in      PolicyConfig
		want    operation.Policy
		wantErr bool
	}{
		{
			name: "empty_defers_everything",
			in:   PolicyConfig{},
			want: operation.Policy{},
		},
		{
			name: "full",
			in: PolicyConfig{
				MissingSource:       "skip",
				ExistingDestination: "overwrite",
				Estimation:          "on-run",
				Rollback:            "disabled",
				ContinueOnError:     true,
				OmitPackageMounts:   true,
			},
			want: operation.Policy{
				MissingSource:       operation.MissingSourceSkip,
				ExistingDestination: operation.ExistingDestinationOverwrite,
				Estimation:          operation.EstimationOnRun,
				Rollback:            operation.RollbackDisabled,
				Flags:               operation.FlagContinueOnError | operation.FlagOmitPackageMounts,
			},
		},
		{
			name:    "bad_enum",
			in:      PolicyConfig{MissingSource: "explode"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Policy()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPool(t *testing.T) {
	t.Run("nil_without_pool_block", func(t *testing.T) {
		m := &Manifest{}
		alloc, err := m.BuildPool()
		require.NoError(t, err)
		assert.Nil(t, alloc, "no pool block means the session default")
	})

	t.Run("defaults_fill_in", func(t *testing.T) {
		m := &Manifest{Pool: &PoolConfig{MaxBlocks: 2}}
		alloc, err := m.BuildPool()
		require.NoError(t, err)
		require.NotNil(t, alloc)
		assert.Equal(t, defaultPoolBlockSize, alloc.BlockSize())
	})
}

func TestCompileAndRun(t *testing.T) {
	ctx := context.Background()

	m := &Manifest{
		Defaults: &PolicyConfig{ExistingDestination: "overwrite"},
		Steps: []Step{
			{Op: "mkdir", Source: "out"},
			{Op: "copy", Source: "in.txt", Destination: "out/in.txt"},
			{Op: "move", Source: "out/in.txt", Destination: "out/renamed.txt"},
			{Op: "delete", Source: "in.txt"},
		},
	}
	require.NoError(t, m.Validate())

	fs := memfs.New()
	require.NoError(t, fs.WriteFile("in.txt", []byte("payload")))

	s, err := m.NewSession()
	require.NoError(t, err)
	defer s.Close()

	batch, err := Compile(s, m, fs)
	require.NoError(t, err)
	require.Len(t, batch.Operations(), 4)

	// Dependent steps must survive an up-front estimate: each one checks
	// its own viability right before it runs.
	require.NoError(t, batch.Estimate(ctx))
	require.NoError(t, batch.Run(ctx))
	require.NoError(t, batch.AssertSuccessful())

	data, err := fs.ReadFile("out/renamed.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	_, err = fs.Entry(ctx, "in.txt")
	assert.Error(t, err, "the manifest deleted the input")
}

func TestCompileStepPolicyOverride(t *testing.T) {
	ctx := context.Background()

	m := &Manifest{
		Steps: []Step{
			{Op: "delete", Source: "ghost", Policy: &PolicyConfig{MissingSource: "skip"}},
		},
	}
	require.NoError(t, m.Validate())

	fs := memfs.New()
	s, err := m.NewSession()
	require.NoError(t, err)
	defer s.Close()

	batch, err := Compile(s, m, fs)
	require.NoError(t, err)
	require.NoError(t, batch.Run(ctx))

	child := batch.Operations()[0]
	assert.Equal(t, operation.StateSkipped, child.State(),
		"the step policy should override the session default")
}
