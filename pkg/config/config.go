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

// Package config loads operation manifests. A manifest names a root, an
// optional block pool, default policy switches and an ordered list of
// steps; Compile turns it into a Batch ready to estimate and run.
package config

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rs/zerolog"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// 📚 Manifest is the complete configuration of one operation run.
type Manifest struct {
	// Root is the directory the backend is rooted at. Relative paths in
	// steps resolve against it.
	Root string `json:"root,omitempty" yaml:"root,omitempty" hcl:"root,optional"`

	// Pool bounds the block pool of the run. Unset means unbounded.
	Pool *PoolConfig `json:"pool,omitempty" yaml:"pool,omitempty" hcl:"pool,block"`

	// Defaults is the session default policy.
	Defaults *PolicyConfig `json:"defaults,omitempty" yaml:"defaults,omitempty" hcl:"defaults,block"`

	// Steps run in order.
	Steps []Step `json:"steps" yaml:"steps" hcl:"step,block"`

	location string
}

// 🔧 PoolConfig bounds the block pool.
type PoolConfig struct {
	BlockSize     int  `json:"block_size,omitempty"     yaml:"block_size,omitempty"     hcl:"block_size,optional"`
	MaxBlocks     int  `json:"max_blocks,omitempty"     yaml:"max_blocks,omitempty"     hcl:"max_blocks,optional"`
	MaxRecycled   int  `json:"max_recycled,omitempty"   yaml:"max_recycled,omitempty"   hcl:"max_recycled,optional"`
	ClearRecycled bool `json:"clear_recycled,omitempty" yaml:"clear_recycled,omitempty" hcl:"clear_recycled,optional"`
}

// 📜 PolicyConfig is the textual form of a policy; Compile parses the enum
// fields.
type PolicyConfig struct {
	MissingSource       string `json:"missing_source,omitempty"       yaml:"missing_source,omitempty"       hcl:"missing_source,optional"`
	ExistingDestination string `json:"existing_destination,omitempty" yaml:"existing_destination,omitempty" hcl:"existing_destination,optional"`
	Estimation          string `json:"estimation,omitempty"           yaml:"estimation,omitempty"           hcl:"estimation,optional"`
	Rollback            string `json:"rollback,omitempty"             yaml:"rollback,omitempty"             hcl:"rollback,optional"`

	OmitPatterns []string `json:"omit_patterns,omitempty" yaml:"omit_patterns,omitempty" hcl:"omit_patterns,optional"`

	CancelAllOnError  bool `json:"cancel_all_on_error,omitempty" yaml:"cancel_all_on_error,omitempty" hcl:"cancel_all_on_error,optional"`
	OmitPackageMounts bool `json:"omit_package_mounts,omitempty" yaml:"omit_package_mounts,omitempty" hcl:"omit_package_mounts,optional"`
	ContinueOnError   bool `json:"continue_on_error,omitempty"   yaml:"continue_on_error,omitempty"   hcl:"continue_on_error,optional"`
	SuppressErrors    bool `json:"suppress_errors,omitempty"     yaml:"suppress_errors,omitempty"     hcl:"suppress_errors,optional"`
}

// 📦 Step is one operation of the manifest. In HCL the kind is the block
// label: step "copy" { ... }.
type Step struct {
	Op          string        `json:"op"                    yaml:"op"                    hcl:"op,label"`
	Source      string        `json:"source,omitempty"      yaml:"source,omitempty"      hcl:"source,optional"`
	Destination string        `json:"destination,omitempty" yaml:"destination,omitempty" hcl:"destination,optional"`
	Recurse     bool          `json:"recurse,omitempty"     yaml:"recurse,omitempty"     hcl:"recurse,optional"`
	Policy      *PolicyConfig `json:"policy,omitempty"      yaml:"policy,omitempty"      hcl:"policy,block"`
}

// Location returns the path the manifest was loaded from.
func (m *Manifest) Location() string {
	return m.location
}

// 🎯 Load loads a manifest from a file. The format is determined by the
// file extension:
// - .json for JSON
// - .yaml or .yml for YAML
// - .hcl for HCL
// - .vfsops will try both YAML and HCL formats
func Load(ctx context.Context, path string) (*Manifest, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading manifest")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading manifest file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var m *Manifest

	if ext == ".vfsops" || filepath.Base(path) == ".vfsops" {
		m, err = loadYAML(data)
		if err != nil {
			m, err = loadHCL(data, path)
		}
		if err != nil {
			return nil, errors.Errorf("failed to parse .vfsops as YAML or HCL: %w", err)
		}
	} else {
		switch ext {
		case ".json":
			m, err = loadJSON(data)
		case ".yaml", ".yml":
			m, err = loadYAML(data)
		case ".hcl":
			m, err = loadHCL(data, path)
		default:
			return nil, errors.Errorf("unsupported file extension %q", ext)
		}
		if err != nil {
			return nil, err
		}
	}

	m.location = path
	if err := m.Validate(); err != nil {
		return nil, errors.Errorf("validating manifest: %w", err)
	}
	return m, nil
}

func loadJSON(data []byte) (*Manifest, error) {
	var m Manifest
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&m); err != nil {
		return nil, errors.Errorf("parsing JSON: %w", err)
	}
	return &m, nil
}

func loadYAML(data []byte) (*Manifest, error) {
	var m Manifest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&m); err != nil {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}
	return &m, nil
}

func loadHCL(data []byte, filename string) (*Manifest, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	var m Manifest
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &m)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}
	return &m, nil
}

// 🔍 Validate checks structural requirements before compilation.
func (m *Manifest) Validate() error {
	if len(m.Steps) == 0 {
		return errors.New("manifest has no steps")
	}
	for i := range m.Steps {
		step := &m.Steps[i]
		if step.Op == "" {
			return errors.Errorf("step %d: op is required", i)
		}
		kind, err := stepKind(step.Op)
		if err != nil {
			return errors.Errorf("step %d: %w", i, err)
		}
		if step.Source == "" {
			return errors.Errorf("step %d (%s): source is required", i, step.Op)
		}
		if kind.needsDestination && step.Destination == "" {
			return errors.Errorf("step %d (%s): destination is required", i, step.Op)
		}
		if !kind.needsDestination && step.Destination != "" {
			return errors.Errorf("step %d (%s): destination is not accepted", i, step.Op)
		}
	}
	if m.Pool != nil {
		if m.Pool.BlockSize < 0 || m.Pool.MaxBlocks < 0 || m.Pool.MaxRecycled < 0 {
			return errors.New("pool sizes must not be negative")
		}
	}
	return nil
}
