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
	"github.com/walteh/vfsops/pkg/operation"
	"github.com/walteh/vfsops/pkg/pool"
	"github.com/walteh/vfsops/pkg/vfs"
	"gitlab.com/tozd/go/errors"
)

// defaultPoolBlocks caps a manifest pool when only block_size is given.
const defaultPoolBlocks = 32

// defaultPoolBlockSize sizes manifest pool blocks when only max_blocks is
// given.
const defaultPoolBlockSize = 64 * 1024

type kindInfo struct {
	needsDestination bool
}

var stepKinds = map[string]kindInfo{
	"mkdir":         {},
	"delete":        {},
	"delete-tree":   {},
	"copy":          {needsDestination: true},
	"copy-tree":     {needsDestination: true},
	"move":          {needsDestination: true},
	"transfer-tree": {needsDestination: true},
}

func stepKind(op string) (kindInfo, error) {
	kind, ok := stepKinds[op]
	if !ok {
		return kindInfo{}, errors.Errorf("unknown op %q (want mkdir, delete, delete-tree, copy, copy-tree, move or transfer-tree)", op)
	}
	return kind, nil
}

// Policy parses the textual policy fields into an engine policy. Empty
// enum fields stay at their zero value and defer to the session default.
func (pc *PolicyConfig) Policy() (operation.Policy, error) {
	var p operation.Policy
	if pc == nil {
		return p, nil
	}

	switch pc.MissingSource {
	case "":
	case "fail":
		p.MissingSource = operation.MissingSourceFail
	case "skip":
		p.MissingSource = operation.MissingSourceSkip
	default:
		return p, errors.Errorf("missing_source %q (want fail or skip)", pc.MissingSource)
	}

	switch pc.ExistingDestination {
	case "":
	case "fail":
		p.ExistingDestination = operation.ExistingDestinationFail
	case "skip":
		p.ExistingDestination = operation.ExistingDestinationSkip
	case "overwrite":
		p.ExistingDestination = operation.ExistingDestinationOverwrite
	default:
		return p, errors.Errorf("existing_destination %q (want fail, skip or overwrite)", pc.ExistingDestination)
	}

	switch pc.Estimation {
	case "":
	case "eager":
		p.Estimation = operation.EstimationEager
	case "deferred":
		p.Estimation = operation.EstimationDeferred
	case "on-run":
		p.Estimation = operation.EstimationOnRun
	default:
		return p, errors.Errorf("estimation %q (want eager, deferred or on-run)", pc.Estimation)
	}

	switch pc.Rollback {
	case "":
	case "enabled":
		p.Rollback = operation.RollbackEnabled
	case "disabled":
		p.Rollback = operation.RollbackDisabled
	default:
		return p, errors.Errorf("rollback %q (want enabled or disabled)", pc.Rollback)
	}

	p.OmitPatterns = append(p.OmitPatterns, pc.OmitPatterns...)

	if pc.CancelAllOnError {
		p.Flags |= operation.FlagCancelAllOnError
	}
	if pc.OmitPackageMounts {
		p.Flags |= operation.FlagOmitPackageMounts
	}
	if pc.ContinueOnError {
		p.Flags |= operation.FlagContinueOnError
	}
	if pc.SuppressErrors {
		p.Flags |= operation.FlagSuppressErrors
	}
	return p, nil
}

// BuildPool constructs the manifest's block allocator, or nil when the
// manifest does not bound the pool.
func (m *Manifest) BuildPool() (pool.Allocator, error) {
	if m.Pool == nil {
		return nil, nil
	}

	opts := pool.Options{
		BlockSize:     m.Pool.BlockSize,
		MaxBlocks:     m.Pool.MaxBlocks,
		MaxRecycled:   m.Pool.MaxRecycled,
		ClearRecycled: m.Pool.ClearRecycled,
	}
	if opts.BlockSize == 0 {
		opts.BlockSize = defaultPoolBlockSize
	}
	if opts.MaxBlocks == 0 {
		opts.MaxBlocks = defaultPoolBlocks
	}
	if opts.MaxRecycled == 0 {
		opts.MaxRecycled = opts.MaxBlocks
	}

	p, err := pool.New(opts)
	if err != nil {
		return nil, errors.Errorf("building pool: %w", err)
	}
	return p, nil
}

// NewSession builds the session a compiled manifest runs under: the
// defaults block becomes the session policy and the pool block bounds the
// allocator.
func (m *Manifest) NewSession() (*operation.Session, error) {
	pol, err := m.Defaults.Policy()
	if err != nil {
		return nil, errors.Errorf("defaults: %w", err)
	}
	alloc, err := m.BuildPool()
	if err != nil {
		return nil, err
	}
	return operation.NewSession(operation.SessionOptions{
		Policy: pol,
		Pool:   alloc,
	}), nil
}

// Compile turns the manifest's steps into one Batch against fsys. Each
// step's policy block, when present, overrides the session default for
// that step only.
func Compile(s *operation.Session, m *Manifest, fsys vfs.Backend) (*operation.Batch, error) {
	batch := operation.NewBatch(s, "manifest "+m.location)

	for i := range m.Steps {
		step := &m.Steps[i]
		op, err := compileStep(s, step, fsys)
		if err != nil {
			return nil, errors.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		batch.Add(op)
	}
	return batch, nil
}

func compileStep(s *operation.Session, step *Step, fsys vfs.Backend) (operation.Operation, error) {
	pol, err := step.Policy.Policy()
	if err != nil {
		return nil, err
	}
	// Steps routinely depend on earlier steps' mutations, so each step
	// estimates right before it runs unless the manifest says otherwise.
	if pol.Estimation == operation.EstimationDefault {
		pol.Estimation = operation.EstimationDeferred
	}

	switch step.Op {
	case "mkdir":
		return operation.NewCreateDirectory(s, fsys, step.Source).WithPolicy(pol), nil
	case "delete":
		return operation.NewDelete(s, fsys, step.Source, step.Recurse).WithPolicy(pol), nil
	case "delete-tree":
		return operation.NewDeleteTree(s, fsys, step.Source).WithPolicy(pol), nil
	case "copy":
		return operation.NewCopyFile(s, fsys, step.Source, fsys, step.Destination).WithPolicy(pol), nil
	case "copy-tree":
		return operation.NewCopyTree(s, fsys, step.Source, fsys, step.Destination).WithPolicy(pol), nil
	case "move":
		return operation.NewMove(s, fsys, step.Source, step.Destination).WithPolicy(pol), nil
	case "transfer-tree":
		return operation.NewTransferTree(s, fsys, step.Source, fsys, step.Destination).WithPolicy(pol), nil
	default:
		return nil, errors.Errorf("unknown op %q", step.Op)
	}
}
