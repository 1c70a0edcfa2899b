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

package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/walteh/vfsops/pkg/config"
	"github.com/walteh/vfsops/pkg/display"
	"github.com/walteh/vfsops/pkg/operation"
	"github.com/walteh/vfsops/pkg/pool"
	"github.com/walteh/vfsops/pkg/vfs"
	"github.com/walteh/vfsops/pkg/vfs/localfs"
	"gitlab.com/tozd/go/errors"
)

// 🔧 RootOpts carries the flags shared by every subcommand.
type RootOpts struct {
	Root            string
	Debug           bool
	Quiet           bool
	RollbackOnError bool

	OnMissing       string
	OnExisting      string
	ContinueOnError bool
	OmitPatterns    []string

	MaxBlocks int
	BlockSize int
}

// Backend opens the local filesystem backend rooted at --root.
func (o *RootOpts) Backend() (vfs.Backend, error) {
	fsys, err := localfs.New(o.Root)
	if err != nil {
		return nil, errors.Errorf("opening root %q: %w", o.Root, err)
	}
	return fsys, nil
}

// Policy resolves the policy flags.
func (o *RootOpts) Policy() (operation.Policy, error) {
	pc := config.PolicyConfig{
		MissingSource:       o.OnMissing,
		ExistingDestination: o.OnExisting,
		ContinueOnError:     o.ContinueOnError,
		OmitPatterns:        o.OmitPatterns,
	}
	return pc.Policy()
}

// Session builds the session the command runs under.
func (o *RootOpts) Session() (*operation.Session, error) {
	pol, err := o.Policy()
	if err != nil {
		return nil, err
	}

	var alloc pool.Allocator
	if o.MaxBlocks > 0 {
		size := o.BlockSize
		if size <= 0 {
			size = 64 * 1024
		}
		alloc, err = pool.New(pool.Options{
			BlockSize:   size,
			MaxBlocks:   o.MaxBlocks,
			MaxRecycled: o.MaxBlocks,
		})
		if err != nil {
			return nil, err
		}
	}

	return operation.NewSession(operation.SessionOptions{
		Policy: pol,
		Pool:   alloc,
	}), nil
}

// Execute drives one operation end to end: subscribe the printer, wire
// SIGINT to session cancellation, estimate, run (with rollback when asked)
// and print the outcome.
func (o *RootOpts) Execute(ctx context.Context, s *operation.Session, op operation.Operation) error {
	defer s.Close()

	printer := display.New(os.Stdout, o.Quiet)
	sub := s.Subscribe(printer)
	defer sub.Close()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			zerolog.Ctx(ctx).Warn().Msg("interrupt received, cancelling session")
			s.Cancel()
		case <-s.Done():
		}
	}()

	if err := op.Estimate(ctx); err != nil {
		return errors.Errorf("estimating: %w", err)
	}

	if o.RollbackOnError {
		if err := operation.RunWithRollback(ctx, op); err != nil {
			return err
		}
	} else if err := op.Run(ctx); err != nil {
		return err
	}

	if composite, ok := op.(interface{ Operations() []operation.Operation }); ok {
		printer.Summary(composite.Operations())
	}
	return op.AssertSuccessful()
}
