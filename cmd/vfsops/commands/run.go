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
	"github.com/spf13/cobra"
	"github.com/walteh/vfsops/pkg/config"
	"github.com/walteh/vfsops/pkg/vfs/localfs"
	"gitlab.com/tozd/go/errors"
)

// NewRunCmd creates the run command: execute a manifest.
func NewRunCmd(opts *RootOpts) *cobra.Command {
	var manifestFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the steps of a manifest file",
		Long: `Run loads a manifest (.yaml, .json, .hcl or .vfsops), compiles its
steps into one batch and executes them in order. The manifest's defaults
block sets the session policy; its pool block bounds the block pool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			m, err := config.Load(ctx, manifestFile)
			if err != nil {
				return errors.Errorf("loading manifest: %w", err)
			}

			root := opts.Root
			if m.Root != "" && root == "." {
				root = m.Root
			}
			fsys, err := localfs.New(root)
			if err != nil {
				return errors.Errorf("opening root %q: %w", root, err)
			}

			s, err := m.NewSession()
			if err != nil {
				return err
			}

			batch, err := config.Compile(s, m, fsys)
			if err != nil {
				return errors.Errorf("compiling manifest: %w", err)
			}

			return opts.Execute(ctx, s, batch)
		},
	}

	cmd.Flags().StringVarP(&manifestFile, "manifest", "m", ".vfsops", "manifest file path")
	return cmd
}
