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
	"github.com/walteh/vfsops/pkg/operation"
)

// NewCopyCmd creates the copy command.
func NewCopyCmd(opts *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <source> <destination>",
		Short: "Copy a file or directory tree",
		Long: `Copy streams a file through the block pool, or, when the source is a
directory, plans and runs a whole-tree copy: directories first, then file
contents, depth by depth.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			fsys, err := opts.Backend()
			if err != nil {
				return err
			}
			s, err := opts.Session()
			if err != nil {
				return err
			}

			src, dst := args[0], args[1]
			var op operation.Operation
			entry, err := fsys.Entry(ctx, src)
			if err == nil && entry.Dir {
				op = operation.NewCopyTree(s, fsys, src, fsys, dst)
			} else {
				// Missing sources flow through the engine so the
				// missing-source policy applies.
				op = operation.NewCopyFile(s, fsys, src, fsys, dst)
			}

			return opts.Execute(ctx, s, op)
		},
	}
}
