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

// NewDeleteCmd creates the delete command.
func NewDeleteCmd(opts *RootOpts) *cobra.Command {
	var recurse bool

	cmd := &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete an entry",
		Long: `Delete removes one entry. With --recurse a directory is removed as a
planned tree delete: every file first, then the directories bottom-up,
each step an individually estimated and cancellable operation.`,
		Args: cobra.ExactArgs(1),
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

			var op operation.Operation
			if recurse {
				op = operation.NewDeleteTree(s, fsys, args[0])
			} else {
				op = operation.NewDelete(s, fsys, args[0], false)
			}
			return opts.Execute(ctx, s, op)
		},
	}

	cmd.Flags().BoolVar(&recurse, "recurse", false, "delete directories and their contents")
	return cmd
}
