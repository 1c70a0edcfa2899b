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

// NewMoveCmd creates the move command.
func NewMoveCmd(opts *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "move <source> <destination>",
		Short: "Rename an entry within the root",
		Args:  cobra.ExactArgs(2),
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

			op := operation.NewMove(s, fsys, args[0], args[1])
			return opts.Execute(ctx, s, op)
		},
	}
}
