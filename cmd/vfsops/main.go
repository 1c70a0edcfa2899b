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

package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/walteh/vfsops/cmd/vfsops/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vfsops",
		Short: "Transactional file operations over pluggable backends",
		Long: `vfsops runs file operations — copies, moves, deletes, whole-tree
transfers — through a transactional engine: every operation is estimated
before it mutates, can be cancelled mid-flight, and tracks enough of what
it changed to offer a rollback.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addRootFlags(rootCmd)

	rootCmd.AddCommand(
		commands.NewRunCmd(rootOpts),
		commands.NewCopyCmd(rootOpts),
		commands.NewMoveCmd(rootOpts),
		commands.NewDeleteCmd(rootOpts),
		commands.NewMkdirCmd(rootOpts),
	)

	// Commands resolve their logger through the context; setupLogging
	// installs zerolog.DefaultContextLogger, which Ctx falls back to.
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
