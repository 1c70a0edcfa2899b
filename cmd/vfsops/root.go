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
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/vfsops/cmd/vfsops/commands"
)

var rootOpts = &commands.RootOpts{}

// addRootFlags adds the flags shared by every subcommand.
func addRootFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&rootOpts.Root, "root", "r", ".", "directory the backend is rooted at")
	f.BoolVarP(&rootOpts.Debug, "debug", "d", false, "enable debug logging")
	f.BoolVarP(&rootOpts.Quiet, "quiet", "q", false, "only print errors")
	f.BoolVar(&rootOpts.RollbackOnError, "rollback-on-error", false, "undo completed work when a run fails")
	f.StringVar(&rootOpts.OnMissing, "on-missing", "", "missing source handling: fail or skip")
	f.StringVar(&rootOpts.OnExisting, "on-existing", "", "existing destination handling: fail, skip or overwrite")
	f.BoolVar(&rootOpts.ContinueOnError, "continue-on-error", false, "keep going past failing steps and aggregate errors")
	f.StringSliceVar(&rootOpts.OmitPatterns, "omit", nil, "glob patterns tree operations exclude")
	f.IntVar(&rootOpts.MaxBlocks, "max-blocks", 0, "bound the block pool (0 = unbounded)")
	f.IntVar(&rootOpts.BlockSize, "block-size", 0, "block size in bytes for streaming transfers")
}

// setupLogging configures zerolog based on flags.
func setupLogging() {
	level := zerolog.InfoLevel
	if rootOpts.Debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})).Level(level).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
}
