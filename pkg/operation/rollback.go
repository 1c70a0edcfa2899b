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

package operation

import (
	"context"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// RunWithRollback executes op and, if it errors, attempts the inverse.
// The original failure is always returned; a rollback failure joins it. A
// cancelled run is not rolled back — partially applied work stays in place
// for the caller to inspect.
func RunWithRollback(ctx context.Context, op Operation) error {
	err := op.Run(ctx)
	if err == nil || isCancellation(err) {
		return err
	}

	inverse := op.CreateRollback()
	if inverse == nil {
		zerolog.Ctx(ctx).Warn().
			Str("operation", op.Describe()).
			Msg("no rollback available after failure")
		return err
	}

	zerolog.Ctx(ctx).Info().
		Str("operation", op.Describe()).
		Str("rollback", inverse.Describe()).
		Msg("rolling back failed operation")

	if rberr := inverse.Run(ctx); rberr != nil {
		return errors.Errorf("rollback of %s also failed: %w",
			op.Describe(), errors.Join(err, rberr))
	}
	return err
}
