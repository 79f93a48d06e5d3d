// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jsdraven/catalog-api/internal/config"
	"github.com/jsdraven/catalog-api/internal/entry"
)

// run loads the configuration and serves until ctx is done. It returns the
// process exit code; startup failures are also reported on stderr since the
// logger may not have been built yet.
func run(ctx context.Context, stderr io.Writer) int {
	cfg := config.Load()
	if err := entry.Run(ctx, cfg); err != nil {
		fmt.Fprintf(stderr, "catalog-api: %v\n", err)
		return 1
	}
	return 0
}
