// Copyright (C) 2025 TableLake Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command tablevacuum is a thin CLI wrapper over the table log retention
// and cleanup core (pkg/cleanup). It exposes a single `vacuum`
// subcommand; all cleanup decisions are made by pkg/cleanup.Driver, not
// by this package.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("tablevacuum: %v", err)
	}
}
