// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	orchestrator "github.com/atlasworks/deskmind/services/orchestrator"
	"github.com/atlasworks/deskmind/services/orchestrator/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		o, err := orchestrator.New(ctx, config.FromEnv())
		if err != nil {
			return err
		}
		return o.Serve(ctx)
	},
}
