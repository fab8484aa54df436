// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deskmind",
	Short: "Internal employee assistant",
	Long: `deskmind answers employee questions over internal documents.

It runs an HTTP API (serve) and ships small operational commands for
asking one-off questions and managing conversation sessions. All
configuration comes from the environment; see the repository README for
the variable list.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sessionsCmd)
}
