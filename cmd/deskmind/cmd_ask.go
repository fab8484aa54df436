// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	orchestrator "github.com/atlasworks/deskmind/services/orchestrator"
	"github.com/atlasworks/deskmind/services/orchestrator/agent"
	"github.com/atlasworks/deskmind/services/orchestrator/config"
	"github.com/atlasworks/deskmind/services/orchestrator/services"
)

var (
	askTopic   string
	askEmail   string
	askSession string
	askMode    string
	askVerbose bool
)

// askCmd runs one exchange in process, streaming the answer to stdout.
// It exercises the same pipeline as the HTTP API, pulled synchronously.
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask the assistant one question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		o, err := orchestrator.New(ctx, config.FromEnv())
		if err != nil {
			return err
		}
		defer o.Close(ctx)

		stream := o.Assistant.ChatStream(ctx, services.ChatInput{
			Prompt:      strings.Join(args, " "),
			Topic:       askTopic,
			SessionName: askSession,
			Email:       askEmail,
			Mode:        agent.ParseMode(askMode),
		})
		defer stream.Close()

		for {
			fragment, more, err := stream.Next(ctx)
			if err != nil {
				return fmt.Errorf("stream answer: %w", err)
			}
			if !more {
				break
			}
			fmt.Print(fragment)
		}
		fmt.Println()

		if err := stream.Err(); err != nil {
			return err
		}
		if askVerbose {
			if result := stream.Result(); result != nil {
				fmt.Fprintf(os.Stderr, "\n%d tool call(s), %.2fs\n", len(result.ToolUsages), result.Elapsed.Seconds())
				for _, u := range result.ToolUsages {
					fmt.Fprintf(os.Stderr, "  %s(%q) %.3fs\n", u.Tool, u.Input, u.LatencySeconds)
				}
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().StringVar(&askTopic, "topic", "general", "assistant domain to ask within")
	askCmd.Flags().StringVar(&askEmail, "email", "cli@localhost", "identity the session belongs to")
	askCmd.Flags().StringVar(&askSession, "session", "cli", "session name for follow-up questions")
	askCmd.Flags().StringVar(&askMode, "mode", "normal", "reasoning mode: normal or think")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print tool usage and timing")
}
