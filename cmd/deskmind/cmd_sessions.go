// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	orchestrator "github.com/atlasworks/deskmind/services/orchestrator"
	"github.com/atlasworks/deskmind/services/orchestrator/config"
)

var (
	sessionName  string
	sessionEmail string
	sessionTopic string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage conversation sessions",
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the recent turns of a session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		o, err := orchestrator.New(ctx, config.FromEnv())
		if err != nil {
			return err
		}
		defer o.Close(ctx)

		turns, err := o.Assistant.History(ctx, sessionName, sessionEmail, sessionTopic)
		if err != nil {
			return err
		}
		if len(turns) == 0 {
			fmt.Println("no history")
			return nil
		}
		for _, t := range turns {
			fmt.Printf("[%s] %s\n", t.Role, t.Content)
		}
		return nil
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the turns of a session",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		o, err := orchestrator.New(ctx, config.FromEnv())
		if err != nil {
			return err
		}
		defer o.Close(ctx)

		if err := o.Assistant.ClearSession(ctx, sessionName, sessionEmail, sessionTopic); err != nil {
			return err
		}
		fmt.Println("cleared")
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a session and all of its history",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		o, err := orchestrator.New(ctx, config.FromEnv())
		if err != nil {
			return err
		}
		defer o.Close(ctx)

		deleted, err := o.Assistant.DeleteSession(ctx, sessionName, sessionEmail, sessionTopic)
		if err != nil {
			return err
		}
		if deleted {
			fmt.Println("deleted")
		} else {
			fmt.Println("no such session")
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{sessionsShowCmd, sessionsClearCmd, sessionsDeleteCmd} {
		c.Flags().StringVar(&sessionName, "session", "cli", "session name")
		c.Flags().StringVar(&sessionEmail, "email", "cli@localhost", "identity the session belongs to")
		c.Flags().StringVar(&sessionTopic, "topic", "general", "assistant domain")
		sessionsCmd.AddCommand(c)
	}
}
