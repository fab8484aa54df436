// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.HistoryLimit != 8 {
		t.Errorf("HistoryLimit = %d, want 8", cfg.HistoryLimit)
	}
	if cfg.MaxConcurrentChats != 50 {
		t.Errorf("MaxConcurrentChats = %d, want 50", cfg.MaxConcurrentChats)
	}
	if cfg.MaxIterations != 5 {
		t.Errorf("MaxIterations = %d, want 5", cfg.MaxIterations)
	}
	if len(cfg.ProviderOrder) != 2 || cfg.ProviderOrder[0] != "openai" || cfg.ProviderOrder[1] != "gemini" {
		t.Errorf("ProviderOrder = %v", cfg.ProviderOrder)
	}
	if cfg.PostgresEnabled {
		t.Error("PostgresEnabled without POSTGRES_HOST")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DESKMIND_PORT", "9000")
	t.Setenv("DESKMIND_PROVIDER_ORDER", " Gemini , openai ")
	t.Setenv("DESKMIND_TOOLS_URL", "http://tools:8001/")
	t.Setenv("DESKMIND_TEMPERATURE", "0.7")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PASSWORD", "hunter2")

	cfg := FromEnv()
	if cfg.Port != 9000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if len(cfg.ProviderOrder) != 2 || cfg.ProviderOrder[0] != "gemini" {
		t.Errorf("ProviderOrder = %v, want gemini first", cfg.ProviderOrder)
	}
	if cfg.ToolsBaseURL != "http://tools:8001" {
		t.Errorf("ToolsBaseURL = %q, trailing slash must be stripped", cfg.ToolsBaseURL)
	}
	if cfg.Temperature != 0.7 {
		t.Errorf("Temperature = %v", cfg.Temperature)
	}
	if !cfg.PostgresEnabled || cfg.Postgres.Host != "db.internal" || cfg.Postgres.Password != "hunter2" {
		t.Errorf("Postgres = %+v enabled=%v", cfg.Postgres, cfg.PostgresEnabled)
	}
}

func TestFromEnvIgnoresBadNumbers(t *testing.T) {
	t.Setenv("DESKMIND_PORT", "not-a-number")
	cfg := FromEnv()
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want default on parse failure", cfg.Port)
	}
}
