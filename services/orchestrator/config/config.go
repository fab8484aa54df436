// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the orchestrator configuration from the
// environment. Every knob has a working default; a bare `deskmind serve`
// starts in lightweight mode with whatever providers have credentials.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/atlasworks/deskmind/services/orchestrator/store"
)

// Config is the full runtime configuration.
type Config struct {
	// Port the HTTP API listens on.
	Port int

	// LogLevel is debug, info, warn or error.
	LogLevel string

	// ProviderOrder ranks the fallback chain, comma separated. Known
	// names: openai, gemini. Providers without credentials are skipped.
	ProviderOrder []string

	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string

	// WeaviateURL enables retrieval grounding when set.
	WeaviateURL   string
	DocumentClass string

	// ToolsBaseURL enables the HTTP-backed agent tools when set.
	ToolsBaseURL string

	// Postgres enables conversation persistence when PostgresEnabled.
	Postgres        store.Config
	PostgresEnabled bool

	// HistoryLimit bounds turns loaded into prompts.
	HistoryLimit int

	// MaxIterations bounds the reasoning tool loop.
	MaxIterations int

	// MaxConcurrentChats caps admitted chat requests.
	MaxConcurrentChats int

	// SearchLimit caps retrieved documents per query.
	SearchLimit int

	// Temperature applies to answer synthesis.
	Temperature float32

	// OTLPEndpoint enables trace export when set, e.g. "localhost:4317".
	OTLPEndpoint string

	// ShutdownGrace bounds graceful HTTP shutdown.
	ShutdownGrace time.Duration
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float32) float32 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	cfg := Config{
		Port:               getenvInt("DESKMIND_PORT", 8080),
		LogLevel:           getenv("DESKMIND_LOG_LEVEL", "info"),
		OpenAIAPIKey:       getenv("OPENAI_API_KEY", ""),
		OpenAIModel:        getenv("DESKMIND_OPENAI_MODEL", ""),
		GeminiAPIKey:       getenv("GEMINI_API_KEY", ""),
		GeminiModel:        getenv("DESKMIND_GEMINI_MODEL", ""),
		WeaviateURL:        getenv("WEAVIATE_SERVICE_URL", ""),
		DocumentClass:      getenv("DESKMIND_DOCUMENT_CLASS", "Document"),
		ToolsBaseURL:       strings.TrimRight(getenv("DESKMIND_TOOLS_URL", ""), "/"),
		HistoryLimit:       getenvInt("DESKMIND_HISTORY_LIMIT", 8),
		MaxIterations:      getenvInt("DESKMIND_MAX_ITERATIONS", 5),
		MaxConcurrentChats: getenvInt("DESKMIND_MAX_CONCURRENT_CHATS", 50),
		SearchLimit:        getenvInt("DESKMIND_SEARCH_LIMIT", 4),
		Temperature:        getenvFloat("DESKMIND_TEMPERATURE", 0.2),
		OTLPEndpoint:       getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ShutdownGrace:      time.Duration(getenvInt("DESKMIND_SHUTDOWN_GRACE_SECONDS", 15)) * time.Second,
	}

	for _, name := range strings.Split(getenv("DESKMIND_PROVIDER_ORDER", "openai,gemini"), ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			cfg.ProviderOrder = append(cfg.ProviderOrder, name)
		}
	}

	if host := getenv("POSTGRES_HOST", ""); host != "" {
		cfg.PostgresEnabled = true
		cfg.Postgres = store.Config{
			Host:     host,
			Port:     getenvInt("POSTGRES_PORT", 5432),
			Database: getenv("POSTGRES_DB", "deskmind"),
			User:     getenv("POSTGRES_USER", "deskmind"),
			Password: getenv("POSTGRES_PASSWORD", ""),
			SSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
		}
	}
	return cfg
}
