// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides the structured logger shared by every deskmind
// binary. Logs are emitted as JSON on stderr so that container log
// collectors can parse them without extra configuration; a service name
// and static attributes are attached to every record.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// =============================================================================
// Configuration
// =============================================================================

// Config controls logger construction.
type Config struct {
	// Level is the minimum level emitted: "debug", "info", "warn", "error".
	// Unknown values fall back to "info".
	Level string

	// Service is attached to every record as the "service" attribute.
	Service string

	// Output overrides the destination. Defaults to os.Stderr.
	Output io.Writer

	// AddSource includes file:line of the call site. Expensive; keep off
	// outside of debugging sessions.
	AddSource bool
}

// ParseLevel maps a config string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Construction
// =============================================================================

// New builds a JSON slog.Logger from cfg. The returned logger is safe for
// concurrent use.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	})
	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger
}

var (
	defaultMu     sync.Mutex
	defaultLogger *slog.Logger
)

// Default returns the process-wide logger, constructing an info-level JSON
// logger on first use. Init replaces it.
func Default() *slog.Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(Config{})
	}
	return defaultLogger
}

// Init builds the logger from cfg, installs it as both the package default
// and the slog default, and returns it. Call once near process start.
func Init(cfg Config) *slog.Logger {
	logger := New(cfg)
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
	slog.SetDefault(logger)
	return logger
}
