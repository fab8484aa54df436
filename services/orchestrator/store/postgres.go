// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store persists conversations to Postgres through pgx connection
// pools. Pools are shared per DSN across the process; repositories ensure
// their schema on construction so a fresh database works without a
// separate migration step.
package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// =============================================================================
// Connection configuration
// =============================================================================

// Config describes a Postgres target.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MinConns int32
	MaxConns int32
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MinConns == 0 {
		c.MinConns = 1
	}
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	return c
}

// quoteDSNValue wraps values that contain spaces or quotes so the
// key=value DSN stays parseable.
func quoteDSNValue(v string) string {
	if v == "" {
		return "''"
	}
	if !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// DSN renders the key=value connection string for pgx.
func (c Config) DSN() string {
	c = c.withDefaults()
	parts := []string{
		fmt.Sprintf("host=%s", quoteDSNValue(c.Host)),
		fmt.Sprintf("port=%d", c.Port),
		fmt.Sprintf("dbname=%s", quoteDSNValue(c.Database)),
		fmt.Sprintf("user=%s", quoteDSNValue(c.User)),
		fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	if c.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", quoteDSNValue(c.Password)))
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// Pool registry
// =============================================================================

var (
	poolsMu sync.Mutex
	pools   = make(map[string]*pgxpool.Pool)
)

// Pool returns the shared connection pool for cfg, creating and pinging
// it on first use. Subsequent calls with the same DSN return the same
// pool.
func Pool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	cfg = cfg.withDefaults()
	dsn := cfg.DSN()

	poolsMu.Lock()
	defer poolsMu.Unlock()
	if p, ok := pools[dsn]; ok {
		return p, nil
	}

	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	pools[dsn] = pool
	return pool, nil
}

// ClosePools closes every registered pool. Call on process shutdown.
func ClosePools() {
	poolsMu.Lock()
	defer poolsMu.Unlock()
	for dsn, p := range pools {
		p.Close()
		delete(pools, dsn)
	}
}

// =============================================================================
// Schema
// =============================================================================

const schemaDDL = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id            UUID PRIMARY KEY,
	session_name  TEXT NOT NULL,
	email         TEXT NOT NULL,
	expertor      TEXT NOT NULL,
	original_name TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_sessions_identity
	ON chat_sessions (session_name, email, expertor);

CREATE TABLE IF NOT EXISTS chat_messages (
	id         UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES chat_sessions (id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	metadata   JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session_created
	ON chat_messages (session_id, created_at);
`

// EnsureSchema creates the conversation tables if they do not exist.
// Safe to run repeatedly and from multiple processes.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure conversation schema: %w", err)
	}
	return nil
}
