// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message is one persisted conversation turn. Messages are append-only;
// nothing in the system updates a message after insert.
type Message struct {
	ID        uuid.UUID      `json:"id"`
	SessionID uuid.UUID      `json:"session_id"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// MessageRepository reads and writes chat_messages.
type MessageRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewMessageRepository ensures the schema and returns a repository.
func NewMessageRepository(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*MessageRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &MessageRepository{pool: pool, logger: logger}, nil
}

// Append inserts one turn and returns its id.
func (r *MessageRepository) Append(ctx context.Context, sessionID uuid.UUID, role, content string, metadata map[string]any) (uuid.UUID, error) {
	id := uuid.New()
	var meta []byte
	if len(metadata) > 0 {
		var err error
		meta, err = json.Marshal(metadata)
		if err != nil {
			return uuid.Nil, fmt.Errorf("encode message metadata: %w", err)
		}
	}
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, metadata)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, sessionID, role, content, meta); err != nil {
		return uuid.Nil, fmt.Errorf("append message: %w", err)
	}
	return id, nil
}

// Recent returns up to limit turns for the session, newest first. Callers
// that need chronological order reverse the slice.
func (r *MessageRepository) Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 8
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, role, content, metadata, created_at
		 FROM chat_messages
		 WHERE session_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var meta []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &m.Metadata); err != nil {
				r.logger.Warn("dropping unreadable message metadata",
					"message_id", m.ID, "error", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

// DeleteBySession removes every turn of the session and reports how many
// rows were deleted.
func (r *MessageRepository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM chat_messages WHERE session_id = $1`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count reports the number of turns stored for the session.
func (r *MessageRepository) Count(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM chat_messages WHERE session_id = $1`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count session messages: %w", err)
	}
	return n, nil
}
