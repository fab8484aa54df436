// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session is one conversation owned by (session_name, email, expertor).
type Session struct {
	ID           uuid.UUID `json:"id"`
	SessionName  string    `json:"session_name"`
	Email        string    `json:"email"`
	Expertor     string    `json:"expertor"`
	OriginalName string    `json:"original_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OriginalNameFor derives the stable lookup alias for a session identity.
// Older rows are found through this alias when the exact triple changed.
func OriginalNameFor(email, expertor, sessionName string) string {
	return fmt.Sprintf("%s/%s/%s", email, expertor, sessionName)
}

// SessionRepository reads and writes chat_sessions.
type SessionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSessionRepository ensures the schema and returns a repository.
func NewSessionRepository(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*SessionRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &SessionRepository{pool: pool, logger: logger}, nil
}

const sessionColumns = "id, session_name, email, expertor, original_name, created_at, updated_at"

// insertSessionSQL resolves concurrent first inserts through the identity
// index: the loser gets no row back and re-reads the winner's.
const insertSessionSQL = `INSERT INTO chat_sessions (id, session_name, email, expertor, original_name)
	 VALUES ($1, $2, $3, $4, $5)
	 ON CONFLICT (session_name, email, expertor) DO NOTHING
	 RETURNING created_at, updated_at`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.SessionName, &s.Email, &s.Expertor, &s.OriginalName, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Find looks a session up by exact triple first, then by its original
// name alias. Returns ErrSessionNotFound when neither matches.
func (r *SessionRepository) Find(ctx context.Context, sessionName, email, expertor string) (*Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions
		 WHERE session_name = $1 AND email = $2 AND expertor = $3`,
		sessionName, email, expertor)
	s, err := scanSession(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find session by identity: %w", err)
	}

	row = r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE original_name = $1`,
		OriginalNameFor(email, expertor, sessionName))
	s, err = scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session by original name: %w", err)
	}
	return s, nil
}

// GetOrCreate returns the existing session for the identity or inserts a
// new one. Concurrent first-time requests for the same identity race the
// unique index; the insert yields to the winner and the loser reads the
// winner's row back.
func (r *SessionRepository) GetOrCreate(ctx context.Context, sessionName, email, expertor string) (*Session, error) {
	s, err := r.Find(ctx, sessionName, email, expertor)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	s = &Session{
		ID:           uuid.New(),
		SessionName:  sessionName,
		Email:        email,
		Expertor:     expertor,
		OriginalName: OriginalNameFor(email, expertor, sessionName),
	}
	row := r.pool.QueryRow(ctx, insertSessionSQL,
		s.ID, s.SessionName, s.Email, s.Expertor, s.OriginalName)
	err = row.Scan(&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost the race; the winner's row exists now.
		return r.Find(ctx, sessionName, email, expertor)
	}
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	r.logger.Info("created chat session",
		"session_id", s.ID, "session_name", sessionName, "email", email)
	return s, nil
}

// Touch bumps updated_at after new activity on the session.
func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE chat_sessions SET updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// ListByEmail returns the caller's sessions, most recently active first.
func (r *SessionRepository) ListByEmail(ctx context.Context, email string) ([]Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions
		 WHERE email = $1 ORDER BY updated_at DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.SessionName, &s.Email, &s.Expertor, &s.OriginalName, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

// DeleteCascade removes the session and its messages in one transaction.
// Returns false when the session did not exist.
func (r *SessionRepository) DeleteCascade(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin delete session: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM chat_messages WHERE session_id = $1`, id); err != nil {
		return false, fmt.Errorf("delete session messages: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
