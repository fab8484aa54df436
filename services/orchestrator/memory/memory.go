// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package memory manages conversation history. Turns are written to the
// Postgres store and mirrored in process memory, so a lost or absent
// database degrades the assistant to per-process history instead of
// failing chats outright.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/atlasworks/deskmind/services/orchestrator/store"
)

// DefaultHistoryLimit bounds the turns loaded into a prompt.
const DefaultHistoryLimit = 8

// Turn is one conversation entry as seen by prompt assembly.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionStore is the slice of the session repository this package needs.
type SessionStore interface {
	GetOrCreate(ctx context.Context, sessionName, email, expertor string) (*store.Session, error)
	Find(ctx context.Context, sessionName, email, expertor string) (*store.Session, error)
	Touch(ctx context.Context, id uuid.UUID) error
	DeleteCascade(ctx context.Context, id uuid.UUID) (bool, error)
}

// MessageStore is the slice of the message repository this package needs.
type MessageStore interface {
	Append(ctx context.Context, sessionID uuid.UUID, role, content string, metadata map[string]any) (uuid.UUID, error)
	Recent(ctx context.Context, sessionID uuid.UUID, limit int) ([]store.Message, error)
	DeleteBySession(ctx context.Context, sessionID uuid.UUID) (int64, error)
}

var (
	_ SessionStore = (*store.SessionRepository)(nil)
	_ MessageStore = (*store.MessageRepository)(nil)
)

// =============================================================================
// Memory
// =============================================================================

// Memory hands out per-session Conversation handles. With nil stores it
// runs in mirror-only mode, which the CLI and tests use.
//
// # Thread Safety
//
// Safe for concurrent use. Conversations for different sessions never
// touch each other's mirrors.
type Memory struct {
	sessions SessionStore
	messages MessageStore
	limit    int
	logger   *slog.Logger

	mu      sync.Mutex
	mirrors map[string][]Turn
}

// New builds a Memory. limit <= 0 uses DefaultHistoryLimit.
func New(sessions SessionStore, messages MessageStore, limit int, logger *slog.Logger) *Memory {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		sessions: sessions,
		messages: messages,
		limit:    limit,
		logger:   logger,
		mirrors:  make(map[string][]Turn),
	}
}

func (m *Memory) persistent() bool {
	return m.sessions != nil && m.messages != nil
}

// InitSession resolves or creates the session for the identity and
// returns a handle bound to it. Calling it again with the same identity
// yields a handle to the same session. Store failures degrade the handle
// to mirror-only and are logged, not returned.
func (m *Memory) InitSession(ctx context.Context, sessionName, email, expertor string) (*Conversation, error) {
	key := store.OriginalNameFor(email, expertor, sessionName)
	conv := &Conversation{m: m, key: key}

	if !m.persistent() {
		return conv, nil
	}
	s, err := m.sessions.GetOrCreate(ctx, sessionName, email, expertor)
	if err != nil {
		m.logger.Error("session store unavailable, continuing with in-memory history",
			"session_key", key, "error", err)
		return conv, nil
	}
	conv.id = s.ID
	conv.persisted = true
	return conv, nil
}

// DeleteSession removes the session row and all of its turns, plus the
// process mirror. Returns false when nothing matched.
func (m *Memory) DeleteSession(ctx context.Context, sessionName, email, expertor string) (bool, error) {
	key := store.OriginalNameFor(email, expertor, sessionName)

	m.mu.Lock()
	_, hadMirror := m.mirrors[key]
	delete(m.mirrors, key)
	m.mu.Unlock()

	if !m.persistent() {
		return hadMirror, nil
	}
	s, err := m.sessions.Find(ctx, sessionName, email, expertor)
	if errors.Is(err, store.ErrSessionNotFound) {
		return hadMirror, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve session for delete: %w", err)
	}
	deleted, err := m.sessions.DeleteCascade(ctx, s.ID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return deleted || hadMirror, nil
}

func (m *Memory) mirrorAppend(key string, t Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mirror := append(m.mirrors[key], t)
	// The mirror only serves prompt assembly; cap it at the history limit.
	if over := len(mirror) - m.limit; over > 0 {
		mirror = mirror[over:]
	}
	m.mirrors[key] = mirror
}

func (m *Memory) mirrorHistory(key string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	mirror := m.mirrors[key]
	out := make([]Turn, len(mirror))
	copy(out, mirror)
	return out
}

func (m *Memory) mirrorClear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mirrors, key)
}

// =============================================================================
// Conversation
// =============================================================================

// Conversation is a handle bound to one session. Handles are cheap;
// request handlers resolve one per request.
type Conversation struct {
	m         *Memory
	key       string
	id        uuid.UUID
	persisted bool
}

// SessionID returns the backing session id. ok is false in mirror-only
// mode.
func (c *Conversation) SessionID() (uuid.UUID, bool) {
	return c.id, c.persisted
}

// Append records one turn. The mirror is always updated; a store write
// failure is logged and the chat continues.
func (c *Conversation) Append(ctx context.Context, role, content string) {
	c.m.mirrorAppend(c.key, Turn{Role: role, Content: content})
	if !c.persisted {
		return
	}
	if _, err := c.m.messages.Append(ctx, c.id, role, content, nil); err != nil {
		c.m.logger.Error("failed to persist chat turn",
			"session_id", c.id, "role", role, "error", err)
		return
	}
	if err := c.m.sessions.Touch(ctx, c.id); err != nil {
		c.m.logger.Warn("failed to touch session",
			"session_id", c.id, "error", err)
	}
}

// History returns the most recent turns in chronological order, bounded
// by the configured limit. Store read failures fall back to the mirror.
func (c *Conversation) History(ctx context.Context) []Turn {
	if !c.persisted {
		return c.m.mirrorHistory(c.key)
	}
	msgs, err := c.m.messages.Recent(ctx, c.id, c.m.limit)
	if err != nil {
		c.m.logger.Error("failed to load history, using in-memory mirror",
			"session_id", c.id, "error", err)
		return c.m.mirrorHistory(c.key)
	}
	// Recent returns newest first; prompts want chronological order.
	out := make([]Turn, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, Turn{Role: msgs[i].Role, Content: msgs[i].Content})
	}
	return out
}

// Clear discards the session's turns but keeps the session itself.
func (c *Conversation) Clear(ctx context.Context) error {
	c.m.mirrorClear(c.key)
	if !c.persisted {
		return nil
	}
	if _, err := c.m.messages.DeleteBySession(ctx, c.id); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}
