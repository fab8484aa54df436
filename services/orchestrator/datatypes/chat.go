// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the wire types of the orchestrator API.
// Request types validate themselves with go-playground/validator so
// handlers can reject malformed input before any model work starts.
package datatypes

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/atlasworks/deskmind/services/orchestrator/tooltrack"
)

// MaxPromptBytes bounds a single prompt. Larger payloads are rejected at
// the API boundary.
const MaxPromptBytes = 32 * 1024

var validate = validator.New()

// =============================================================================
// Chat
// =============================================================================

// ChatRequest is the payload of POST /v1/chat and /v1/chat/stream.
type ChatRequest struct {
	Prompt      string `json:"prompt" validate:"required,max=32768"`
	UserEmail   string `json:"user_email" validate:"required,email"`
	Topic       string `json:"topic" validate:"required,max=128"`
	SessionName string `json:"session_name" validate:"required,max=256"`
	Mode        string `json:"mode" validate:"omitempty,oneof=normal think"`
}

// Validate checks field constraints.
func (r *ChatRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid chat request: %w", err)
	}
	return nil
}

// ChatResponse is the blocking chat reply.
type ChatResponse struct {
	Output       string                 `json:"output"`
	Topic        string                 `json:"topic"`
	SessionName  string                 `json:"session_name"`
	Mode         string                 `json:"mode"`
	ToolUsages   []tooltrack.Invocation `json:"tool_usages"`
	TokenInput   int                    `json:"token_input"`
	TokenOutput  int                    `json:"token_output"`
	TimeResponse float64                `json:"time_response"`
}

// =============================================================================
// Streaming
// =============================================================================

// StreamEvent is one SSE fragment. Exactly one of Content and Error is
// set.
type StreamEvent struct {
	Content     string `json:"content,omitempty"`
	Error       string `json:"error,omitempty"`
	Topic       string `json:"topic"`
	SessionName string `json:"session_name"`
	Mode        string `json:"mode"`
}

// StreamDone is the terminal SSE event of a chat stream.
type StreamDone struct {
	ToolUsages   []tooltrack.Invocation `json:"tool_usages"`
	TimeResponse float64                `json:"time_response"`
}

// =============================================================================
// Sessions
// =============================================================================

// SessionRequest identifies one conversation. Expertor is the assistant
// persona the session was opened with.
type SessionRequest struct {
	SessionName string `json:"session_name" validate:"required,max=256"`
	Email       string `json:"email" validate:"required,email"`
	Expertor    string `json:"expertor" validate:"required,max=128"`
}

// Validate checks field constraints.
func (r *SessionRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("invalid session request: %w", err)
	}
	return nil
}

// InitSessionResponse reports the session resolved by init.
type InitSessionResponse struct {
	SessionID    string `json:"session_id,omitempty"`
	SessionName  string `json:"session_name"`
	Persisted    bool   `json:"persisted"`
	MessageCount int    `json:"message_count"`
}

// SessionHistoryResponse returns the recent turns of a session.
type SessionHistoryResponse struct {
	SessionName string        `json:"session_name"`
	Turns       []HistoryTurn `json:"turns"`
}

// HistoryTurn is one turn in a history listing.
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DeleteSessionResponse reports the outcome of a session delete.
type DeleteSessionResponse struct {
	Deleted bool `json:"deleted"`
}
