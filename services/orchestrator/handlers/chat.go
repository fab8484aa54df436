// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP API of the orchestrator.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlasworks/deskmind/services/orchestrator/agent"
	"github.com/atlasworks/deskmind/services/orchestrator/datatypes"
	"github.com/atlasworks/deskmind/services/orchestrator/memory"
	"github.com/atlasworks/deskmind/services/orchestrator/services"
)

// ChatService is the slice of the assistant the handlers need.
type ChatService interface {
	Chat(ctx context.Context, in services.ChatInput) (*services.ChatResult, error)
	ChatStream(ctx context.Context, in services.ChatInput) *services.ChatStream
	InitSession(ctx context.Context, sessionName, email, expertor string) (*memory.Conversation, error)
	DeleteSession(ctx context.Context, sessionName, email, expertor string) (bool, error)
	ClearSession(ctx context.Context, sessionName, email, expertor string) error
	History(ctx context.Context, sessionName, email, expertor string) ([]memory.Turn, error)
}

var _ ChatService = (*services.Assistant)(nil)

func bindChatRequest(c *gin.Context) (*datatypes.ChatRequest, bool) {
	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return nil, false
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return &req, true
}

func chatInputFrom(req *datatypes.ChatRequest) services.ChatInput {
	return services.ChatInput{
		Prompt:      req.Prompt,
		Topic:       req.Topic,
		SessionName: req.SessionName,
		Email:       req.UserEmail,
		Mode:        agent.ParseMode(req.Mode),
	}
}

// HandleChat serves POST /v1/chat: the blocking chat endpoint.
func HandleChat(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindChatRequest(c)
		if !ok {
			return
		}

		result, err := svc.Chat(c.Request.Context(), chatInputFrom(req))
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat could not be completed"})
			return
		}

		c.JSON(http.StatusOK, datatypes.ChatResponse{
			Output:       result.Content,
			Topic:        req.Topic,
			SessionName:  req.SessionName,
			Mode:         string(agent.ParseMode(req.Mode)),
			ToolUsages:   result.ToolUsages,
			TokenInput:   result.TokenInput,
			TokenOutput:  result.TokenOutput,
			TimeResponse: result.Elapsed.Seconds(),
		})
	}
}
