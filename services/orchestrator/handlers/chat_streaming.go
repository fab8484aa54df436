// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlasworks/deskmind/services/orchestrator/agent"
	"github.com/atlasworks/deskmind/services/orchestrator/datatypes"
)

// HandleChatStream serves POST /v1/chat/stream: the SSE chat endpoint.
//
// The wire contract is a sequence of fragment events carrying content (or
// an error message), closed by exactly one done event with the tool
// usages and total latency. Fragment delivery failures mean the client is
// gone; the pipeline finishes in the background so the exchange is still
// persisted.
func HandleChatStream(svc ChatService, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		req, ok := bindChatRequest(c)
		if !ok {
			return
		}
		mode := string(agent.ParseMode(req.Mode))

		SetSSEHeaders(c)
		writer, err := NewSSEWriter(c)
		if err != nil {
			logger.Error("cannot stream on this connection", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
			return
		}

		ctx := c.Request.Context()
		stream := svc.ChatStream(ctx, chatInputFrom(req))
		defer stream.Close()

		event := datatypes.StreamEvent{
			Topic:       req.Topic,
			SessionName: req.SessionName,
			Mode:        mode,
		}

		for {
			fragment, more, err := stream.Next(ctx)
			if err != nil {
				// Consumer side failed (client disconnect, timeout).
				logger.Info("chat stream consumer ended early",
					"session", req.SessionName, "error", err)
				return
			}
			if !more {
				break
			}
			event.Content = fragment
			event.Error = ""
			if err := writer.WriteFragment(event); err != nil {
				logger.Info("client gone mid-stream", "session", req.SessionName)
				return
			}
		}

		if err := stream.Err(); err != nil {
			event.Content = ""
			event.Error = "the response could not be completed"
			if werr := writer.WriteError(event); werr != nil {
				return
			}
		}

		done := datatypes.StreamDone{}
		if result := stream.Result(); result != nil {
			done.ToolUsages = result.ToolUsages
			done.TimeResponse = result.Elapsed.Seconds()
		}
		if err := writer.WriteDone(done); err != nil {
			logger.Info("client gone before done event", "session", req.SessionName)
		}
	}
}
