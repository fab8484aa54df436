// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/atlasworks/deskmind/services/orchestrator/datatypes"
)

func bindSessionRequest(c *gin.Context) (*datatypes.SessionRequest, bool) {
	var req datatypes.SessionRequest
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

// HandleInitSession serves POST /v1/sessions/init. Calling it twice with
// the same identity resolves to the same session.
func HandleInitSession(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindSessionRequest(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		conv, err := svc.InitSession(ctx, req.SessionName, req.Email, req.Expertor)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session could not be initialized"})
			return
		}

		resp := datatypes.InitSessionResponse{
			SessionName:  req.SessionName,
			MessageCount: len(conv.History(ctx)),
		}
		if id, persisted := conv.SessionID(); persisted {
			resp.SessionID = id.String()
			resp.Persisted = true
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleSessionHistory serves POST /v1/sessions/history.
func HandleSessionHistory(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindSessionRequest(c)
		if !ok {
			return
		}

		turns, err := svc.History(c.Request.Context(), req.SessionName, req.Email, req.Expertor)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history unavailable"})
			return
		}

		resp := datatypes.SessionHistoryResponse{
			SessionName: req.SessionName,
			Turns:       make([]datatypes.HistoryTurn, 0, len(turns)),
		}
		for _, t := range turns {
			resp.Turns = append(resp.Turns, datatypes.HistoryTurn{Role: t.Role, Content: t.Content})
		}
		c.JSON(http.StatusOK, resp)
	}
}

// HandleClearSession serves POST /v1/sessions/clear. The session stays;
// its turns are discarded.
func HandleClearSession(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindSessionRequest(c)
		if !ok {
			return
		}
		if err := svc.ClearSession(c.Request.Context(), req.SessionName, req.Email, req.Expertor); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session could not be cleared"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cleared": true})
	}
}

// HandleDeleteSession serves DELETE /v1/sessions. Deleting a session that
// never existed reports deleted=false with status 200.
func HandleDeleteSession(svc ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, ok := bindSessionRequest(c)
		if !ok {
			return
		}
		deleted, err := svc.DeleteSession(c.Request.Context(), req.SessionName, req.Email, req.Expertor)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session could not be deleted"})
			return
		}
		c.JSON(http.StatusOK, datatypes.DeleteSessionResponse{Deleted: deleted})
	}
}
