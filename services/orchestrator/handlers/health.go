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
)

// RuntimeInfo describes the running configuration for /v1/config.
type RuntimeInfo struct {
	Providers   []string `json:"providers"`
	Retrieval   bool     `json:"retrieval_enabled"`
	Persistence bool     `json:"persistence_enabled"`
	Version     string   `json:"version"`
}

// HandleHealth serves GET /health.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HandleConfig serves GET /v1/config: which backends this instance runs
// with. No secrets are ever included.
func HandleConfig(info RuntimeInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		if info.Providers == nil {
			info.Providers = []string{}
		}
		c.JSON(http.StatusOK, info)
	}
}
