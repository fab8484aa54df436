// Copyright (C) 2025 Atlasworks (eng@atlasworks.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the orchestrator's HTTP surface.
package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/atlasworks/deskmind/services/orchestrator/handlers"
	"github.com/atlasworks/deskmind/services/orchestrator/middleware"
)

// Setup registers all routes and middleware on router.
func Setup(router *gin.Engine, svc handlers.ChatService, info handlers.RuntimeInfo, logger *slog.Logger) {
	router.Use(
		gin.Recovery(),
		otelgin.Middleware("deskmind-orchestrator"),
		middleware.RequestID(),
		middleware.RequestLog(logger),
	)

	router.GET("/health", handlers.HandleHealth())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/config", handlers.HandleConfig(info))
		v1.POST("/chat", handlers.HandleChat(svc))
		v1.POST("/chat/stream", handlers.HandleChatStream(svc, logger))

		sessions := v1.Group("/sessions")
		{
			sessions.POST("/init", handlers.HandleInitSession(svc))
			sessions.POST("/history", handlers.HandleSessionHistory(svc))
			sessions.POST("/clear", handlers.HandleClearSession(svc))
			sessions.DELETE("", handlers.HandleDeleteSession(svc))
		}
	}
}
