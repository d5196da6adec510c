// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes registers the gateway's HTTP routes.
package routes

import (
	"net/http"

	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/services/gateway/handlers"
	"github.com/AleutianAI/AleutianChat/services/gateway/middleware"
	"github.com/gin-gonic/gin"
)

// Deps carries the wired pieces route registration needs.
type Deps struct {
	Handler  *handlers.Handler
	Identity extensions.IdentityProvider

	// RateLimiter is optional; nil disables per-user rate limiting.
	RateLimiter *middleware.RateLimiter

	// Metrics is the Prometheus scrape handler, mounted at /metrics
	// when non-nil.
	Metrics http.Handler
}

// SetupRoutes registers every gateway route on the router.
//
// /healthz and /metrics stay outside the authenticated group so probes
// and scrapers need no principal headers. Everything else runs behind
// identity resolution and, when configured, rate limiting.
func SetupRoutes(router *gin.Engine, deps Deps) {
	h := deps.Handler

	router.GET("/healthz", h.Healthz)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	groupMiddleware := []gin.HandlerFunc{middleware.IdentityMiddleware(deps.Identity)}
	if deps.RateLimiter != nil {
		groupMiddleware = append(groupMiddleware, deps.RateLimiter.Middleware())
	}
	authed := router.Group("", groupMiddleware...)

	// Completion.
	authed.POST("/conversation", h.Conversation)
	authed.GET("/ws/chat", h.ChatWebsocket)

	// History sub-protocol.
	authed.POST("/history/generate", h.HistoryGenerate)
	authed.POST("/history/update", h.HistoryUpdate)
	authed.POST("/history/message_feedback", h.MessageFeedback)
	authed.DELETE("/history/delete", h.HistoryDelete)
	authed.GET("/history/list", h.HistoryList)
	authed.POST("/history/read", h.HistoryRead)
	authed.POST("/history/rename", h.HistoryRename)
	authed.DELETE("/history/delete_all", h.HistoryDeleteAll)
	authed.POST("/history/clear", h.HistoryClear)
	authed.GET("/history/ensure", h.HistoryEnsure)

	// UI configuration and retrieval corpus.
	authed.GET("/frontend_settings", h.FrontendSettings)
	authed.POST("/documents", h.IngestDocument)
}
