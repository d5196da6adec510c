// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the gateway HTTP surface.
//
// # Description
//
// One Handler instance serves every route: the stateless completion
// endpoint, the history sub-protocol, frontend settings, document
// ingestion, and the websocket transport. Handlers validate the
// request, resolve the principal set by the identity middleware, call
// into the completion/history layers, and map typed errors onto HTTP
// statuses in one place (errors.go).
//
// # Thread Safety
//
// Handler is immutable after construction and safe for concurrent use.
package handlers

import (
	"strings"

	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/services/gateway/completion"
	"github.com/AleutianAI/AleutianChat/services/gateway/history"
	"github.com/AleutianAI/AleutianChat/services/gateway/middleware"
	"github.com/AleutianAI/AleutianChat/services/gateway/retrieval"
	"github.com/AleutianAI/AleutianChat/services/gateway/settings"
	"github.com/AleutianAI/AleutianChat/services/llm"
	"github.com/gin-gonic/gin"
)

// conversationPageSize is the fixed page size of /history/list.
const conversationPageSize = 25

// Deps carries everything the handlers call into. Store and Ingestor
// may be nil when the deployment runs without a history store; the
// affected endpoints then answer with their dedicated not-configured
// responses.
type Deps struct {
	Orchestrator *completion.Orchestrator
	LLM          llm.Client
	Store        history.ConversationStore
	Settings     *settings.Watcher
	Ingestor     *retrieval.Ingestor

	// StreamMode selects streamed NDJSON responses for the completion
	// endpoints. Buffered mode answers with a single JSON envelope.
	StreamMode bool

	// AuditLogger receives events for destructive history operations.
	AuditLogger extensions.AuditLogger
}

// Handler serves the gateway routes.
type Handler struct {
	orchestrator *completion.Orchestrator
	llm          llm.Client
	store        history.ConversationStore
	settings     *settings.Watcher
	ingestor     *retrieval.Ingestor
	streamMode   bool
	audit        extensions.AuditLogger
}

// New builds the handler set. A nil AuditLogger is replaced with the
// no-op logger.
func New(deps Deps) *Handler {
	audit := deps.AuditLogger
	if audit == nil {
		audit = &extensions.NopAuditLogger{}
	}
	return &Handler{
		orchestrator: deps.Orchestrator,
		llm:          deps.LLM,
		store:        deps.Store,
		settings:     deps.Settings,
		ingestor:     deps.Ingestor,
		streamMode:   deps.StreamMode,
		audit:        audit,
	}
}

// userID resolves the principal the identity middleware stored on the
// context. Routes are only registered behind that middleware, so an
// empty result means a wiring bug, which callers surface as 500.
func userID(c *gin.Context) string {
	if info := middleware.GetAuthInfo(c); info != nil {
		return info.UserID
	}
	return ""
}

// isJSONRequest reports whether the request declares a JSON body.
func isJSONRequest(c *gin.Context) bool {
	contentType := c.ContentType()
	return strings.Contains(contentType, "application/json")
}
