// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/gin-gonic/gin"
)

// Conversation handles POST /conversation: one stateless chat exchange
// with no persistence.
//
// # Description
//
// Rejects non-JSON bodies with 415. In stream mode the response is
// NDJSON (one envelope per line); in buffered mode it is a single JSON
// envelope. History metadata supplied by the client is echoed back on
// every envelope.
func (h *Handler) Conversation(c *gin.Context) {
	if !isJSONRequest(c) {
		c.JSON(http.StatusUnsupportedMediaType, datatypes.ErrorResponse{
			Error: "request must be json",
		})
		return
	}

	var req datatypes.ConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, observability.EndpointConversation, "malformed request body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, observability.EndpointConversation, &datatypes.ValidationError{Reason: err.Error()})
		return
	}

	h.runCompletion(c, observability.EndpointConversation, req.Messages, req.HistoryMetadata)
}

// runCompletion executes the completion pipeline for both the stateless
// and the history-backed endpoints.
func (h *Handler) runCompletion(c *gin.Context, endpoint observability.Endpoint, messages []datatypes.ChatMessage, metadata *datatypes.HistoryMetadata) {
	ctx := c.Request.Context()
	user := userID(c)

	if h.streamMode {
		h.streamCompletion(c, ctx, endpoint, user, messages, metadata)
		return
	}

	start := time.Now()
	envelope, err := h.orchestrator.Complete(ctx, user, messages, metadata)
	if err != nil {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordCompletionDuration(endpoint, "buffered", time.Since(start).Seconds(), false)
		}
		respondError(c, endpoint, err)
		return
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordCompletionDuration(endpoint, "buffered", time.Since(start).Seconds(), true)
		m.RecordRequest(endpoint, true)
	}
	c.JSON(http.StatusOK, envelope)
}

// streamCompletion relays the orchestrated stream as NDJSON lines.
//
// Errors before the first line map to an ordinary JSON error status;
// once streaming has begun the failure is appended as a final error
// line instead, since the 200 status is already on the wire.
func (h *Handler) streamCompletion(c *gin.Context, ctx context.Context, endpoint observability.Endpoint, user string, messages []datatypes.ChatMessage, metadata *datatypes.HistoryMetadata) {
	writer := NewNDJSONWriter(c.Writer)
	m := observability.DefaultMetrics

	if m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	start := time.Now()
	firstChunk := true
	err := h.orchestrator.Stream(ctx, user, messages, metadata, func(envelope *datatypes.ResponseEnvelope) error {
		if firstChunk {
			firstChunk = false
			if m != nil {
				m.RecordTimeToFirstChunk(endpoint, time.Since(start).Seconds())
			}
		}
		return writer.WriteLine(envelope)
	})

	if err != nil {
		clientGone := errors.Is(err, context.Canceled) || c.Request.Context().Err() != nil
		if m != nil {
			m.RecordCompletionDuration(endpoint, "stream", time.Since(start).Seconds(), false)
			if clientGone {
				m.RecordClientDisconnect(endpoint)
			} else {
				m.RecordError(endpoint, errorCodeFor(err))
			}
			m.RecordRequest(endpoint, false)
		}
		if clientGone {
			return
		}
		if writer.Started() {
			writer.WriteError(err.Error())
			return
		}
		c.JSON(statusForError(err), datatypes.ErrorResponse{Error: datatypes.SanitizeErrorText(err.Error())})
		return
	}

	if m != nil {
		m.RecordCompletionDuration(endpoint, "stream", time.Since(start).Seconds(), true)
		m.RecordRequest(endpoint, true)
	}
}
