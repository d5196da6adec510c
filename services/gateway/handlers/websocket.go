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
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// wsWriteTimeout bounds a single frame write so one stalled client
// cannot pin a goroutine forever.
const wsWriteTimeout = 30 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers cannot set custom headers on websocket dials; the
	// identity middleware has already resolved the principal from the
	// proxy headers on the upgrade request itself.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsDoneFrame terminates one exchange on the websocket transport, where
// there is no connection close to mark the end of a stream.
type wsDoneFrame struct {
	Done bool `json:"done"`
}

// ChatWebsocket handles GET /ws/chat: the streaming chat transport for
// clients that prefer a socket over NDJSON-over-HTTP.
//
// # Description
//
// Each inbound text frame is one ConversationRequest; the reply is a
// sequence of frames carrying the same envelopes the NDJSON stream
// would carry, terminated by `{"done": true}`. Failures mid-exchange
// produce an `{"error": ...}` frame and keep the socket open for the
// next request; transport errors close it.
func (h *Handler) ChatWebsocket(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written its own error response.
		slog.Debug("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	user := userID(c)

	writeFrame := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(v)
	}

	for {
		var req datatypes.ConversationRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("Websocket closed unexpectedly", "error", err)
			}
			return
		}
		if err := req.Validate(); err != nil {
			if writeFrame(datatypes.ErrorResponse{Error: datatypes.SanitizeErrorText(err.Error())}) != nil {
				return
			}
			continue
		}

		streamErr := h.orchestrator.Stream(ctx, user, req.Messages, req.HistoryMetadata, func(envelope *datatypes.ResponseEnvelope) error {
			return writeFrame(envelope)
		})
		if streamErr != nil {
			if writeFrame(datatypes.ErrorResponse{Error: datatypes.SanitizeErrorText(streamErr.Error())}) != nil {
				return
			}
			continue
		}
		if writeFrame(wsDoneFrame{Done: true}) != nil {
			return
		}
	}
}
