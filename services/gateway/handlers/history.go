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
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/services/gateway/completion"
	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/gin-gonic/gin"
)

// storeNotConfiguredMessage is the dedicated answer for deployments
// running without a history store.
const storeNotConfiguredMessage = "History store is not configured"

// notFoundConversationMessage matches the message shape the web UI
// pattern-matches on for missing conversations.
func notFoundConversationMessage(conversationID string) string {
	return fmt.Sprintf(
		"Conversation %s was not found. It either does not exist or the logged in user does not have access to it.",
		conversationID,
	)
}

// requireStore answers with the not-configured response when no history
// store is wired, reporting whether the caller may proceed.
func (h *Handler) requireStore(c *gin.Context) bool {
	if h.store == nil {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: storeNotConfiguredMessage})
		return false
	}
	return true
}

// auditHistory records one history mutation, best effort.
func (h *Handler) auditHistory(c *gin.Context, eventType, action, resourceType, resourceID, outcome string) {
	_ = h.audit.Log(c.Request.Context(), extensions.AuditEvent{
		EventType:    eventType,
		Timestamp:    time.Now().UTC(),
		UserID:       userID(c),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Outcome:      outcome,
	})
}

// =============================================================================
// Completion-Backed Endpoints
// =============================================================================

// HistoryGenerate handles POST /history/generate: persist the latest
// user turn, creating and titling the conversation when needed, then
// run the completion pipeline with history metadata attached.
func (h *Handler) HistoryGenerate(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx := c.Request.Context()
	user := userID(c)

	var req datatypes.HistoryChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, observability.EndpointHistoryGenerate, "malformed request body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, observability.EndpointHistoryGenerate, &datatypes.ValidationError{Reason: err.Error()})
		return
	}

	last := req.Messages[len(req.Messages)-1]
	if !last.IsUserAuthored() {
		respondValidation(c, observability.EndpointHistoryGenerate, "no user message found")
		return
	}

	var conv *datatypes.Conversation
	var err error
	if req.ConversationID == "" {
		// First turn: mint the conversation with a generated title.
		// Title generation degrades to the message content on provider
		// failure, so this path never blocks the exchange.
		title := completion.GenerateTitle(ctx, h.llm, req.Messages)
		conv, err = h.store.CreateConversation(ctx, user, title)
	} else {
		conv, err = h.store.GetConversation(ctx, user, req.ConversationID)
	}
	if err != nil {
		respondError(c, observability.EndpointHistoryGenerate, err)
		return
	}

	if _, err := h.store.AppendMessage(ctx, user, conv.ID, last.ID, last); err != nil {
		respondError(c, observability.EndpointHistoryGenerate, err)
		return
	}

	metadata := &datatypes.HistoryMetadata{
		ConversationID: conv.ID,
		Title:          conv.Title,
		Date:           conv.CreatedAt,
	}
	h.runCompletion(c, observability.EndpointHistoryGenerate, req.Messages, metadata)
}

// HistoryUpdate handles POST /history/update: persist the assistant
// turn the UI just finished rendering, plus its preceding tool message
// when the exchange involved tool execution.
func (h *Handler) HistoryUpdate(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx := c.Request.Context()
	user := userID(c)

	var req datatypes.HistoryChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, observability.EndpointHistoryGenerate, "malformed request body")
		return
	}
	if req.ConversationID == "" {
		respondValidation(c, observability.EndpointHistoryGenerate, "no conversation_id found")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, observability.EndpointHistoryGenerate, &datatypes.ValidationError{Reason: err.Error()})
		return
	}

	last := req.Messages[len(req.Messages)-1]
	if last.Role != datatypes.RoleAssistant {
		respondValidation(c, observability.EndpointHistoryGenerate, "no bot messages found")
		return
	}

	if _, err := h.store.GetConversation(ctx, user, req.ConversationID); err != nil {
		respondError(c, observability.EndpointHistoryGenerate, err)
		return
	}

	// A tool message directly before the assistant turn carries the
	// citation payload; it gets a server-minted id since the UI never
	// references it again.
	if len(req.Messages) >= 2 {
		penultimate := req.Messages[len(req.Messages)-2]
		if penultimate.Role == datatypes.RoleTool {
			if _, err := h.store.AppendMessage(ctx, user, req.ConversationID, "", penultimate); err != nil {
				respondError(c, observability.EndpointHistoryGenerate, err)
				return
			}
		}
	}

	if _, err := h.store.AppendMessage(ctx, user, req.ConversationID, last.ID, last); err != nil {
		respondError(c, observability.EndpointHistoryGenerate, err)
		return
	}

	c.JSON(http.StatusOK, datatypes.SuccessResponse{Success: true})
}

// =============================================================================
// Feedback
// =============================================================================

// MessageFeedback handles POST /history/message_feedback.
//
// # Description
//
// Updates feedback on a message owned by the caller. When the scoped
// update finds nothing, an unscoped owner probe distinguishes a foreign
// message (403) from a truly absent one (404).
func (h *Handler) MessageFeedback(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx := c.Request.Context()
	user := userID(c)

	var req datatypes.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, observability.EndpointHistoryGenerate, "malformed request body")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, observability.EndpointHistoryGenerate, &datatypes.ValidationError{Reason: "message_id and message_feedback are required"})
		return
	}

	stored, err := h.store.UpdateMessageFeedback(ctx, user, req.MessageID, req.MessageFeedback)
	if err != nil {
		if datatypes.IsNotFound(err) {
			owner, ownerErr := h.store.MessageOwner(ctx, req.MessageID)
			if ownerErr == nil && owner != user {
				h.auditHistory(c, "feedback.denied", "submit", "message", req.MessageID, "denied")
				c.JSON(http.StatusForbidden, datatypes.ErrorResponse{
					Error: "user does not have access to this message",
				})
				return
			}
		}
		respondError(c, observability.EndpointHistoryGenerate, err)
		return
	}

	h.auditHistory(c, "feedback.submit", "submit", "message", stored.ID, "success")
	c.JSON(http.StatusOK, datatypes.StatusResponse{
		Message:   "Successfully updated message with feedback and message_id",
		MessageID: stored.ID,
	})
}

// =============================================================================
// Conversation Management
// =============================================================================

// HistoryDelete handles DELETE /history/delete: remove one conversation
// and its messages. Idempotent; deleting an absent conversation
// succeeds.
func (h *Handler) HistoryDelete(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	var req datatypes.ConversationRef
	if err := c.ShouldBindJSON(&req); err != nil || req.ConversationID == "" {
		respondValidation(c, observability.EndpointHistoryGenerate, "no conversation_id found")
		return
	}

	if err := h.store.DeleteConversation(c.Request.Context(), userID(c), req.ConversationID); err != nil {
		h.auditHistory(c, "history.delete", "delete", "conversation", req.ConversationID, "error")
		respondError(c, observability.EndpointHistoryGenerate, err)
		return
	}

	h.auditHistory(c, "history.delete", "delete", "conversation", req.ConversationID, "success")
	c.JSON(http.StatusOK, datatypes.StatusResponse{
		Message:        "Successfully deleted conversation and messages",
		ConversationID: req.ConversationID,
	})
}

// HistoryList handles GET /history/list?offset=N: the caller's
// conversations, most recently active first, in fixed pages of 25.
func (h *Handler) HistoryList(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	user := userID(c)

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondValidation(c, observability.EndpointHistoryGenerate, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	convs, err := h.store.ListConversations(c.Request.Context(), user, offset, conversationPageSize)
	if err != nil {
		respondError(c, observability.EndpointHistoryGenerate, err)
		return
	}
	if len(convs) == 0 {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
			Error: fmt.Sprintf("No conversations for %s were found", user),
		})
		return
	}

	c.JSON(http.StatusOK, convs)
}

// HistoryRead handles POST /history/read: the sanitized transcript of
// one conversation, oldest message first.
func (h *Handler) HistoryRead(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx := c.Request.Context()
	user := userID(c)

	var req datatypes.ConversationRef
	if err := c.ShouldBindJSON(&req); err != nil || req.ConversationID == "" {
		respondValidation(c, observability.EndpointHistoryGenerate, "no conversation_id found")
		return
	}

	if _, err := h.store.GetConversation(ctx, user, req.ConversationID); err != nil {
		if datatypes.IsNotFound(err) {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
				Error: notFoundConversationMessage(req.ConversationID),
			})
			return
		}
		respondError(c, observability.EndpointHistoryGenerate, err)
		return
	}

	stored, err := h.store.GetMessages(ctx, user, req.ConversationID)
	if err != nil {
		respondError(c, observability.EndpointHistoryGenerate, err)
		return
	}

	// An empty conversation reads back as an empty array, not an error.
	messages := make([]datatypes.ChatMessage, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, m.ToChatMessage())
	}

	c.JSON(http.StatusOK, datatypes.ConversationMessagesResponse{
		ConversationID: req.ConversationID,
		Messages:       messages,
	})
}

// HistoryRename handles POST /history/rename: set a new title on an
// existing conversation.
func (h *Handler) HistoryRename(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	var req datatypes.RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ConversationID == "" {
		respondValidation(c, observability.EndpointHistoryGenerate, "no conversation_id found")
		return
	}
	if req.Title == "" {
		respondValidation(c, observability.EndpointHistoryGenerate, "no title found")
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, observability.EndpointHistoryGenerate, &datatypes.ValidationError{Reason: err.Error()})
		return
	}

	conv, err := h.store.RenameConversation(c.Request.Context(), userID(c), req.ConversationID, req.Title)
	if err != nil {
		respondError(c, observability.EndpointHistoryGenerate, err)
		return
	}

	h.auditHistory(c, "history.rename", "update", "conversation", req.ConversationID, "success")
	c.JSON(http.StatusOK, conv)
}

// HistoryDeleteAll handles DELETE /history/delete_all: remove every
// conversation the caller owns, messages first.
func (h *Handler) HistoryDeleteAll(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}
	ctx := c.Request.Context()
	user := userID(c)

	var all []*datatypes.Conversation
	for offset := 0; ; offset += conversationPageSize {
		page, err := h.store.ListConversations(ctx, user, offset, conversationPageSize)
		if err != nil {
			respondError(c, observability.EndpointHistoryGenerate, err)
			return
		}
		all = append(all, page...)
		if len(page) < conversationPageSize {
			break
		}
	}
	if len(all) == 0 {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
			Error: fmt.Sprintf("No conversations for %s were found", user),
		})
		return
	}

	for _, conv := range all {
		if err := h.store.DeleteConversation(ctx, user, conv.ID); err != nil {
			h.auditHistory(c, "history.delete_all", "delete", "conversation", conv.ID, "error")
			respondError(c, observability.EndpointHistoryGenerate, err)
			return
		}
	}

	h.auditHistory(c, "history.delete_all", "delete", "conversation", "", "success")
	c.JSON(http.StatusOK, datatypes.StatusResponse{
		Message: fmt.Sprintf("Successfully deleted all conversations and messages for user %s", user),
	})
}

// HistoryClear handles POST /history/clear: remove every message in a
// conversation but keep the conversation record.
func (h *Handler) HistoryClear(c *gin.Context) {
	if !h.requireStore(c) {
		return
	}

	var req datatypes.ConversationRef
	if err := c.ShouldBindJSON(&req); err != nil || req.ConversationID == "" {
		respondValidation(c, observability.EndpointHistoryGenerate, "no conversation_id found")
		return
	}

	if err := h.store.DeleteMessages(c.Request.Context(), userID(c), req.ConversationID); err != nil {
		h.auditHistory(c, "history.clear", "delete", "conversation", req.ConversationID, "error")
		respondError(c, observability.EndpointHistoryGenerate, err)
		return
	}

	h.auditHistory(c, "history.clear", "delete", "conversation", req.ConversationID, "success")
	c.JSON(http.StatusOK, datatypes.StatusResponse{
		Message:        "Successfully deleted messages in conversation",
		ConversationID: req.ConversationID,
	})
}

// =============================================================================
// Store Probe
// =============================================================================

// HistoryEnsure handles GET /history/ensure: verify the history store
// is reachable and schema-complete.
//
// # Description
//
// The probe failure text is sanitized (newlines collapsed to spaces)
// before leaving the service. Credential-shaped failures map to 401 so
// the UI can surface a configuration problem distinctly from a store
// outage (422).
func (h *Handler) HistoryEnsure(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: storeNotConfiguredMessage})
		return
	}

	if err := h.store.Init(c.Request.Context()); err != nil {
		message := datatypes.SanitizeErrorText(err.Error())
		status := http.StatusUnprocessableEntity
		lowered := strings.ToLower(message)
		if strings.Contains(lowered, "unauthorized") || strings.Contains(lowered, "credential") || strings.Contains(lowered, "401") {
			status = http.StatusUnauthorized
		}
		c.JSON(status, datatypes.ErrorResponse{Error: message})
		return
	}

	c.JSON(http.StatusOK, datatypes.StatusResponse{Message: "History store is configured and working"})
}
