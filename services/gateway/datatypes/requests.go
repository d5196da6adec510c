// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Input Limits
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message
	// content. Guards against memory exhaustion from unbounded input.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages in a
	// request. Longer transcripts must be truncated client-side.
	MaxMessagesPerRequest = 100

	// MaxTitleBytes is the maximum size of a conversation title.
	MaxTitleBytes = 512
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// requestValidate is the validator instance for request datatypes.
// Initialized in init() with custom validators.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()

	// Byte-length check (not rune count) so multi-byte payloads cannot
	// slip past a character-based limit.
	_ = requestValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed
// MaxMessageContentBytes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Conversation Requests
// =============================================================================

// ConversationRequest is the body of POST /conversation and the
// completion half of the history generate/update endpoints.
//
// # Fields
//
//   - Messages: Required. Conversation transcript, oldest first, 1-100
//     entries. Content is limited to 32KB per message.
//   - HistoryMetadata: Optional. Echoed back on every response chunk so
//     the UI can associate the stream with a stored conversation.
//
// # Validation
//
// Uses go-playground/validator:
//   - Messages: required, 1-100 elements, each element validated
//   - Messages[].Content: max 32768 bytes
//
// # Examples
//
//	req := ConversationRequest{
//	    Messages: []ChatMessage{
//	        {Role: RoleUser, Content: "Hello"},
//	    },
//	}
type ConversationRequest struct {
	Messages        []ChatMessage    `json:"messages" validate:"required,min=1,max=100,dive"`
	HistoryMetadata *HistoryMetadata `json:"history_metadata,omitempty"`
}

// Validate validates the ConversationRequest fields.
//
//	if err := req.Validate(); err != nil {
//	    return fmt.Errorf("invalid request: %w", err)
//	}
func (r *ConversationRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return err
	}
	for i := range r.Messages {
		if len(r.Messages[i].Content) > MaxMessageContentBytes {
			return &ValidationError{Field: "messages", Reason: "message content exceeds 32KB"}
		}
	}
	return nil
}

// HistoryChatRequest is the body of POST /history/generate and
// POST /history/update: a conversation transcript plus the stored
// conversation it belongs to.
//
// ConversationID is empty on the first turn of /history/generate; the
// handler then creates the conversation and returns its id in
// history_metadata.
type HistoryChatRequest struct {
	ConversationID string        `json:"conversation_id,omitempty"`
	Messages       []ChatMessage `json:"messages" validate:"required,min=1,max=100,dive"`
}

// Validate validates the HistoryChatRequest fields.
func (r *HistoryChatRequest) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		return err
	}
	for i := range r.Messages {
		if len(r.Messages[i].Content) > MaxMessageContentBytes {
			return &ValidationError{Field: "messages", Reason: "message content exceeds 32KB"}
		}
	}
	return nil
}

// =============================================================================
// History Sub-Protocol Requests
// =============================================================================

// ConversationRef identifies a stored conversation in request bodies
// that operate on a whole conversation (read, clear, delete, rename).
type ConversationRef struct {
	ConversationID string `json:"conversation_id" validate:"required"`
}

// Validate validates the ConversationRef fields.
func (r *ConversationRef) Validate() error {
	return requestValidate.Struct(r)
}

// RenameRequest is the body of POST /history/rename.
type RenameRequest struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Title          string `json:"title" validate:"required,max=512"`
}

// Validate validates the RenameRequest fields.
func (r *RenameRequest) Validate() error {
	return requestValidate.Struct(r)
}

// FeedbackRequest is the body of POST /history/message_feedback.
//
// MessageFeedback is free-form ("positive", "negative", or a
// comma-joined list of issue tags from the UI).
type FeedbackRequest struct {
	MessageID       string `json:"message_id" validate:"required"`
	MessageFeedback string `json:"message_feedback" validate:"required"`
}

// Validate validates the FeedbackRequest fields.
func (r *FeedbackRequest) Validate() error {
	return requestValidate.Struct(r)
}

// =============================================================================
// Document Ingestion Requests
// =============================================================================

// DocumentIngestRequest is the body of POST /documents. The supplied
// text is split into chunks and indexed for retrieval augmentation.
type DocumentIngestRequest struct {
	Source  string `json:"source" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// Validate validates the DocumentIngestRequest fields.
func (r *DocumentIngestRequest) Validate() error {
	return requestValidate.Struct(r)
}
