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
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required to
// convert Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Type Parameters
//
//   - T: The target struct type with json tags matching the response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if response is nil or parsing fails.
//
// # Limitations
//
//   - Requires the target type to exactly match the expected response structure.
//   - Type mismatches will result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Query Response Types
// =============================================================================

// ConversationQueryResponse represents the response from querying the
// ChatConversation class.
type ConversationQueryResponse struct {
	Get struct {
		ChatConversation []ConversationResult `json:"ChatConversation"`
	} `json:"Get"`
}

// ConversationResult represents a single conversation from a query.
type ConversationResult struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Title          string `json:"title"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	Additional     struct {
		ID string `json:"id"`
	} `json:"_additional"`
}

// ToConversation converts a query result back into the stored record
// shape.
func (r *ConversationResult) ToConversation() *Conversation {
	return &Conversation{
		ID:        r.ConversationID,
		Type:      TypeConversation,
		UserID:    r.UserID,
		Title:     r.Title,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// MessageQueryResponse represents the response from querying the
// ChatMessage class.
type MessageQueryResponse struct {
	Get struct {
		ChatMessage []MessageResult `json:"ChatMessage"`
	} `json:"Get"`
}

// MessageResult represents a single message from a query.
type MessageResult struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Feedback       string `json:"feedback"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	Additional     struct {
		ID string `json:"id"`
	} `json:"_additional"`
}

// ToStoredMessage converts a query result back into the stored record
// shape.
func (r *MessageResult) ToStoredMessage() *StoredMessage {
	return &StoredMessage{
		ID:             r.MessageID,
		Type:           TypeMessage,
		ConversationID: r.ConversationID,
		UserID:         r.UserID,
		Role:           r.Role,
		Content:        r.Content,
		Feedback:       r.Feedback,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// DocumentChunkQueryResponse represents the response from querying the
// DocumentChunk class.
type DocumentChunkQueryResponse struct {
	Get struct {
		DocumentChunk []DocumentChunkResult `json:"DocumentChunk"`
	} `json:"Get"`
}

// DocumentChunkResult represents a single retrieval chunk from a query.
type DocumentChunkResult struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	ChunkIndex *int   `json:"chunk_index"`
	IngestedAt int64  `json:"ingested_at"`
	Additional struct {
		ID        string   `json:"id"`
		Distance  *float32 `json:"distance"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}
