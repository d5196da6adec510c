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
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record type discriminators stored alongside every object.
const (
	TypeConversation = "conversation"
	TypeMessage      = "message"
)

// Timestamp produces the canonical timestamp string used for every
// createdAt/updatedAt field. RFC3339Nano in UTC sorts
// lexicographically in chronological order, which the list and
// transcript queries rely on.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// =============================================================================
// Stored Records
// =============================================================================

// Conversation is one stored chat thread. UpdatedAt tracks the
// createdAt of the most recently written message, not wall-clock time
// of the conversation record itself.
type Conversation struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Title     string `json:"title"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// NewConversation mints a conversation record for userID with a fresh
// UUID and both timestamps set to now.
func NewConversation(userID, title string) *Conversation {
	now := Timestamp(time.Now())
	return &Conversation{
		ID:        uuid.NewString(),
		Type:      TypeConversation,
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch records that a message with the given createdAt was appended.
func (c *Conversation) Touch(messageCreatedAt string) {
	c.UpdatedAt = messageCreatedAt
}

// StoredMessage is one persisted chat turn. ID may be caller-supplied
// (the UI generates ids for assistant messages it has already
// rendered), so it is stored as a property rather than reused as the
// object key. Feedback is only written when feedback collection is
// enabled at the store level.
type StoredMessage struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Feedback       string `json:"feedback,omitempty"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

// NewStoredMessage builds a persisted record from one transcript
// message. A blank id gets a fresh UUID; a caller-supplied id is kept
// verbatim.
func NewStoredMessage(id, conversationID, userID string, msg ChatMessage) *StoredMessage {
	if id == "" {
		id = uuid.NewString()
	}
	now := Timestamp(time.Now())
	return &StoredMessage{
		ID:             id,
		Type:           TypeMessage,
		ConversationID: conversationID,
		UserID:         userID,
		Role:           msg.Role,
		Content:        msg.Content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ToChatMessage projects a stored record into the transcript shape the
// UI consumes. Content is sanitized so the payload survives JSON
// encode/decode even if stored content carried raw control bytes.
func (m *StoredMessage) ToChatMessage() ChatMessage {
	return ChatMessage{
		ID:        m.ID,
		Role:      m.Role,
		Content:   SanitizeText(m.Content),
		CreatedAt: m.CreatedAt,
		Feedback:  m.Feedback,
	}
}

// =============================================================================
// Weaviate Property Structs
// =============================================================================

// ConversationProperties is the property set for a ChatConversation
// object.
type ConversationProperties struct {
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	Title          string `json:"title"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// ToMap converts ConversationProperties to the map format required by
// Weaviate's WithProperties() method.
func (p *ConversationProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"conversation_id": p.ConversationId,
		"user_id":         p.UserId,
		"title":           p.Title,
		"created_at":      p.CreatedAt,
		"updated_at":      p.UpdatedAt,
	}
}

// Properties returns the Weaviate property struct for this record.
func (c *Conversation) Properties() *ConversationProperties {
	return &ConversationProperties{
		ConversationId: c.ID,
		UserId:         c.UserID,
		Title:          c.Title,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

// MessageProperties is the property set for a ChatMessage object.
type MessageProperties struct {
	MessageId      string `json:"message_id"`
	ConversationId string `json:"conversation_id"`
	UserId         string `json:"user_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	Feedback       string `json:"feedback"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// ToMap converts MessageProperties to the map format required by
// Weaviate's WithProperties() method.
func (p *MessageProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"message_id":      p.MessageId,
		"conversation_id": p.ConversationId,
		"user_id":         p.UserId,
		"role":            p.Role,
		"content":         p.Content,
		"feedback":        p.Feedback,
		"created_at":      p.CreatedAt,
		"updated_at":      p.UpdatedAt,
	}
}

// Properties returns the Weaviate property struct for this record.
func (m *StoredMessage) Properties() *MessageProperties {
	return &MessageProperties{
		MessageId:      m.ID,
		ConversationId: m.ConversationID,
		UserId:         m.UserID,
		Role:           m.Role,
		Content:        m.Content,
		Feedback:       m.Feedback,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// DocumentChunkProperties is the property set for one ingested
// retrieval chunk.
type DocumentChunkProperties struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	IngestedAt int64  `json:"ingested_at"`
}

// ToMap converts DocumentChunkProperties to the map format required by
// Weaviate's WithProperties() method.
func (p *DocumentChunkProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"content":     p.Content,
		"source":      p.Source,
		"chunk_index": p.ChunkIndex,
		"ingested_at": p.IngestedAt,
	}
}

// BeaconRef represents a Weaviate cross-reference beacon.
type BeaconRef struct {
	Beacon string `json:"beacon"`
}

// WithConversationBeacon adds an inConversation beacon reference to a
// message property map.
//
// "weaviate://localhost/" is the standard beacon URI scheme; localhost
// is a protocol identifier, not a real host. Reference properties must
// be arrays of beacon objects.
func WithConversationBeacon(props map[string]interface{}, conversationUUID string) {
	beacon := BeaconRef{
		Beacon: fmt.Sprintf("weaviate://localhost/ChatConversation/%s", conversationUUID),
	}
	props["inConversation"] = []BeaconRef{beacon}
}
