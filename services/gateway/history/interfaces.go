// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history provides persistent conversation storage for the chat gateway.
//
// # Description
//
// This package implements the conversation history store: titled, timestamped
// conversation records owned by one user, each containing an ordered list of
// messages. Persistence is caller-driven through the history endpoints and is
// independent of the completion path, so a failed completion never leaves a
// half-written transcript behind.
//
// # Architecture
//
// The package uses a dual-class approach:
//   - ChatConversation class: one record per thread (title, owner, timestamps)
//   - ChatMessage class: one record per turn, cross-referenced to its parent
//
// Every query filters by user_id, so cross-user access is impossible by
// construction rather than by handler discipline.
//
// # Thread Safety
//
// All implementations are safe for concurrent use. Appends to the same
// conversation are not coordinated: concurrent appends can race on the
// parent's updated_at and the last writer wins.
package history

import (
	"context"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

// ConversationStore defines the persistence operations for conversation history.
//
// # Description
//
// ConversationStore is a typed client over the document database. Each
// operation is a single round trip except AppendMessage, which writes the
// message and then read-modify-writes the parent conversation's updated_at.
// Those two writes are not transactional; a crash between them leaves the
// conversation timestamp stale but never loses the message.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
//
// # Example
//
//	store := NewWeaviateStore(client, DefaultConfig())
//	conv, err := store.CreateConversation(ctx, userID, "Quarterly numbers")
//	if err != nil {
//	    // Handle error
//	}
//	msg, err := store.AppendMessage(ctx, userID, conv.ID, "", userTurn)
type ConversationStore interface {
	// Init verifies the store is reachable and the schema exists,
	// creating missing classes. Called once at startup.
	Init(ctx context.Context) error

	// CreateConversation mints a new conversation record for userID.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation and timeout.
	//   - userID: Owning principal; every later read is scoped to it.
	//   - title: Display title (may be a placeholder until summarized).
	//
	// # Outputs
	//
	//   - *Conversation: The stored record with a fresh UUID and both
	//     timestamps set to now.
	//   - error: StoreUnavailableError if the write fails.
	CreateConversation(ctx context.Context, userID, title string) (*datatypes.Conversation, error)

	// GetConversation loads one conversation owned by userID.
	// Returns NotFoundError if the id is absent or owned by someone
	// else; the two cases are reported identically so existence never
	// leaks across users.
	GetConversation(ctx context.Context, userID, conversationID string) (*datatypes.Conversation, error)

	// ListConversations returns the caller's conversations ordered by
	// updated_at descending (most recently active first), paged by
	// offset and limit. A non-positive limit falls back to the
	// configured page size.
	ListConversations(ctx context.Context, userID string, offset, limit int) ([]*datatypes.Conversation, error)

	// RenameConversation sets a new title on an existing conversation.
	// The updated_at timestamp is deliberately left alone: it tracks
	// message activity, not metadata edits. Returns NotFoundError if
	// the conversation is absent or foreign.
	RenameConversation(ctx context.Context, userID, conversationID, title string) (*datatypes.Conversation, error)

	// DeleteConversation removes a conversation and all its messages,
	// messages first. Deleting an absent conversation is success, not
	// an error.
	DeleteConversation(ctx context.Context, userID, conversationID string) error

	// AppendMessage persists one chat turn and stamps the parent
	// conversation's updated_at with the message's created_at.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation and timeout.
	//   - userID: Owning principal.
	//   - conversationID: Parent conversation; must already exist.
	//   - messageID: Caller-supplied id, or "" to mint one.
	//   - msg: The turn to persist (role and content are kept verbatim).
	//
	// # Outputs
	//
	//   - *StoredMessage: The persisted record.
	//   - error: NotFoundError if the parent conversation is absent
	//     (the message write is not rolled back in that case).
	AppendMessage(ctx context.Context, userID, conversationID, messageID string, msg datatypes.ChatMessage) (*datatypes.StoredMessage, error)

	// GetMessages returns every message in a conversation ordered by
	// created_at ascending. An empty conversation yields an empty
	// slice, not an error.
	GetMessages(ctx context.Context, userID, conversationID string) ([]*datatypes.StoredMessage, error)

	// DeleteMessages removes every message in a conversation but keeps
	// the conversation record itself.
	DeleteMessages(ctx context.Context, userID, conversationID string) error

	// UpdateMessageFeedback records user feedback on one message,
	// looked up by its client-visible message id. Returns
	// NotFoundError if the message is absent or owned by another user.
	UpdateMessageFeedback(ctx context.Context, userID, messageID, feedback string) (*datatypes.StoredMessage, error)

	// MessageOwner returns the user_id that owns the given message,
	// unscoped by caller. The feedback endpoint uses it to distinguish
	// a foreign message (403) from a missing one (404). Returns
	// NotFoundError if no message carries the id.
	MessageOwner(ctx context.Context, messageID string) (string, error)
}
