// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.gateway.history")

// transcriptQueryLimit caps a single transcript read. It sits well above
// the per-request message cap, so a conversation the UI can still append
// to is always read back whole.
const transcriptQueryLimit = 1000

// Metric label values for history operations.
const (
	opCreateConversation = "create_conversation"
	opGetConversation    = "get_conversation"
	opListConversations  = "list_conversations"
	opRenameConversation = "rename_conversation"
	opDeleteConversation = "delete_conversation"
	opAppendMessage      = "append_message"
	opGetMessages        = "get_messages"
	opDeleteMessages     = "delete_messages"
	opUpdateFeedback     = "update_feedback"
	opMessageOwner       = "message_owner"
)

// Config holds store behavior settings.
type Config struct {
	// PageSize is the default limit for ListConversations when the
	// caller does not supply one.
	PageSize int

	// FeedbackEnabled controls whether new messages carry an empty
	// feedback property. When false the property is omitted entirely,
	// matching a deployment that never collects feedback.
	FeedbackEnabled bool
}

// DefaultConfig returns the standard store configuration.
func DefaultConfig() Config {
	return Config{
		PageSize:        25,
		FeedbackEnabled: true,
	}
}

// validateConfig validates and corrects store configuration values.
// Logs warnings for invalid values and applies sensible defaults.
func validateConfig(config Config) Config {
	defaults := DefaultConfig()

	if config.PageSize < 1 {
		slog.Warn("Invalid PageSize config, using default",
			"provided", config.PageSize, "default", defaults.PageSize)
		config.PageSize = defaults.PageSize
	}

	return config
}

// Connect builds a Weaviate client from a service URL.
//
// # Description
//
// Parses and validates the configured store URL, trimming stray quotes
// and whitespace that container runtimes sometimes pass through
// literally. Returns an error when the URL is missing or unusable so
// the caller can decide whether to run without history.
//
// # Inputs
//
//   - rawURL: The store URL, e.g. "http://weaviate:8080".
//
// # Outputs
//
//   - *weaviate.Client: Connected client (connection is lazy; use
//     Init to verify reachability).
//   - error: Non-nil if the URL is empty or malformed.
func Connect(rawURL string) (*weaviate.Client, error) {
	trimmed := strings.Trim(rawURL, "\"' ")
	if trimmed == "" {
		return nil, &datatypes.ConfigurationError{
			Setting: "history store URL",
			Reason:  "not set",
		}
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, &datatypes.ConfigurationError{
			Setting: "history store URL",
			Reason:  fmt.Sprintf("invalid URL %q", trimmed),
		}
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create history store client: %w", err)
	}
	return client, nil
}

// WeaviateStore implements ConversationStore using Weaviate.
//
// # Description
//
// WeaviateStore persists conversations in the ChatConversation class and
// messages in the ChatMessage class. Conversation ids double as object
// ids (the store mints them as UUIDs), while message ids are stored as a
// message_id property because the UI may supply ids of its own.
//
// # Thread Safety
//
// WeaviateStore is safe for concurrent use. The underlying Weaviate
// client handles connection pooling.
type WeaviateStore struct {
	client *weaviate.Client
	config Config
}

// NewWeaviateStore creates a conversation store over the given client.
// Config values are validated and corrected if necessary.
func NewWeaviateStore(client *weaviate.Client, config Config) *WeaviateStore {
	return &WeaviateStore{
		client: client,
		config: validateConfig(config),
	}
}

// Client returns the underlying Weaviate client so other components
// (retrieval, ingestion) can share the connection.
func (s *WeaviateStore) Client() *weaviate.Client {
	return s.client
}

// Init implements ConversationStore.
//
// # Description
//
// Verifies the store answers its readiness probe, then ensures the chat
// schema classes exist. Run once at startup before serving traffic.
func (s *WeaviateStore) Init(ctx context.Context) error {
	ready, err := s.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return &datatypes.StoreUnavailableError{Err: err}
	}
	if !ready {
		return &datatypes.StoreUnavailableError{Err: fmt.Errorf("store reports not ready")}
	}

	if err := datatypes.EnsureChatSchema(ctx, s.client); err != nil {
		return &datatypes.StoreUnavailableError{Err: err}
	}

	slog.Info("History store initialized")
	return nil
}

// =============================================================================
// Conversation Operations
// =============================================================================

// CreateConversation implements ConversationStore.
func (s *WeaviateStore) CreateConversation(ctx context.Context, userID, title string) (conv *datatypes.Conversation, err error) {
	ctx, span := tracer.Start(ctx, "history.CreateConversation")
	defer span.End()
	defer func() { recordOp(opCreateConversation, err) }()

	conv = datatypes.NewConversation(userID, title)
	span.SetAttributes(attribute.String("conversation.id", conv.ID))

	_, err = s.client.Data().Creator().
		WithClassName(datatypes.ClassChatConversation).
		WithID(conv.ID).
		WithProperties(conv.Properties().ToMap()).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to create conversation", "conversationID", conv.ID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}

	slog.Debug("Created conversation", "conversationID", conv.ID)
	return conv, nil
}

// GetConversation implements ConversationStore.
func (s *WeaviateStore) GetConversation(ctx context.Context, userID, conversationID string) (conv *datatypes.Conversation, err error) {
	ctx, span := tracer.Start(ctx, "history.GetConversation")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))
	defer func() { recordOp(opGetConversation, err) }()

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassChatConversation).
		WithFields(conversationFields()...).
		WithWhere(ownedConversationFilter(userID, conversationID)).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to query conversation", "conversationID", conversationID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ConversationQueryResponse](result)
	if err != nil {
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}
	if len(parsed.Get.ChatConversation) == 0 {
		return nil, &datatypes.NotFoundError{Resource: "conversation", ID: conversationID}
	}

	return parsed.Get.ChatConversation[0].ToConversation(), nil
}

// ListConversations implements ConversationStore.
func (s *WeaviateStore) ListConversations(ctx context.Context, userID string, offset, limit int) (convs []*datatypes.Conversation, err error) {
	ctx, span := tracer.Start(ctx, "history.ListConversations")
	defer span.End()
	defer func() { recordOp(opListConversations, err) }()

	if limit < 1 {
		limit = s.config.PageSize
	}
	if offset < 0 {
		offset = 0
	}
	span.SetAttributes(
		attribute.Int("page.offset", offset),
		attribute.Int("page.limit", limit),
	)

	// Most recently active first.
	sortBy := graphql.Sort{
		Path:  []string{"updated_at"},
		Order: graphql.Desc,
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassChatConversation).
		WithFields(conversationFields()...).
		WithWhere(userFilter(userID)).
		WithSort(sortBy).
		WithOffset(offset).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to list conversations", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.ConversationQueryResponse](result)
	if err != nil {
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}

	convs = make([]*datatypes.Conversation, 0, len(parsed.Get.ChatConversation))
	for i := range parsed.Get.ChatConversation {
		convs = append(convs, parsed.Get.ChatConversation[i].ToConversation())
	}

	slog.Debug("Listed conversations", "count", len(convs), "offset", offset, "limit", limit)
	return convs, nil
}

// RenameConversation implements ConversationStore.
//
// # Description
//
// Verifies ownership, then patches the title in place. The updated_at
// timestamp is left alone: it tracks message activity, and a rename is
// a metadata edit, not activity.
func (s *WeaviateStore) RenameConversation(ctx context.Context, userID, conversationID, title string) (conv *datatypes.Conversation, err error) {
	ctx, span := tracer.Start(ctx, "history.RenameConversation")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))
	defer func() { recordOp(opRenameConversation, err) }()

	// 1. Verify the conversation exists and belongs to the caller.
	conv, err = s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	// 2. Patch the title only.
	err = s.client.Data().Updater().
		WithClassName(datatypes.ClassChatConversation).
		WithID(conv.ID).
		WithProperties(map[string]interface{}{"title": title}).
		WithMerge().
		Do(ctx)
	if err != nil {
		slog.Error("Failed to rename conversation", "conversationID", conversationID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}

	conv.Title = title
	slog.Debug("Renamed conversation", "conversationID", conversationID)
	return conv, nil
}

// DeleteConversation implements ConversationStore.
//
// # Description
//
// Deletes in two phases: first every ChatMessage in the conversation,
// then the ChatConversation record itself. Both phases filter by
// conversation_id and user_id, so a foreign id deletes nothing. Zero
// matches is success, which makes the delete idempotent.
func (s *WeaviateStore) DeleteConversation(ctx context.Context, userID, conversationID string) (err error) {
	ctx, span := tracer.Start(ctx, "history.DeleteConversation")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))
	defer func() { recordOp(opDeleteConversation, err) }()

	// 1. Delete all messages in this conversation.
	deleted, err := s.batchDelete(ctx, datatypes.ClassChatMessage, userID, conversationID)
	if err != nil {
		slog.Error("Failed to delete conversation messages", "conversationID", conversationID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &datatypes.StoreUnavailableError{Err: err}
	}

	// 2. Delete the conversation record itself.
	_, err = s.batchDelete(ctx, datatypes.ClassChatConversation, userID, conversationID)
	if err != nil {
		slog.Error("Failed to delete conversation record", "conversationID", conversationID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &datatypes.StoreUnavailableError{Err: err}
	}

	slog.Info("Deleted conversation", "conversationID", conversationID, "messagesDeleted", deleted)
	return nil
}

// =============================================================================
// Message Operations
// =============================================================================

// AppendMessage implements ConversationStore.
//
// # Description
//
// Persists the message, then reads the parent conversation and stamps
// its updated_at with the message's created_at. The two writes are not
// transactional: a crash between them leaves the parent's timestamp
// stale, but the message itself is never lost. If the parent turns out
// not to exist the message write is not rolled back; the caller gets
// NotFoundError and the orphan is unreachable through list queries.
func (s *WeaviateStore) AppendMessage(ctx context.Context, userID, conversationID, messageID string, msg datatypes.ChatMessage) (stored *datatypes.StoredMessage, err error) {
	ctx, span := tracer.Start(ctx, "history.AppendMessage")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("message.role", msg.Role),
	)
	defer func() { recordOp(opAppendMessage, err) }()

	// 1. Build and persist the message record.
	stored = datatypes.NewStoredMessage(messageID, conversationID, userID, msg)
	props := stored.Properties().ToMap()
	if !s.config.FeedbackEnabled {
		delete(props, "feedback")
	}
	datatypes.WithConversationBeacon(props, conversationID)

	_, err = s.client.Data().Creator().
		WithClassName(datatypes.ClassChatMessage).
		WithProperties(props).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to persist message", "conversationID", conversationID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}

	// 2. Read-modify-write the parent's updated_at.
	conv, err := s.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Touch(stored.CreatedAt)

	err = s.client.Data().Updater().
		WithClassName(datatypes.ClassChatConversation).
		WithID(conv.ID).
		WithProperties(map[string]interface{}{"updated_at": conv.UpdatedAt}).
		WithMerge().
		Do(ctx)
	if err != nil {
		// The message is written; only the activity timestamp is stale.
		slog.Error("Failed to touch conversation after append", "conversationID", conversationID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}

	slog.Debug("Appended message", "conversationID", conversationID, "messageID", stored.ID, "role", stored.Role)
	return stored, nil
}

// GetMessages implements ConversationStore.
func (s *WeaviateStore) GetMessages(ctx context.Context, userID, conversationID string) (msgs []*datatypes.StoredMessage, err error) {
	ctx, span := tracer.Start(ctx, "history.GetMessages")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))
	defer func() { recordOp(opGetMessages, err) }()

	// Oldest first, so the transcript reads top to bottom.
	sortBy := graphql.Sort{
		Path:  []string{"created_at"},
		Order: graphql.Asc,
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassChatMessage).
		WithFields(messageFields()...).
		WithWhere(conversationMessagesFilter(userID, conversationID)).
		WithSort(sortBy).
		WithLimit(transcriptQueryLimit).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to query messages", "conversationID", conversationID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.MessageQueryResponse](result)
	if err != nil {
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}

	msgs = make([]*datatypes.StoredMessage, 0, len(parsed.Get.ChatMessage))
	for i := range parsed.Get.ChatMessage {
		msgs = append(msgs, parsed.Get.ChatMessage[i].ToStoredMessage())
	}

	slog.Debug("Retrieved messages", "conversationID", conversationID, "count", len(msgs))
	return msgs, nil
}

// DeleteMessages implements ConversationStore.
func (s *WeaviateStore) DeleteMessages(ctx context.Context, userID, conversationID string) (err error) {
	ctx, span := tracer.Start(ctx, "history.DeleteMessages")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))
	defer func() { recordOp(opDeleteMessages, err) }()

	deleted, err := s.batchDelete(ctx, datatypes.ClassChatMessage, userID, conversationID)
	if err != nil {
		slog.Error("Failed to delete messages", "conversationID", conversationID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &datatypes.StoreUnavailableError{Err: err}
	}

	slog.Info("Deleted conversation messages", "conversationID", conversationID, "count", deleted)
	return nil
}

// UpdateMessageFeedback implements ConversationStore.
//
// # Description
//
// Looks the message up by its client-visible message_id scoped to the
// caller, then patches feedback and updated_at on the underlying
// object. A message owned by another user is reported as not found,
// identical to a message that does not exist.
func (s *WeaviateStore) UpdateMessageFeedback(ctx context.Context, userID, messageID, feedback string) (stored *datatypes.StoredMessage, err error) {
	ctx, span := tracer.Start(ctx, "history.UpdateMessageFeedback")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", messageID))
	defer func() { recordOp(opUpdateFeedback, err) }()

	// 1. Resolve the message object scoped to the caller.
	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassChatMessage).
		WithFields(messageFields()...).
		WithWhere(ownedMessageFilter(userID, messageID)).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to query message for feedback", "messageID", messageID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.MessageQueryResponse](result)
	if err != nil {
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}
	if len(parsed.Get.ChatMessage) == 0 {
		return nil, &datatypes.NotFoundError{Resource: "message", ID: messageID}
	}
	found := parsed.Get.ChatMessage[0]

	// 2. Patch feedback on the underlying object.
	now := datatypes.Timestamp(time.Now())
	err = s.client.Data().Updater().
		WithClassName(datatypes.ClassChatMessage).
		WithID(found.Additional.ID).
		WithProperties(map[string]interface{}{
			"feedback":   feedback,
			"updated_at": now,
		}).
		WithMerge().
		Do(ctx)
	if err != nil {
		slog.Error("Failed to update message feedback", "messageID", messageID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &datatypes.StoreUnavailableError{Err: err}
	}

	stored = found.ToStoredMessage()
	stored.Feedback = feedback
	stored.UpdatedAt = now

	slog.Debug("Updated message feedback", "messageID", messageID)
	return stored, nil
}

// MessageOwner implements ConversationStore.
//
// # Description
//
// Resolves the owner of a message without scoping by caller. This is
// the one deliberate exception to the user_id filter rule: the
// feedback endpoint needs to tell "someone else's message" apart from
// "no such message", and only the owner is returned, never content.
func (s *WeaviateStore) MessageOwner(ctx context.Context, messageID string) (owner string, err error) {
	ctx, span := tracer.Start(ctx, "history.MessageOwner")
	defer span.End()
	span.SetAttributes(attribute.String("message.id", messageID))
	defer func() { recordOp(opMessageOwner, err) }()

	messageFilter := filters.Where().
		WithPath([]string{"message_id"}).
		WithOperator(filters.Equal).
		WithValueString(messageID)

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassChatMessage).
		WithFields(graphql.Field{Name: "user_id"}).
		WithWhere(messageFilter).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to resolve message owner", "messageID", messageID, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &datatypes.StoreUnavailableError{Err: err}
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.MessageQueryResponse](result)
	if err != nil {
		return "", &datatypes.StoreUnavailableError{Err: err}
	}
	if len(parsed.Get.ChatMessage) == 0 {
		return "", &datatypes.NotFoundError{Resource: "message", ID: messageID}
	}
	return parsed.Get.ChatMessage[0].UserID, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// batchDelete removes all objects of className scoped to the caller and
// conversation, returning the number of successful deletions.
func (s *WeaviateStore) batchDelete(ctx context.Context, className, userID, conversationID string) (int64, error) {
	response, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(className).
		WithOutput("minimal").
		WithWhere(conversationMessagesFilter(userID, conversationID)).
		Do(ctx)
	if err != nil {
		return 0, err
	}

	if response != nil && response.Results != nil {
		if response.Results.Failed > 0 {
			slog.Warn("Batch delete left objects behind",
				"class", className,
				"successful", response.Results.Successful,
				"failed", response.Results.Failed)
		}
		return response.Results.Successful, nil
	}
	return 0, nil
}

// userFilter scopes a query to one owner.
func userFilter(userID string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"user_id"}).
		WithOperator(filters.Equal).
		WithValueString(userID)
}

// ownedConversationFilter matches one conversation owned by userID.
func ownedConversationFilter(userID, conversationID string) *filters.WhereBuilder {
	conversationFilter := filters.Where().
		WithPath([]string{"conversation_id"}).
		WithOperator(filters.Equal).
		WithValueString(conversationID)

	return filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{userFilter(userID), conversationFilter})
}

// conversationMessagesFilter matches every object carrying the given
// conversation_id owned by userID. Works for both chat classes since
// both carry the two properties.
func conversationMessagesFilter(userID, conversationID string) *filters.WhereBuilder {
	return ownedConversationFilter(userID, conversationID)
}

// ownedMessageFilter matches one message by client-visible id owned by
// userID.
func ownedMessageFilter(userID, messageID string) *filters.WhereBuilder {
	messageFilter := filters.Where().
		WithPath([]string{"message_id"}).
		WithOperator(filters.Equal).
		WithValueString(messageID)

	return filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{userFilter(userID), messageFilter})
}

// conversationFields lists the properties retrieved for conversation
// queries.
func conversationFields() []graphql.Field {
	return []graphql.Field{
		{Name: "conversation_id"},
		{Name: "user_id"},
		{Name: "title"},
		{Name: "created_at"},
		{Name: "updated_at"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
		}},
	}
}

// messageFields lists the properties retrieved for message queries.
func messageFields() []graphql.Field {
	return []graphql.Field{
		{Name: "message_id"},
		{Name: "conversation_id"},
		{Name: "user_id"},
		{Name: "role"},
		{Name: "content"},
		{Name: "feedback"},
		{Name: "created_at"},
		{Name: "updated_at"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
		}},
	}
}

// recordOp reports one history operation outcome to the metrics layer.
func recordOp(operation string, err error) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordHistoryOperation(operation, err)
	}
}
