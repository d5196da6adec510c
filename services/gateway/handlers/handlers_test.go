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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"testing"

	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/services/gateway/completion"
	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/middleware"
	"github.com/AleutianAI/AleutianChat/services/gateway/settings"
	"github.com/AleutianAI/AleutianChat/services/gateway/tools"
	"github.com/AleutianAI/AleutianChat/services/llm"
	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	// The streaming path allocates a TokenAccumulator; tests must not
	// depend on the host's RLIMIT_MEMLOCK.
	os.Setenv("ALEUTIAN_INSECURE_MEMORY", "true")
	os.Exit(m.Run())
}

// =============================================================================
// Fake Conversation Store
// =============================================================================

type appendCall struct {
	UserID         string
	ConversationID string
	MessageID      string
	Message        datatypes.ChatMessage
}

// fakeStore is an in-memory ConversationStore.
type fakeStore struct {
	initErr       error
	conversations map[string]*datatypes.Conversation
	messages      map[string][]*datatypes.StoredMessage
	appends       []appendCall
	deletedConvs  []string
	clearedConvs  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*datatypes.Conversation),
		messages:      make(map[string][]*datatypes.StoredMessage),
	}
}

func (f *fakeStore) Init(_ context.Context) error { return f.initErr }

func (f *fakeStore) CreateConversation(_ context.Context, userID, title string) (*datatypes.Conversation, error) {
	conv := datatypes.NewConversation(userID, title)
	f.conversations[conv.ID] = conv
	return conv, nil
}

func (f *fakeStore) GetConversation(_ context.Context, userID, conversationID string) (*datatypes.Conversation, error) {
	conv, ok := f.conversations[conversationID]
	if !ok || conv.UserID != userID {
		return nil, &datatypes.NotFoundError{Resource: "conversation", ID: conversationID}
	}
	return conv, nil
}

func (f *fakeStore) ListConversations(_ context.Context, userID string, offset, limit int) ([]*datatypes.Conversation, error) {
	var owned []*datatypes.Conversation
	for _, conv := range f.conversations {
		if conv.UserID == userID {
			owned = append(owned, conv)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].UpdatedAt > owned[j].UpdatedAt })
	if offset >= len(owned) {
		return nil, nil
	}
	end := offset + limit
	if end > len(owned) {
		end = len(owned)
	}
	return owned[offset:end], nil
}

func (f *fakeStore) RenameConversation(ctx context.Context, userID, conversationID, title string) (*datatypes.Conversation, error) {
	conv, err := f.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	conv.Title = title
	return conv, nil
}

func (f *fakeStore) DeleteConversation(_ context.Context, userID, conversationID string) error {
	f.deletedConvs = append(f.deletedConvs, conversationID)
	if conv, ok := f.conversations[conversationID]; ok && conv.UserID == userID {
		delete(f.conversations, conversationID)
		delete(f.messages, conversationID)
	}
	return nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, userID, conversationID, messageID string, msg datatypes.ChatMessage) (*datatypes.StoredMessage, error) {
	conv, err := f.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	stored := datatypes.NewStoredMessage(messageID, conversationID, userID, msg)
	f.messages[conversationID] = append(f.messages[conversationID], stored)
	f.appends = append(f.appends, appendCall{UserID: userID, ConversationID: conversationID, MessageID: messageID, Message: msg})
	conv.Touch(stored.CreatedAt)
	return stored, nil
}

func (f *fakeStore) GetMessages(_ context.Context, userID, conversationID string) ([]*datatypes.StoredMessage, error) {
	var out []*datatypes.StoredMessage
	for _, m := range f.messages[conversationID] {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteMessages(_ context.Context, _, conversationID string) error {
	f.clearedConvs = append(f.clearedConvs, conversationID)
	delete(f.messages, conversationID)
	return nil
}

func (f *fakeStore) UpdateMessageFeedback(_ context.Context, userID, messageID, feedback string) (*datatypes.StoredMessage, error) {
	for _, msgs := range f.messages {
		for _, m := range msgs {
			if m.ID == messageID && m.UserID == userID {
				m.Feedback = feedback
				return m, nil
			}
		}
	}
	return nil, &datatypes.NotFoundError{Resource: "message", ID: messageID}
}

func (f *fakeStore) MessageOwner(_ context.Context, messageID string) (string, error) {
	for _, msgs := range f.messages {
		for _, m := range msgs {
			if m.ID == messageID {
				return m.UserID, nil
			}
		}
	}
	return "", &datatypes.NotFoundError{Resource: "message", ID: messageID}
}

// seedConversation plants one conversation with optional messages.
func (f *fakeStore) seedConversation(userID, conversationID, title string, msgs ...*datatypes.StoredMessage) {
	f.conversations[conversationID] = &datatypes.Conversation{
		ID:        conversationID,
		UserID:    userID,
		Title:     title,
		CreatedAt: "2026-08-20T10:00:00Z",
		UpdatedAt: "2026-08-20T10:05:00Z",
	}
	f.messages[conversationID] = msgs
}

// =============================================================================
// Fake LLM Client
// =============================================================================

type fakeChunkStream struct {
	chunks []openai.ChatCompletionStreamResponse
	err    error // returned after the chunks instead of io.EOF
}

func (s *fakeChunkStream) Recv() (openai.ChatCompletionStreamResponse, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return openai.ChatCompletionStreamResponse{}, s.err
		}
		return openai.ChatCompletionStreamResponse{}, io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}

func (s *fakeChunkStream) Close() error { return nil }

// fakeLLM pops scripted responses/streams in order; an exhausted script
// fails like an unreachable provider.
type fakeLLM struct {
	responses []*openai.ChatCompletionResponse
	streams   []*fakeChunkStream
	requests  []openai.ChatCompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, string, error) {
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		return nil, "", &datatypes.UpstreamError{Operation: "chat completion", StatusCode: http.StatusServiceUnavailable, Err: io.ErrUnexpectedEOF}
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, "apim-test", nil
}

func (f *fakeLLM) Stream(_ context.Context, req openai.ChatCompletionRequest) (llm.ChunkStream, string, error) {
	f.requests = append(f.requests, req)
	if len(f.streams) == 0 {
		return nil, "", &datatypes.UpstreamError{Operation: "chat completion", StatusCode: http.StatusServiceUnavailable, Err: io.ErrUnexpectedEOF}
	}
	stream := f.streams[0]
	f.streams = f.streams[1:]
	return stream, "apim-test", nil
}

func (f *fakeLLM) Model() string { return "test-model" }

var _ llm.Client = (*fakeLLM)(nil)

func assistantResponse(content string) *openai.ChatCompletionResponse {
	return &openai.ChatCompletionResponse{
		ID:      "cmpl-1",
		Model:   "test-model",
		Created: 1756000000,
		Object:  "chat.completion",
		Choices: []openai.ChatCompletionChoice{{
			Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
		}},
	}
}

func contentStreamChunk(content string) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		ID:      "cmpl-1",
		Model:   "test-model",
		Object:  "chat.completion.chunk",
		Choices: []openai.ChatCompletionStreamChoice{{
			Delta: openai.ChatCompletionStreamChoiceDelta{Content: content},
		}},
	}
}

// =============================================================================
// Fake Invoker
// =============================================================================

type nopInvoker struct{}

func (nopInvoker) Invoke(_ context.Context, _, _ string) (string, error) { return "", nil }
func (nopInvoker) Enabled() bool                                         { return false }
func (nopInvoker) Catalog() *tools.Catalog                               { return tools.EmptyCatalog() }

// =============================================================================
// Harness
// =============================================================================

const testUser = "user-a"

type harness struct {
	handler *Handler
	router  *gin.Engine
	store   *fakeStore
	llm     *fakeLLM
}

func newHarness(t *testing.T, streamMode bool) *harness {
	t.Helper()
	store := newFakeStore()
	client := &fakeLLM{}

	builder := completion.NewRequestBuilder(completion.BuilderConfig{Model: "test-model"}, nil, nil)
	orch := completion.NewOrchestrator(client, nopInvoker{}, builder, nil)

	watcher, err := settings.NewWatcher("")
	if err != nil {
		t.Fatalf("settings watcher: %v", err)
	}

	h := New(Deps{
		Orchestrator: orch,
		LLM:          client,
		Store:        store,
		Settings:     watcher,
		StreamMode:   streamMode,
	})
	return &harness{handler: h, router: registerTestRoutes(h), store: store, llm: client}
}

// registerTestRoutes mirrors the production route table behind the
// header identity middleware.
func registerTestRoutes(h *Handler) *gin.Engine {
	r := gin.New()
	r.GET("/healthz", h.Healthz)
	authed := r.Group("", middleware.IdentityMiddleware(&extensions.HeaderIdentityProvider{}))
	authed.POST("/conversation", h.Conversation)
	authed.GET("/ws/chat", h.ChatWebsocket)
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
	authed.GET("/frontend_settings", h.FrontendSettings)
	authed.POST("/documents", h.IngestDocument)
	return r
}

// do performs one JSON request as testUser.
func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(extensions.HeaderPrincipalID, testUser)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}
