// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianChat/pkg/ux"
	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	ux.SetPlain(true)
}

// fakeGateway scripts /history/generate and records /history/update
// calls for the chat-loop tests.
type fakeGateway struct {
	answers []string
	turn    int
	updates []datatypes.HistoryChatRequest
	reads   map[string][]datatypes.ChatMessage
}

func (g *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/history/generate", func(w http.ResponseWriter, r *http.Request) {
		if g.turn >= len(g.answers) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(datatypes.ErrorResponse{Error: "no scripted answer"})
			return
		}
		answer := g.answers[g.turn]
		g.turn++

		w.Header().Set("Content-Type", "application/json-lines")
		envelope := datatypes.ResponseEnvelope{
			ID:      "resp-1",
			Choices: []datatypes.Choice{{Delta: &datatypes.Delta{Role: datatypes.RoleAssistant, Content: answer}}},
			HistoryMetadata: &datatypes.HistoryMetadata{
				ConversationID: "conv-new",
				Title:          "Scripted",
			},
		}
		line, _ := json.Marshal(envelope)
		_, _ = w.Write(append(line, '\n'))
	})
	mux.HandleFunc("/history/update", func(w http.ResponseWriter, r *http.Request) {
		var req datatypes.HistoryChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		g.updates = append(g.updates, req)
		_ = json.NewEncoder(w).Encode(datatypes.SuccessResponse{Success: true})
	})
	mux.HandleFunc("/history/read", func(w http.ResponseWriter, r *http.Request) {
		var ref datatypes.ConversationRef
		_ = json.NewDecoder(r.Body).Decode(&ref)
		messages, ok := g.reads[ref.ConversationID]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(datatypes.ErrorResponse{Error: "not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(datatypes.ConversationMessagesResponse{
			ConversationID: ref.ConversationID,
			Messages:       messages,
		})
	})
	return mux
}

func newChatHarness(t *testing.T, gw *fakeGateway) (*Client, *ConversationCache) {
	t.Helper()
	srv := httptest.NewServer(gw.handler())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "user-test"), openTestCache(t)
}

func TestRunChat_StreamsAndPersists(t *testing.T) {
	gw := &fakeGateway{answers: []string{"Hello there."}}
	client, cache := newChatHarness(t, gw)

	var out strings.Builder
	err := runChat(context.Background(), chatSession{
		client: client,
		cache:  cache,
		reader: NewMockReader("hi"),
		out:    &out,
	})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Hello there.")

	// Persisted transcript carries the user turn and the assistant
	// reply under the server-minted conversation id.
	require.Len(t, gw.updates, 1)
	update := gw.updates[0]
	assert.Equal(t, "conv-new", update.ConversationID)
	require.Len(t, update.Messages, 2)
	assert.Equal(t, datatypes.RoleUser, update.Messages[0].Role)
	assert.Equal(t, datatypes.RoleAssistant, update.Messages[1].Role)
	assert.Equal(t, "Hello there.", update.Messages[1].Content)

	// Cache learned the new conversation.
	assert.Equal(t, "conv-new", cache.LastConversation())
	assert.Equal(t, "Scripted", cache.Title("conv-new"))
}

func TestRunChat_FailedTurnIsDropped(t *testing.T) {
	gw := &fakeGateway{answers: []string{}} // every exchange fails
	client, cache := newChatHarness(t, gw)

	var out strings.Builder
	err := runChat(context.Background(), chatSession{
		client: client,
		cache:  cache,
		reader: NewMockReader("hi"),
		out:    &out,
	})
	require.NoError(t, err)
	assert.Empty(t, gw.updates)
}

func TestRunChat_QuitCommandEndsSession(t *testing.T) {
	gw := &fakeGateway{answers: []string{"unused"}}
	client, cache := newChatHarness(t, gw)

	err := runChat(context.Background(), chatSession{
		client: client,
		cache:  cache,
		reader: NewMockReader("quit"),
		out:    &strings.Builder{},
	})
	require.NoError(t, err)
	assert.Zero(t, gw.turn)
}

func TestRunChat_ResumeLastLoadsTranscript(t *testing.T) {
	gw := &fakeGateway{
		answers: []string{"Continuing."},
		reads: map[string][]datatypes.ChatMessage{
			"conv-old": {
				{Role: datatypes.RoleUser, Content: "earlier question"},
				{Role: datatypes.RoleAssistant, Content: "earlier answer"},
			},
		},
	}
	client, cache := newChatHarness(t, gw)
	require.NoError(t, cache.RememberConversation("conv-old", "Old Chat"))

	var out strings.Builder
	err := runChat(context.Background(), chatSession{
		client: client,
		cache:  cache,
		reader: NewMockReader("and then?"),
		out:    &out,
		resume: "last",
	})
	require.NoError(t, err)

	require.Len(t, gw.updates, 1)
	// Two stored messages plus the new user/assistant pair.
	assert.Len(t, gw.updates[0].Messages, 4)
}

func TestRunChat_ResumeLastWithoutHistoryFails(t *testing.T) {
	gw := &fakeGateway{}
	client, cache := newChatHarness(t, gw)

	err := runChat(context.Background(), chatSession{
		client: client,
		cache:  cache,
		reader: NewMockReader(),
		out:    &strings.Builder{},
		resume: "last",
	})
	assert.Error(t, err)
}
