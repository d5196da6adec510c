// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/stretchr/testify/assert"
)

func withPlain(t *testing.T) {
	t.Helper()
	prev := IsPlain()
	SetPlain(true)
	t.Cleanup(func() { SetPlain(prev) })
}

func TestRenderConversationList_Plain(t *testing.T) {
	withPlain(t)

	var out strings.Builder
	RenderConversationList(&out, []datatypes.Conversation{
		{ID: "aaaa-bbbb", Title: "Otter Facts", UpdatedAt: datatypes.Timestamp(time.Now())},
		{ID: "cccc-dddd", Title: "Recipes", UpdatedAt: datatypes.Timestamp(time.Now().Add(-2 * time.Hour))},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Otter Facts")
	assert.Contains(t, lines[1], "2h ago")
}

func TestRenderConversationList_TruncatesLongTitles(t *testing.T) {
	withPlain(t)

	var out strings.Builder
	RenderConversationList(&out, []datatypes.Conversation{
		{ID: "x", Title: strings.Repeat("long ", 30)},
	})

	assert.Contains(t, out.String(), "…")
}

func TestRenderTranscript_SummarizesToolTraffic(t *testing.T) {
	withPlain(t)

	var out strings.Builder
	RenderTranscript(&out, []datatypes.ChatMessage{
		{Role: datatypes.RoleUser, Content: "weather in kyoto?"},
		{Role: datatypes.RoleAssistant, FunctionCall: &datatypes.FunctionCall{Name: "get_weather"}},
		{Role: datatypes.RoleTool, Content: `{"temp": 21}`},
		{Role: datatypes.RoleAssistant, Content: "It is 21 degrees."},
	})

	text := out.String()
	assert.Contains(t, text, "you: weather in kyoto?")
	assert.Contains(t, text, "called get_weather")
	assert.Contains(t, text, "assistant: It is 21 degrees.")
}

func TestRenderTranscript_HidesSystemMessages(t *testing.T) {
	withPlain(t)

	var out strings.Builder
	RenderTranscript(&out, []datatypes.ChatMessage{
		{Role: datatypes.RoleSystem, Content: "internal prompt"},
	})

	assert.NotContains(t, out.String(), "internal prompt")
}

func TestRelativeTime(t *testing.T) {
	assert.Equal(t, "just now", relativeTime(datatypes.Timestamp(time.Now())))
	assert.Equal(t, "5m ago", relativeTime(datatypes.Timestamp(time.Now().Add(-5*time.Minute))))
	assert.Equal(t, "not-a-time", relativeTime("not-a-time"))
}
