// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package completion

import (
	"context"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/llm"
	openai "github.com/sashabaranov/go-openai"
)

// titlePrompt asks the model for a short display title. Kept terse so
// the call stays cheap; max tokens below bounds the damage when the
// model ignores the length instruction.
const titlePrompt = "Summarize the conversation so far into a 4 word or less title. " +
	"Do not use any quotation marks or punctuation. " +
	"Do not include any other commentary or description."

const titleMaxTokens = 64

// GenerateTitle produces a display title for a new conversation from
// its opening turns.
//
// The conversation's user and assistant turns are replayed with the
// summarization prompt appended as a trailing user message. A provider
// failure falls back to the content of the last conversation message,
// so conversation creation never fails on a title.
func GenerateTitle(ctx context.Context, client llm.Client, messages []datatypes.ChatMessage) string {
	fallback := ""
	if len(messages) > 0 {
		fallback = messages[len(messages)-1].Content
	}

	req := openai.ChatCompletionRequest{
		Model:       client.Model(),
		Temperature: 1,
		MaxTokens:   titleMaxTokens,
	}
	for _, msg := range messages {
		if msg.Role != datatypes.RoleUser && msg.Role != datatypes.RoleAssistant {
			continue
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	req.Messages = append(req.Messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: titlePrompt,
	})

	resp, _, err := client.Complete(ctx, req)
	if err != nil || len(resp.Choices) == 0 {
		slog.Warn("Title generation failed, falling back to message content", "error", err)
		return fallback
	}
	title := strings.TrimSpace(resp.Choices[0].Message.Content)
	if title == "" {
		return fallback
	}
	return title
}
