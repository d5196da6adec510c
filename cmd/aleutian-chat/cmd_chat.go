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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianChat/pkg/ux"
	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const inputHistorySize = 50

func newChatCmd() *cobra.Command {
	var (
		flagResume string
		flagPlain  bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session against the gateway.

Replies stream token by token. The server persists the conversation;
use --resume with a conversation id (or "last") to continue one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagPlain {
				ux.SetPlain(true)
			}
			cache := openCacheQuiet()
			if cache != nil {
				defer cache.Close()
			}
			return runChat(cmd.Context(), chatSession{
				client: newClient(),
				cache:  cache,
				reader: NewInteractiveReader(inputHistorySize),
				out:    os.Stdout,
				resume: flagResume,
			})
		},
	}

	cmd.Flags().StringVar(&flagResume, "resume", "", `conversation id to continue, or "last"`)
	cmd.Flags().BoolVar(&flagPlain, "plain", false, "disable colors and decoration")
	return cmd
}

// chatSession groups the chat loop's collaborators so tests can
// substitute any of them.
type chatSession struct {
	client *Client
	cache  *ConversationCache
	reader InputReader
	out    io.Writer
	resume string
}

// runChat drives the read/stream/persist loop until input ends.
func runChat(ctx context.Context, session chatSession) error {
	conversationID, title, transcript, err := session.resolveResume(ctx)
	if err != nil {
		return err
	}

	ux.Header(session.out, ux.HeaderConfig{
		ServerURL:      session.client.baseURL,
		ConversationID: conversationID,
		Title:          title,
	})

	stats := ux.SessionStats{}
	start := time.Now()

	for {
		line, err := session.reader.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		transcript = append(transcript, datatypes.ChatMessage{
			ID:      uuid.NewString(),
			Role:    datatypes.RoleUser,
			Content: line,
		})

		answer, metadata, err := session.exchange(ctx, conversationID, transcript)
		if err != nil {
			ux.Error(err.Error())
			// Drop the failed turn so a retry does not duplicate it.
			transcript = transcript[:len(transcript)-1]
			continue
		}

		if metadata != nil && metadata.ConversationID != "" {
			conversationID = metadata.ConversationID
			if session.cache != nil {
				_ = session.cache.RememberConversation(conversationID, metadata.Title)
			}
		}

		assistant := datatypes.ChatMessage{
			ID:      uuid.NewString(),
			Role:    datatypes.RoleAssistant,
			Content: answer,
		}
		transcript = append(transcript, assistant)

		if conversationID != "" {
			if err := session.client.Update(ctx, datatypes.HistoryChatRequest{
				ConversationID: conversationID,
				Messages:       transcript,
			}); err != nil {
				ux.Warning(fmt.Sprintf("reply not persisted: %v", err))
			}
		}

		stats.Exchanges++
		stats.Characters += len(answer)
	}

	stats.Duration = time.Since(start)
	stats.Render(session.out)
	return nil
}

// exchange performs one streamed round trip and returns the full
// assistant answer.
func (s chatSession) exchange(ctx context.Context, conversationID string, transcript []datatypes.ChatMessage) (string, *datatypes.HistoryMetadata, error) {
	stream, err := s.client.Generate(ctx, datatypes.HistoryChatRequest{
		ConversationID: conversationID,
		Messages:       transcript,
	})
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	result, err := ux.NewStreamProcessorWithWriter(s.out).Process(stream)
	fmt.Fprintln(s.out)
	if err != nil {
		return "", nil, err
	}
	return result.Answer, result.Metadata, nil
}

// resolveResume loads the conversation named by --resume, translating
// "last" through the local cache.
func (s chatSession) resolveResume(ctx context.Context) (conversationID, title string, transcript []datatypes.ChatMessage, err error) {
	id := strings.TrimSpace(s.resume)
	if id == "" {
		return "", "", nil, nil
	}
	if id == "last" {
		if s.cache == nil {
			return "", "", nil, fmt.Errorf(`--resume last requires the local cache`)
		}
		id = s.cache.LastConversation()
		if id == "" {
			return "", "", nil, fmt.Errorf("no previous conversation recorded")
		}
	}

	stored, err := s.client.ReadConversation(ctx, id)
	if err != nil {
		return "", "", nil, fmt.Errorf("resuming conversation: %w", err)
	}
	if s.cache != nil {
		title = s.cache.Title(id)
	}
	return id, title, stored.Messages, nil
}
