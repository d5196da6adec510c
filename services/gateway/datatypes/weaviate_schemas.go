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
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// Weaviate class names for the chat history store.
const (
	ClassChatConversation = "ChatConversation"
	ClassChatMessage      = "ChatMessage"
	ClassDocumentChunk    = "DocumentChunk"
)

func GetChatConversationSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ClassChatConversation,
		Description: "One chat thread owned by a single user.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			Bm25:                   nil,
			CleanupIntervalSeconds: 0,
			IndexNullState:         true,
			IndexPropertyLength:    false,
			IndexTimestamps:        true,
			Stopwords:              nil,
			UsingBlockMaxWAND:      false,
		},
		Properties: []*models.Property{
			{
				Name:            "conversation_id",
				DataType:        []string{"text"},
				Description:     "The unique ID for the conversation.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "user_id",
				DataType:        []string{"text"},
				Description:     "Principal id of the owning user. Every query filters on it.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "title",
				DataType:     []string{"text"},
				Description:  "Short display title, usually LLM-generated.",
				Tokenization: "word",
			},
			{
				Name:            "created_at",
				DataType:        []string{"date"},
				Description:     "RFC3339 timestamp when the conversation was created.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "updated_at",
				DataType:        []string{"date"},
				Description:     "RFC3339 createdAt of the most recently written message.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func GetChatMessageSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ClassChatMessage,
		Description: "One persisted chat turn within a conversation.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			Bm25:                   nil,
			CleanupIntervalSeconds: 0,
			IndexNullState:         true,
			IndexPropertyLength:    false,
			IndexTimestamps:        true,
			Stopwords:              nil,
			UsingBlockMaxWAND:      false,
		},
		Properties: []*models.Property{
			{
				Name:            "message_id",
				DataType:        []string{"text"},
				Description:     "Message id, either server-minted or supplied by the UI.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "conversation_id",
				DataType:        []string{"text"},
				Description:     "The ID of the parent conversation.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "user_id",
				DataType:        []string{"text"},
				Description:     "Principal id of the owning user.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "role",
				DataType:        []string{"text"},
				Description:     "Transcript role (user, assistant, tool, function).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Message content. May hold a serialized tool-call descriptor.",
				Tokenization: "word",
			},
			{
				Name:            "feedback",
				DataType:        []string{"text"},
				Description:     "User feedback verdict. Empty until feedback is submitted.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "created_at",
				DataType:        []string{"date"},
				Description:     "RFC3339 timestamp. Ordering key within a conversation.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "updated_at",
				DataType:        []string{"date"},
				Description:     "RFC3339 timestamp of the last mutation (feedback updates).",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "inConversation",
				DataType:        []string{ClassChatConversation},
				Description:     "A direct graph link to the parent conversation object.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

func GetDocumentChunkSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ClassDocumentChunk,
		Description: "A retrieval chunk produced by splitting an ingested document.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "The chunk text used for retrieval augmentation.",
				Tokenization: "word",
			},
			{
				Name:            "source",
				DataType:        []string{"text"},
				Description:     "The original file path or source of the document.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "chunk_index",
				DataType:        []string{"int"},
				Description:     "Zero-based position of the chunk within its document.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "ingested_at",
				DataType:        []string{"number"},
				Description:     "Timestamp (Unix ms) of when the chunk was ingested.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureChatSchema creates any of the gateway's Weaviate classes that
// do not already exist. ChatConversation is created before ChatMessage
// so the inConversation reference can resolve.
func EnsureChatSchema(ctx context.Context, client *weaviate.Client) error {
	schemaGetters := []func() *models.Class{
		GetChatConversationSchema,
		GetChatMessageSchema,
		GetDocumentChunkSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()
		slog.Info("Checking schema", "class", class.Class)

		// Check if the class already exists.
		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
		if err != nil {
			// If it doesn't exist, the client returns an error. We can now create it.
			slog.Info("Schema not found, creating it...", "class", class.Class)
			if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
				return fmt.Errorf("failed to create schema for class %s: %w", class.Class, err)
			}
			slog.Info("Successfully created schema", "class", class.Class)
		} else {
			slog.Info("Schema already exists", "class", class.Class)
		}
	}
	return nil
}
