// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

const (
	chunkSize    = 1000
	chunkOverlap = chunkSize / 10
)

var (
	defaultSeparators  = []string{"\n\n", "\n", " ", ""}
	markdownSeparators = []string{"\n## ", "\n### ", "\n\n", "\n", " ", ""}
)

// Ingestor splits uploaded documents into retrieval chunks and batches
// them into the DocumentChunk class.
type Ingestor struct {
	client *weaviate.Client
}

// NewIngestor builds an ingestor over an existing client.
func NewIngestor(client *weaviate.Client) *Ingestor {
	return &Ingestor{client: client}
}

// Ingest splits content and stores the resulting chunks. Chunk ids are
// derived from the chunk text, so re-ingesting the same document
// overwrites rather than duplicates.
//
// Returns the number of chunks stored.
func (ing *Ingestor) Ingest(ctx context.Context, source, content string) (int, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Ingest")
	defer span.End()

	chunks, err := splitterFor(source).SplitText(content)
	if err != nil {
		return 0, fmt.Errorf("failed to split document %s: %w", source, err)
	}
	if len(chunks) == 0 {
		slog.Warn("No chunks produced after splitting", "source", source)
		return 0, nil
	}
	slog.Info("Split document into chunks", "source", source, "chunk_count", len(chunks))

	objects := make([]*models.Object, len(chunks))
	now := time.Now().UnixMilli()
	for i, chunk := range chunks {
		hash := sha256.Sum256([]byte(chunk))
		chunkUUID, _ := uuid.FromBytes(hash[:16])

		props := datatypes.DocumentChunkProperties{
			Content:    chunk,
			Source:     source,
			ChunkIndex: i,
			IngestedAt: now,
		}
		objects[i] = &models.Object{
			Class:      datatypes.ClassDocumentChunk,
			ID:         strfmt.UUID(chunkUUID.String()),
			Properties: props.ToMap(),
		}
	}

	resp, err := ing.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, &datatypes.StoreUnavailableError{Err: fmt.Errorf("batch import failed: %w", err)}
	}

	stored := 0
	for _, item := range resp {
		if item.Result != nil && item.Result.Status != nil && *item.Result.Status == "SUCCESS" {
			stored++
		}
	}
	if stored < len(chunks) {
		slog.Warn("Some chunks failed to store", "source", source, "stored", stored, "total", len(chunks))
	}
	return stored, nil
}

// splitterFor picks separators by file extension. Markdown keeps
// heading boundaries intact; everything else splits on paragraphs.
func splitterFor(source string) textsplitter.TextSplitter {
	switch filepath.Ext(source) {
	case ".md":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(markdownSeparators),
		)
	default:
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(defaultSeparators),
		)
	}
}
