// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval augments chat requests with document context.
//
// # Description
//
// When a datasource is configured, the request builder asks a Retriever
// for the chunks most relevant to the user's latest turn and injects
// them into the outbound completion request. Chunks enter the store
// through the Ingestor, which splits uploaded documents and batches
// them into the DocumentChunk class.
//
// # Thread Safety
//
// Both implementations are stateless over a shared Weaviate client and
// are safe for concurrent use.
package retrieval

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.gateway.retrieval")

// DefaultTopK is the number of chunks fetched when the datasource does
// not specify one.
const DefaultTopK = 5

// Chunk is one retrieved passage with its provenance.
type Chunk struct {
	Content string `json:"content"`
	Source  string `json:"filepath"`
}

// Retriever fetches the document chunks most relevant to a query.
type Retriever interface {
	// Fetch returns up to k chunks ranked by relevance to query. An
	// empty result is not an error; the builder simply proceeds
	// without augmentation.
	Fetch(ctx context.Context, query string, k int) ([]Chunk, error)
}

// =============================================================================
// Weaviate Implementation
// =============================================================================

// WeaviateRetriever runs nearText queries against the DocumentChunk
// class.
type WeaviateRetriever struct {
	client *weaviate.Client
}

// NewWeaviateRetriever builds a retriever over an existing client.
func NewWeaviateRetriever(client *weaviate.Client) *WeaviateRetriever {
	return &WeaviateRetriever{client: client}
}

// chunkQueryResponse mirrors the GraphQL Get payload for DocumentChunk.
type chunkQueryResponse struct {
	Get struct {
		DocumentChunk []struct {
			Content string `json:"content"`
			Source  string `json:"source"`
		} `json:"DocumentChunk"`
	} `json:"Get"`
}

// Fetch implements Retriever.
func (r *WeaviateRetriever) Fetch(ctx context.Context, query string, k int) ([]Chunk, error) {
	ctx, span := tracer.Start(ctx, "retrieval.Fetch")
	defer span.End()

	if k <= 0 {
		k = DefaultTopK
	}
	span.SetAttributes(attribute.Int("retrieval.top_k", k))

	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	result, err := r.client.GraphQL().Get().
		WithClassName(datatypes.ClassDocumentChunk).
		WithFields(
			graphql.Field{Name: "content"},
			graphql.Field{Name: "source"},
		).
		WithNearText(nearText).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &datatypes.StoreUnavailableError{Err: fmt.Errorf("chunk query failed: %w", err)}
	}

	parsed, err := datatypes.ParseGraphQLResponse[chunkQueryResponse](result)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse chunk query response: %w", err)
	}

	chunks := make([]Chunk, 0, len(parsed.Get.DocumentChunk))
	for _, c := range parsed.Get.DocumentChunk {
		chunks = append(chunks, Chunk{Content: c.Content, Source: c.Source})
	}
	span.SetAttributes(attribute.Int("retrieval.chunks", len(chunks)))
	return chunks, nil
}
