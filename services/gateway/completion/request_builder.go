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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/retrieval"
	"github.com/AleutianAI/AleutianChat/services/gateway/tools"
	openai "github.com/sashabaranov/go-openai"
)

// SecretMask replaces secret configuration values in anything written
// to logs or error payloads.
const SecretMask = "*****"

// secretParameterKeys are the datasource parameter names whose values
// must never reach a log line, at any nesting level.
var secretParameterKeys = map[string]struct{}{
	"key":               {},
	"api_key":           {},
	"connection_string": {},
	"embedding_key":     {},
	"encoded_api_key":   {},
}

// =============================================================================
// Datasource
// =============================================================================

// DatasourceConfig describes the retrieval-augmentation datasource.
// Parameters carries the provider-specific settings verbatim, secrets
// included; only the Redacted copy may be logged.
type DatasourceConfig struct {
	// Type names the datasource kind, e.g. "weaviate".
	Type string

	// TopK is the number of chunks retrieved per request. Zero selects
	// retrieval.DefaultTopK.
	TopK int

	// Parameters holds endpoint, index, and authentication settings.
	// Nested maps are allowed ("authentication", "embedding_dependency").
	Parameters map[string]any
}

// Redacted returns a deep copy of Parameters with every secret value
// masked. The walk recurses through nested maps, so secrets inside
// authentication blocks and embedding-dependency authentication blocks
// are masked wherever they appear.
func (d *DatasourceConfig) Redacted() map[string]any {
	if d == nil {
		return nil
	}
	return redactSecrets(d.Parameters)
}

func redactSecrets(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if _, secret := secretParameterKeys[k]; secret {
			out[k] = SecretMask
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			out[k] = redactSecrets(nested)
		default:
			out[k] = v
		}
	}
	return out
}

// =============================================================================
// Builder
// =============================================================================

// BuilderConfig carries the server-side generation parameters applied
// to every request.
type BuilderConfig struct {
	Model        string
	SystemPrompt string
	Temperature  float32
	TopP         float32
	MaxTokens    int
	Stop         []string

	// FunctionsEnabled gates tool attachment and execution globally.
	FunctionsEnabled bool

	// Datasource enables retrieval augmentation when non-nil.
	Datasource *DatasourceConfig
}

// RequestBuilder turns a client message list into a provider request.
//
// # Description
//
// The builder applies the server's generation parameters, injects the
// configured system prompt (only when no datasource is configured, so
// retrieval context is never diluted by a generic instruction), copies
// client messages by role, attaches the tool catalog when the rules in
// Build allow, and fetches retrieval context for user turns.
//
// # Thread Safety
//
// Safe for concurrent use; the builder holds only immutable state.
type RequestBuilder struct {
	cfg       BuilderConfig
	catalog   *tools.Catalog
	retriever retrieval.Retriever
}

// NewRequestBuilder wires the builder. retriever may be nil when no
// datasource is configured; catalog may be empty.
func NewRequestBuilder(cfg BuilderConfig, catalog *tools.Catalog, retriever retrieval.Retriever) *RequestBuilder {
	if catalog == nil {
		catalog = tools.EmptyCatalog()
	}
	return &RequestBuilder{cfg: cfg, catalog: catalog, retriever: retriever}
}

// Build assembles the provider request for one exchange.
//
// # Inputs
//
//   - ctx: Context for the retrieval round trip.
//   - userID: Authenticated principal, forwarded as the provider user
//     field for abuse attribution.
//   - messages: The client's conversation so far.
//   - stream: Selects the streamed wire mode.
//
// # Outputs
//
//   - openai.ChatCompletionRequest: The unredacted outbound request.
//   - json.RawMessage: Retrieval citations for the formatter, nil when
//     no augmentation happened.
//   - error: Retrieval failures; nothing else in here can fail.
func (b *RequestBuilder) Build(ctx context.Context, userID string, messages []datatypes.ChatMessage, stream bool) (openai.ChatCompletionRequest, json.RawMessage, error) {
	req := openai.ChatCompletionRequest{
		Model:       b.cfg.Model,
		Temperature: b.cfg.Temperature,
		TopP:        b.cfg.TopP,
		MaxTokens:   b.cfg.MaxTokens,
		Stop:        b.cfg.Stop,
		Stream:      stream,
		User:        userID,
	}

	augment := b.cfg.Datasource != nil && b.retriever != nil && lastMessageIsUser(messages)

	var citations json.RawMessage
	if augment {
		rendered, cites, err := b.retrieveContext(ctx, messages)
		if err != nil {
			return openai.ChatCompletionRequest{}, nil, err
		}
		if rendered != "" {
			req.Messages = append(req.Messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: rendered,
			})
			citations = cites
		}
	}
	if b.cfg.Datasource == nil {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: b.cfg.SystemPrompt,
		})
	}

	for _, msg := range messages {
		variant, ok := msg.Variant()
		if !ok {
			// Error turns and other UI-only roles are not forwarded.
			continue
		}
		switch v := variant.(type) {
		case datatypes.SystemMessage:
			// Instructions come from configuration, never the client.
		case datatypes.UserMessage:
			req.Messages = append(req.Messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: v.Content,
			})
		case datatypes.AssistantMessage:
			out := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: v.Content,
				Name:    v.Name,
			}
			if v.FunctionCall != nil {
				out.FunctionCall = &openai.FunctionCall{
					Name:      v.FunctionCall.Name,
					Arguments: v.FunctionCall.Arguments,
				}
			}
			req.Messages = append(req.Messages, out)
		case datatypes.ToolMessage:
			req.Messages = append(req.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    toolContent(v.Content, v.Context),
				Name:       v.Name,
				ToolCallID: v.ToolCallID,
			})
		case datatypes.FunctionMessage:
			req.Messages = append(req.Messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleFunction,
				Content: v.Content,
				Name:    v.Name,
			})
		}
	}

	if b.cfg.FunctionsEnabled && b.catalog.Len() > 0 && lastMessageIsUser(messages) {
		req.Tools = b.catalog.OpenAITools()
	}

	b.logOutbound(req, augment)
	return req, citations, nil
}

// retrieveContext fetches the top chunks for the latest user turn and
// renders them into one system context message plus a citations
// payload.
func (b *RequestBuilder) retrieveContext(ctx context.Context, messages []datatypes.ChatMessage) (string, json.RawMessage, error) {
	query := messages[len(messages)-1].Content
	chunks, err := b.retriever.Fetch(ctx, query, b.cfg.TopK())
	if err != nil {
		return "", nil, fmt.Errorf("retrieval augmentation failed: %w", err)
	}
	if len(chunks) == 0 {
		return "", nil, nil
	}

	var sb strings.Builder
	sb.WriteString("Answer using only the retrieved documents below. Cite the source of every fact you use.\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&sb, "\n[doc%d] (%s)\n%s\n", i+1, chunk.Source, chunk.Content)
	}

	cites, err := json.Marshal(map[string]any{"citations": chunks})
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode citations: %w", err)
	}
	return sb.String(), cites, nil
}

// TopK resolves the configured chunk count.
func (c BuilderConfig) TopK() int {
	if c.Datasource == nil || c.Datasource.TopK <= 0 {
		return retrieval.DefaultTopK
	}
	return c.Datasource.TopK
}

// logOutbound writes the diagnostic log line for one built request.
// Datasource parameters go through Redacted; the request itself is
// summarized rather than dumped so message content stays out of logs.
func (b *RequestBuilder) logOutbound(req openai.ChatCompletionRequest, augmented bool) {
	slog.Debug("Built completion request",
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"stream", req.Stream,
		"augmented", augmented,
		"datasource", b.cfg.Datasource.Redacted(),
	)
}

// toolContent picks the wire content for a tool message. History
// replays may carry citations in the context field with empty content;
// the raw context is forwarded as-is so it is never double-encoded.
func toolContent(content string, context json.RawMessage) string {
	if content == "" && len(context) > 0 {
		return string(context)
	}
	return content
}

// lastMessageIsUser reports whether the conversation ends with an
// end-user turn.
func lastMessageIsUser(messages []datatypes.ChatMessage) bool {
	return len(messages) > 0 && messages[len(messages)-1].IsUserAuthored()
}
