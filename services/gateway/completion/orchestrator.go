// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package completion drives chat exchanges against the provider.
//
// # Description
//
// This package is the core of the gateway: it shapes provider requests
// from client conversations (request_builder.go), reconstructs tool
// calls from streamed chunks (accumulator.go), executes the buffered
// and streamed orchestration loops with their single tool-triggered
// re-send (this file), and maps provider shapes onto the client wire
// format (formatter.go).
//
// # Architecture
//
//	client messages
//	      │
//	      ▼
//	RequestBuilder ──► llm.Client ──► chunks ──► ToolCallAccumulator
//	                        ▲                          │ splice
//	                        └── tool message pairs ◄───┘
//	                                  │
//	                             tools.Invoker
//
// # Concurrency
//
// One orchestration is one flow: a single goroutine drives the whole
// exchange and suspends on provider, tool, and store round trips.
// Chunks are consumed and re-emitted strictly in arrival order.
//
// # Thread Safety
//
// Orchestrator is immutable after construction and safe for concurrent
// use across requests.
package completion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/tools"
	"github.com/AleutianAI/AleutianChat/services/llm"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.gateway.completion")

// UsageRecorder receives token accounting after buffered completions.
// The streaming path records duration only; providers do not attach
// usage to ordinary chunks.
type UsageRecorder interface {
	RecordCompletion(ctx context.Context, userID, model, kind string, promptTokens, completionTokens int, latency time.Duration)
}

// Orchestrator coordinates provider round trips, tool execution, and
// response formatting for one chat exchange at a time.
type Orchestrator struct {
	client  llm.Client
	invoker tools.Invoker
	builder *RequestBuilder
	usage   UsageRecorder
}

// NewOrchestrator wires the orchestrator. usage may be nil.
func NewOrchestrator(client llm.Client, invoker tools.Invoker, builder *RequestBuilder, usage UsageRecorder) *Orchestrator {
	return &Orchestrator{
		client:  client,
		invoker: invoker,
		builder: builder,
		usage:   usage,
	}
}

// Model returns the configured provider model name.
func (o *Orchestrator) Model() string {
	return o.client.Model()
}

// =============================================================================
// Buffered Path
// =============================================================================

// Complete performs one buffered chat exchange.
//
// # Description
//
// Sends the built request, formats the response, and, when the reply
// demands tool execution, runs the accumulated calls and re-sends the
// augmented conversation exactly once. Tool calls in the second
// response are not executed; its formatting replaces the first.
// Retrying the same unmodified request repeats the identical sequence.
func (o *Orchestrator) Complete(ctx context.Context, userID string, messages []datatypes.ChatMessage, metadata *datatypes.HistoryMetadata) (*datatypes.ResponseEnvelope, error) {
	ctx, span := tracer.Start(ctx, "completion.Complete")
	defer span.End()
	span.SetAttributes(attribute.Int("chat.num_messages", len(messages)))

	start := time.Now()
	req, citations, err := o.builder.Build(ctx, userID, messages, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp, apimRequestID, err := o.client.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	envelope := FormatResponse(resp, citations, metadata, apimRequestID)
	o.recordUsage(ctx, userID, resp, "buffered", time.Since(start))

	if !o.invoker.Enabled() {
		return envelope, nil
	}
	calls := bufferedToolCalls(resp)
	if len(calls) == 0 {
		return envelope, nil
	}

	span.SetAttributes(attribute.Int("chat.tool_calls", len(calls)))
	toolMessages, err := invokeToolCalls(ctx, o.invoker, calls)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(toolMessages) == 0 {
		// Every requested tool was unknown; keep the first response.
		return envelope, nil
	}

	req.Messages = append(req.Messages, toolMessages...)
	second, apimRequestID, err := o.client.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	o.recordUsage(ctx, userID, second, "buffered_tool_followup", time.Since(start))
	return FormatResponse(second, citations, metadata, apimRequestID), nil
}

// bufferedToolCalls extracts the invocations a buffered response asks
// for. Legacy function_call replies are normalized into the tool-call
// shape so downstream handling is uniform.
func bufferedToolCalls(resp *openai.ChatCompletionResponse) []ToolCall {
	if len(resp.Choices) == 0 {
		return nil
	}
	message := resp.Choices[0].Message

	calls := make([]ToolCall, 0, len(message.ToolCalls))
	for _, tc := range message.ToolCalls {
		calls = append(calls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	if len(calls) == 0 && message.FunctionCall != nil {
		calls = append(calls, ToolCall{
			Name:      message.FunctionCall.Name,
			Arguments: message.FunctionCall.Arguments,
		})
	}
	return calls
}

// =============================================================================
// Streaming Path
// =============================================================================

// Stream performs one streamed chat exchange, passing each formatted
// envelope to emit in chunk arrival order.
//
// # Description
//
// While the accumulator is in PhaseInitial every chunk is re-emitted
// immediately. Tool-call fragments are buffered silently; when the tool
// section ends the accumulated calls run and the continuation stream's
// chunks are spliced into the output. Exactly one continuation happens
// per exchange, matching the buffered path. An emit error (typically a
// client disconnect) aborts the exchange; in-flight tool state is wiped
// and nothing is persisted, since history writes are caller-driven.
func (o *Orchestrator) Stream(ctx context.Context, userID string, messages []datatypes.ChatMessage, metadata *datatypes.HistoryMetadata, emit func(*datatypes.ResponseEnvelope) error) error {
	ctx, span := tracer.Start(ctx, "completion.Stream")
	defer span.End()
	span.SetAttributes(attribute.Int("chat.num_messages", len(messages)))

	req, citations, err := o.builder.Build(ctx, userID, messages, true)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	stream, apimRequestID, err := o.client.Stream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer stream.Close()

	if len(citations) > 0 {
		if err := emit(FormatCitationsChunk(o.client.Model(), citations, metadata, apimRequestID)); err != nil {
			return err
		}
	}

	acc, err := NewToolCallAccumulator(o.invoker)
	if err != nil {
		return err
	}
	defer acc.Destroy()

	spliced := false
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			wrapped := &datatypes.UpstreamError{Operation: "completion stream", Err: err}
			span.RecordError(wrapped)
			span.SetStatus(codes.Error, wrapped.Error())
			return wrapped
		}

		action, err := acc.Consume(ctx, chunk)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		switch action {
		case ActionEmit:
			if err := emit(FormatChunk(chunk, metadata, apimRequestID)); err != nil {
				return err
			}
		case ActionSplice:
			spliced = true
			if err := o.spliceContinuation(ctx, req, acc, metadata, emit); err != nil {
				return err
			}
		case ActionSuppress:
			// Buffered fragment or post-completion chunk; drop it.
		}
	}

	// A stream that ends inside the tool section never sends the
	// closing delta; run the accumulated calls anyway.
	if !spliced && acc.Phase() == PhaseStreaming {
		if err := acc.Complete(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		if err := o.spliceContinuation(ctx, req, acc, metadata, emit); err != nil {
			return err
		}
	}
	return nil
}

// spliceContinuation appends the accumulator's message pairs to the
// conversation and relays the follow-up stream. When every call was
// unknown there is nothing to splice and the exchange ends with what
// was already emitted.
func (o *Orchestrator) spliceContinuation(ctx context.Context, req openai.ChatCompletionRequest, acc *ToolCallAccumulator, metadata *datatypes.HistoryMetadata, emit func(*datatypes.ResponseEnvelope) error) error {
	toolMessages := acc.Messages()
	if len(toolMessages) == 0 {
		slog.Debug("No tool messages to splice, ending stream", "calls", len(acc.Calls()))
		return nil
	}
	req.Messages = append(req.Messages, toolMessages...)

	continuation, apimRequestID, err := o.client.Stream(ctx, req)
	if err != nil {
		return err
	}
	defer continuation.Close()

	for {
		chunk, err := continuation.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &datatypes.UpstreamError{Operation: "completion stream", Err: err}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if err := emit(FormatChunk(chunk, metadata, apimRequestID)); err != nil {
			return err
		}
	}
}

// recordUsage forwards provider token accounting when a recorder is
// configured.
func (o *Orchestrator) recordUsage(ctx context.Context, userID string, resp *openai.ChatCompletionResponse, kind string, latency time.Duration) {
	if o.usage == nil || resp == nil {
		return
	}
	o.usage.RecordCompletion(ctx, userID, resp.Model, kind, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, latency)
}
