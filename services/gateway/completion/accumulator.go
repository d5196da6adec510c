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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/tools"
	openai "github.com/sashabaranov/go-openai"
)

// =============================================================================
// Phases
// =============================================================================

// Phase is the streaming tool-call state. A fresh accumulator starts in
// PhaseInitial and only ever moves forward; PhaseCompleted is terminal.
type Phase int

const (
	// PhaseInitial means no tool call has been seen. Content chunks
	// pass straight through to the client.
	PhaseInitial Phase = iota

	// PhaseStreaming means tool-call fragments are being buffered.
	// Nothing is emitted until the tool section of the stream ends.
	PhaseStreaming

	// PhaseCompleted means the accumulated calls have been executed.
	// Any further chunks from the first stream are suppressed.
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "initial"
	case PhaseStreaming:
		return "streaming"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Action tells the orchestrator what to do with the chunk it just fed
// to the accumulator.
type Action int

const (
	// ActionEmit forwards the chunk to the client unchanged in order.
	ActionEmit Action = iota

	// ActionSuppress drops the chunk.
	ActionSuppress

	// ActionSplice means the tool section ended: the accumulated calls
	// have run, and the orchestrator must append Messages() to the
	// conversation and splice a continuation stream into the output.
	ActionSplice
)

// =============================================================================
// Tool Calls
// =============================================================================

// ToolCall is one reconstructed invocation request. Arguments is the
// concatenation of every argument fragment in arrival order; it is not
// inspected as JSON until the call is finalized, because a fragment
// boundary may fall inside a JSON token.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// =============================================================================
// Accumulator
// =============================================================================

// ToolCallAccumulator reconstructs complete tool invocations from an
// incremental chunk stream.
//
// # Description
//
// Providers interleave tool-call argument fragments across many small
// chunks and signal the end of the tool section only implicitly, by
// sending a delta with no tool-call fields. The accumulator buffers
// argument text per call, flushes a call when a fragment carries a new
// call id, and on the closing delta executes every accumulated call
// through the invoker, producing the assistant/tool message pairs the
// orchestrator appends before re-sending.
//
// # Thread Safety
//
// Not safe for concurrent use. One instance serves exactly one streamed
// provider response and is discarded afterwards.
type ToolCallAccumulator struct {
	invoker     tools.Invoker
	phase       Phase
	calls       []ToolCall
	pendingID   string
	pendingName string
	args        TokenAccumulator
	messages    []openai.ChatCompletionMessage
}

// NewToolCallAccumulator builds an accumulator over the given invoker.
// It fails only when no secure argument buffer can be allocated.
func NewToolCallAccumulator(invoker tools.Invoker) (*ToolCallAccumulator, error) {
	args, err := NewTokenAccumulator()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate argument buffer: %w", err)
	}
	return &ToolCallAccumulator{
		invoker: invoker,
		phase:   PhaseInitial,
		args:    args,
	}, nil
}

// Phase returns the current state.
func (a *ToolCallAccumulator) Phase() Phase {
	return a.phase
}

// Calls returns the finalized tool calls. Complete only after the
// transition to PhaseCompleted.
func (a *ToolCallAccumulator) Calls() []ToolCall {
	return a.calls
}

// Messages returns the assistant/tool message pairs produced by
// executing the accumulated calls. Empty when every call was unknown.
func (a *ToolCallAccumulator) Messages() []openai.ChatCompletionMessage {
	return a.messages
}

// Destroy wipes the argument buffer. Safe to call at any point; the
// orchestrator defers it so a client disconnect mid-stream cannot leave
// partial arguments behind.
func (a *ToolCallAccumulator) Destroy() {
	if a.args != nil {
		a.args.Destroy()
	}
}

// Consume feeds one chunk to the state machine and reports how the
// orchestrator should treat it.
//
// An error is returned only when tool execution fails; the chunk stream
// is then unusable and the orchestration aborts with that error.
func (a *ToolCallAccumulator) Consume(ctx context.Context, chunk openai.ChatCompletionStreamResponse) (Action, error) {
	if len(chunk.Choices) == 0 {
		// Usage-only and content-filter chunks carry no choices.
		return ActionSuppress, nil
	}
	delta := chunk.Choices[0].Delta
	hasToolFragments := len(delta.ToolCalls) > 0

	switch a.phase {
	case PhaseInitial:
		if !hasToolFragments {
			return ActionEmit, nil
		}
		a.phase = PhaseStreaming
		if err := a.ingest(delta.ToolCalls); err != nil {
			return ActionSuppress, err
		}
		return ActionSuppress, nil

	case PhaseStreaming:
		if hasToolFragments {
			if err := a.ingest(delta.ToolCalls); err != nil {
				return ActionSuppress, err
			}
			return ActionSuppress, nil
		}
		if err := a.Complete(ctx); err != nil {
			return ActionSuppress, err
		}
		return ActionSplice, nil

	case PhaseCompleted:
		return ActionSuppress, nil

	default:
		return ActionSuppress, fmt.Errorf("accumulator in impossible phase %s", a.phase)
	}
}

// Complete finalizes the in-flight call and executes everything that
// accumulated. Normally driven by Consume on the closing delta; the
// orchestrator also calls it directly when the stream ends while still
// in PhaseStreaming, so calls are never silently dropped.
func (a *ToolCallAccumulator) Complete(ctx context.Context) error {
	if a.phase == PhaseCompleted {
		return nil
	}
	if err := a.flush(); err != nil {
		return err
	}
	a.phase = PhaseCompleted

	messages, err := invokeToolCalls(ctx, a.invoker, a.calls)
	if err != nil {
		return err
	}
	a.messages = messages
	return nil
}

// ingest routes one delta's tool-call fragments. A fragment carrying an
// id opens a new call (flushing the previous one); a fragment without
// an id continues the current call's argument text.
func (a *ToolCallAccumulator) ingest(fragments []openai.ToolCall) error {
	for _, f := range fragments {
		if f.ID != "" {
			if err := a.flush(); err != nil {
				return err
			}
			a.pendingID = f.ID
			a.pendingName = f.Function.Name
		} else if f.Function.Name != "" && a.pendingName == "" {
			a.pendingName = f.Function.Name
		}
		if f.Function.Arguments != "" {
			if err := a.args.Write(f.Function.Arguments); err != nil {
				return fmt.Errorf("failed to buffer tool arguments: %w", err)
			}
		}
	}
	return nil
}

// flush finalizes the in-flight call, if any, and resets the argument
// buffer for the next one.
func (a *ToolCallAccumulator) flush() error {
	if a.pendingID == "" && a.args.Len() == 0 {
		return nil
	}

	arguments, digest, err := a.args.Finalize()
	if err != nil {
		return fmt.Errorf("failed to finalize tool arguments: %w", err)
	}
	if arguments == "" {
		// Zero-parameter tools may stream no argument bytes at all.
		arguments = "{}"
	}
	a.calls = append(a.calls, ToolCall{
		ID:        a.pendingID,
		Name:      a.pendingName,
		Arguments: arguments,
	})
	slog.Debug("Finalized streamed tool call",
		"tool", a.pendingName, "argument_bytes", len(arguments), "arguments_sha256", digest)

	a.pendingID = ""
	a.pendingName = ""
	a.args, err = NewTokenAccumulator()
	if err != nil {
		return fmt.Errorf("failed to allocate argument buffer: %w", err)
	}
	return nil
}

// =============================================================================
// Execution
// =============================================================================

// invokeToolCalls runs each call through the invoker and builds the
// assistant/tool message pairs for the follow-up request. Calls naming
// tools outside the catalog are skipped without error; a tool that
// exists but fails aborts with the underlying error.
//
// Shared by the buffered and streaming paths so both persist identical
// message shapes, tool_call_id included.
func invokeToolCalls(ctx context.Context, invoker tools.Invoker, calls []ToolCall) ([]openai.ChatCompletionMessage, error) {
	var messages []openai.ChatCompletionMessage
	for _, call := range calls {
		result, err := invoker.Invoke(ctx, call.Name, call.Arguments)
		if err != nil {
			if datatypes.IsUnknownTool(err) {
				continue
			}
			return nil, err
		}

		messages = append(messages,
			openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				}},
			},
			openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Name:       call.Name,
				Content:    result,
			},
		)
	}
	return messages, nil
}
