// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the gateway service.
//
// This file contains the chat message types shared by the completion
// pipeline, the history store, and the HTTP surface. For request body
// types see requests.go; for the NDJSON response envelope see response.go.
package datatypes

import (
	"encoding/json"
)

// =============================================================================
// Roles
// =============================================================================

// Message roles as they appear on the wire. The UI sends user turns and
// echoes back assistant/tool turns when continuing a conversation; the
// completion pipeline adds system and function-result messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleFunction  = "function"
	RoleError     = "error"
)

// =============================================================================
// Wire Message
// =============================================================================

// FunctionCall is a structured request from the model to invoke a named
// tool before finishing its answer.
//
// Arguments is the raw JSON argument string exactly as produced by the
// model; it is not parsed until the tool executor decodes it.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatMessage is the loosely-shaped message record used at the HTTP
// boundary. Different roles populate different subsets of the optional
// fields; use Variant() to obtain the strongly-typed per-role view
// before interpreting them.
//
// # Fields
//
//   - ID: client-assigned identifier; required when persisting assistant
//     turns so the UI can reference them for feedback.
//   - Role: one of the Role* constants.
//   - Content: message text. Empty for assistant tool-call descriptors.
//   - Name: tool/function name on tool and function messages.
//   - FunctionCall: present on assistant messages that request a tool.
//   - ToolCallID: correlates a tool result with the call that produced it.
//   - Context: citation payload attached by retrieval augmentation;
//     stored as raw JSON so round trips never double-encode it.
//   - CreatedAt / Feedback: populated when reading persisted history.
type ChatMessage struct {
	ID           string          `json:"id,omitempty"`
	Role         string          `json:"role"`
	Content      string          `json:"content"`
	Name         string          `json:"name,omitempty"`
	FunctionCall *FunctionCall   `json:"function_call,omitempty"`
	ToolCallID   string          `json:"tool_call_id,omitempty"`
	Context      json.RawMessage `json:"context,omitempty"`
	CreatedAt    string          `json:"createdAt,omitempty"`
	Feedback     string          `json:"feedback,omitempty"`
}

// =============================================================================
// Typed Variants
//
// Messages arrive as one dynamic record, but each role carries a
// distinct meaningful field set. The variant types make that explicit so
// the request builder can switch exhaustively instead of probing
// optional fields.
// =============================================================================

// MessageVariant is the per-role typed view of a ChatMessage.
type MessageVariant interface {
	isMessageVariant()
}

// SystemMessage is an instruction message injected by configuration,
// never by the client.
type SystemMessage struct {
	Content string
}

// UserMessage is a turn authored by the end user. Only its content is
// forwarded to the provider.
type UserMessage struct {
	Content string
}

// AssistantMessage is a model turn. When the model requested a tool the
// FunctionCall field carries the call descriptor and Content is empty.
type AssistantMessage struct {
	Content      string
	Name         string
	FunctionCall *FunctionCall
	Context      json.RawMessage
}

// ToolMessage is a tool result produced by the invoker, or a citation
// payload produced by retrieval augmentation.
type ToolMessage struct {
	Content    string
	Name       string
	ToolCallID string
	Context    json.RawMessage
}

// FunctionMessage is a legacy-shaped tool result kept for UIs that still
// send role "function" when replaying history.
type FunctionMessage struct {
	Content string
	Name    string
}

func (SystemMessage) isMessageVariant()    {}
func (UserMessage) isMessageVariant()      {}
func (AssistantMessage) isMessageVariant() {}
func (ToolMessage) isMessageVariant()      {}
func (FunctionMessage) isMessageVariant()  {}

// Variant returns the strongly-typed view of the message.
//
// The second return value is false for roles the completion pipeline
// does not forward (e.g. "error" turns the UI keeps in its transcript);
// callers skip those messages.
func (m ChatMessage) Variant() (MessageVariant, bool) {
	switch m.Role {
	case RoleSystem:
		return SystemMessage{Content: m.Content}, true
	case RoleUser:
		return UserMessage{Content: m.Content}, true
	case RoleAssistant:
		return AssistantMessage{
			Content:      m.Content,
			Name:         m.Name,
			FunctionCall: m.FunctionCall,
			Context:      m.Context,
		}, true
	case RoleTool:
		return ToolMessage{
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
			Context:    m.Context,
		}, true
	case RoleFunction:
		return FunctionMessage{Content: m.Content, Name: m.Name}, true
	default:
		return nil, false
	}
}

// IsUserAuthored reports whether the message is an end-user turn. Tool
// attachment and retrieval augmentation only apply when the final
// message of a request is user-authored.
func (m ChatMessage) IsUserAuthored() bool {
	return m.Role == RoleUser
}
