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
	"encoding/json"
	"testing"
)

// =============================================================================
// ChatMessage Variant Tests
// =============================================================================

func TestChatMessage_Variant_System(t *testing.T) {
	msg := ChatMessage{Role: RoleSystem, Content: "You are a helpful assistant."}

	v, ok := msg.Variant()
	if !ok {
		t.Fatal("expected system role to map to a variant")
	}

	sys, ok := v.(SystemMessage)
	if !ok {
		t.Fatalf("expected SystemMessage, got %T", v)
	}
	if sys.Content != "You are a helpful assistant." {
		t.Errorf("unexpected content: %q", sys.Content)
	}
}

func TestChatMessage_Variant_User(t *testing.T) {
	msg := ChatMessage{Role: RoleUser, Content: "hello", Name: "alice"}

	v, ok := msg.Variant()
	if !ok {
		t.Fatal("expected user role to map to a variant")
	}

	usr, ok := v.(UserMessage)
	if !ok {
		t.Fatalf("expected UserMessage, got %T", v)
	}
	if usr.Content != "hello" {
		t.Errorf("unexpected content: %q", usr.Content)
	}
}

func TestChatMessage_Variant_AssistantCarriesFunctionCall(t *testing.T) {
	msg := ChatMessage{
		Role: RoleAssistant,
		FunctionCall: &FunctionCall{
			Name:      "get_weather",
			Arguments: `{"city":"Anchorage"}`,
		},
	}

	v, ok := msg.Variant()
	if !ok {
		t.Fatal("expected assistant role to map to a variant")
	}

	asst, ok := v.(AssistantMessage)
	if !ok {
		t.Fatalf("expected AssistantMessage, got %T", v)
	}
	if asst.FunctionCall == nil {
		t.Fatal("expected function call to survive the projection")
	}
	if asst.FunctionCall.Name != "get_weather" {
		t.Errorf("unexpected function name: %q", asst.FunctionCall.Name)
	}
}

func TestChatMessage_Variant_ToolCarriesToolCallID(t *testing.T) {
	msg := ChatMessage{
		Role:       RoleTool,
		Content:    "72 and sunny",
		ToolCallID: "call_abc123",
	}

	v, ok := msg.Variant()
	if !ok {
		t.Fatal("expected tool role to map to a variant")
	}

	tool, ok := v.(ToolMessage)
	if !ok {
		t.Fatalf("expected ToolMessage, got %T", v)
	}
	if tool.ToolCallID != "call_abc123" {
		t.Errorf("unexpected tool call id: %q", tool.ToolCallID)
	}
}

func TestChatMessage_Variant_Function(t *testing.T) {
	msg := ChatMessage{Role: RoleFunction, Name: "get_weather", Content: "72"}

	v, ok := msg.Variant()
	if !ok {
		t.Fatal("expected function role to map to a variant")
	}

	fn, ok := v.(FunctionMessage)
	if !ok {
		t.Fatalf("expected FunctionMessage, got %T", v)
	}
	if fn.Name != "get_weather" {
		t.Errorf("unexpected name: %q", fn.Name)
	}
}

func TestChatMessage_Variant_ErrorRoleIsSkipped(t *testing.T) {
	msg := ChatMessage{Role: RoleError, Content: "upstream exploded"}

	if _, ok := msg.Variant(); ok {
		t.Error("expected error role to have no provider-facing variant")
	}
}

func TestChatMessage_Variant_UnknownRoleIsSkipped(t *testing.T) {
	msg := ChatMessage{Role: "moderator", Content: "order"}

	if _, ok := msg.Variant(); ok {
		t.Error("expected unknown role to have no provider-facing variant")
	}
}

func TestChatMessage_Variant_ContextPassthrough(t *testing.T) {
	raw := json.RawMessage(`{"citations":[{"title":"doc"}]}`)
	msg := ChatMessage{Role: RoleAssistant, Content: "see citations", Context: raw}

	v, ok := msg.Variant()
	if !ok {
		t.Fatal("expected assistant role to map to a variant")
	}

	asst := v.(AssistantMessage)
	if string(asst.Context) != string(raw) {
		t.Errorf("context not preserved: %s", asst.Context)
	}
}

// =============================================================================
// IsUserAuthored Tests
// =============================================================================

func TestChatMessage_IsUserAuthored(t *testing.T) {
	cases := []struct {
		role string
		want bool
	}{
		{RoleUser, true},
		{RoleAssistant, false},
		{RoleSystem, false},
		{RoleTool, false},
		{RoleFunction, false},
		{RoleError, false},
	}

	for _, tc := range cases {
		msg := ChatMessage{Role: tc.role}
		if got := msg.IsUserAuthored(); got != tc.want {
			t.Errorf("IsUserAuthored(%q) = %v, want %v", tc.role, got, tc.want)
		}
	}
}

// =============================================================================
// JSON Shape Tests
// =============================================================================

func TestChatMessage_MarshalOmitsEmptyOptionalFields(t *testing.T) {
	msg := ChatMessage{Role: RoleUser, Content: "hi"}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, absent := range []string{"name", "function_call", "tool_call_id", "context", "createdAt", "feedback"} {
		if _, ok := m[absent]; ok {
			t.Errorf("expected %q to be omitted when empty", absent)
		}
	}
	if m["role"] != "user" || m["content"] != "hi" {
		t.Errorf("unexpected marshaled shape: %v", m)
	}
}
