// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

// ============================================================================
// ServiceOptions Tests
// ============================================================================

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if opts.Identity == nil {
		t.Error("DefaultOptions().Identity should not be nil")
	}
	if opts.AuditLogger == nil {
		t.Error("DefaultOptions().AuditLogger should not be nil")
	}
	if opts.MessageFilter == nil {
		t.Error("DefaultOptions().MessageFilter should not be nil")
	}

	if _, ok := opts.Identity.(*HeaderIdentityProvider); !ok {
		t.Error("DefaultOptions().Identity should be *HeaderIdentityProvider")
	}
	if _, ok := opts.AuditLogger.(*NopAuditLogger); !ok {
		t.Error("DefaultOptions().AuditLogger should be *NopAuditLogger")
	}
	if _, ok := opts.MessageFilter.(*NopMessageFilter); !ok {
		t.Error("DefaultOptions().MessageFilter should be *NopMessageFilter")
	}
}

func TestServiceOptions_WithIdentity(t *testing.T) {
	original := DefaultOptions()
	custom := &mockIdentityProvider{userID: "custom-user"}

	newOpts := original.WithIdentity(custom)

	if newOpts.Identity != custom {
		t.Error("WithIdentity should set the custom IdentityProvider")
	}

	// Original should be unchanged (immutable copy)
	if _, ok := original.Identity.(*HeaderIdentityProvider); !ok {
		t.Error("Original options should be unchanged after WithIdentity")
	}

	if newOpts.AuditLogger == nil {
		t.Error("WithIdentity should preserve AuditLogger")
	}
	if newOpts.MessageFilter == nil {
		t.Error("WithIdentity should preserve MessageFilter")
	}
}

func TestServiceOptions_WithAudit(t *testing.T) {
	original := DefaultOptions()
	custom := &mockAuditLogger{}

	newOpts := original.WithAudit(custom)

	if newOpts.AuditLogger != custom {
		t.Error("WithAudit should set the custom AuditLogger")
	}
	if _, ok := original.AuditLogger.(*NopAuditLogger); !ok {
		t.Error("Original options should be unchanged after WithAudit")
	}
}

func TestServiceOptions_WithFilter(t *testing.T) {
	original := DefaultOptions()
	custom := &mockMessageFilter{}

	newOpts := original.WithFilter(custom)

	if newOpts.MessageFilter != custom {
		t.Error("WithFilter should set the custom MessageFilter")
	}
	if _, ok := original.MessageFilter.(*NopMessageFilter); !ok {
		t.Error("Original options should be unchanged after WithFilter")
	}
}

// ============================================================================
// HeaderIdentityProvider Tests
// ============================================================================

func TestHeaderIdentityProvider_ProxyHeaders(t *testing.T) {
	provider := &HeaderIdentityProvider{}
	headers := http.Header{}
	headers.Set(HeaderPrincipalID, "user-123")
	headers.Set(HeaderPrincipalName, "analyst@example.com")
	headers.Set(HeaderPrincipalIDP, "aad")

	info, err := provider.Resolve(context.Background(), headers)
	if err != nil {
		t.Fatalf("Resolve with principal headers should succeed: %v", err)
	}
	if info.UserID != "user-123" {
		t.Errorf("UserID = %q, want %q", info.UserID, "user-123")
	}
	if info.Name != "analyst@example.com" {
		t.Errorf("Name = %q, want %q", info.Name, "analyst@example.com")
	}
	if idp, ok := info.Metadata.GetString("idp"); !ok || idp != "aad" {
		t.Errorf("Metadata idp = %q (present=%v), want %q", idp, ok, "aad")
	}
}

func TestHeaderIdentityProvider_DevFallback(t *testing.T) {
	provider := &HeaderIdentityProvider{}

	info, err := provider.Resolve(context.Background(), http.Header{})
	if err != nil {
		t.Fatalf("Resolve without headers should fall back to dev principal: %v", err)
	}
	if info.UserID != DevPrincipalID {
		t.Errorf("UserID = %q, want dev principal %q", info.UserID, DevPrincipalID)
	}
	if info.Name != DevPrincipalName {
		t.Errorf("Name = %q, want dev principal name %q", info.Name, DevPrincipalName)
	}
}

func TestHeaderIdentityProvider_RequireHeaders(t *testing.T) {
	provider := &HeaderIdentityProvider{RequireHeaders: true}

	_, err := provider.Resolve(context.Background(), http.Header{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Resolve without headers and RequireHeaders should return ErrUnauthorized, got %v", err)
	}
}

func TestAuthInfo_HasRole(t *testing.T) {
	info := &AuthInfo{
		UserID: "user-123",
		Roles:  []string{"analyst", "viewer"},
	}

	if !info.HasRole("analyst") {
		t.Error("HasRole should find an existing role")
	}
	if info.HasRole("admin") {
		t.Error("HasRole should not find a missing role")
	}
}

// ============================================================================
// Nop Implementation Tests
// ============================================================================

func TestNopAuditLogger(t *testing.T) {
	logger := &NopAuditLogger{}
	ctx := context.Background()

	err := logger.Log(ctx, AuditEvent{
		EventType: "history.delete",
		UserID:    "user-123",
	})
	if err != nil {
		t.Errorf("NopAuditLogger.Log should never fail, got %v", err)
	}

	if err := logger.Flush(ctx); err != nil {
		t.Errorf("NopAuditLogger.Flush should never fail, got %v", err)
	}
}

func TestNopMessageFilter(t *testing.T) {
	filter := &NopMessageFilter{}
	ctx := context.Background()
	const msg = "My SSN is 123-45-6789"

	for name, fn := range map[string]func(context.Context, string) (*FilterResult, error){
		"FilterInput":   filter.FilterInput,
		"FilterOutput":  filter.FilterOutput,
		"FilterContext": filter.FilterContext,
	} {
		result, err := fn(ctx, msg)
		if err != nil {
			t.Errorf("%s should never fail, got %v", name, err)
			continue
		}
		if result.Filtered != msg {
			t.Errorf("%s should pass content through unchanged, got %q", name, result.Filtered)
		}
		if result.WasModified || result.WasBlocked {
			t.Errorf("%s should not modify or block", name)
		}
	}
}

// ============================================================================
// Metadata Tests
// ============================================================================

func TestMetadata_TypedAccessors(t *testing.T) {
	now := time.Now().UTC()
	meta := NewMetadata().
		Set("idp", "aad").
		Set("count", 3).
		Set("verified", true).
		Set("at", now)

	if s, ok := meta.GetString("idp"); !ok || s != "aad" {
		t.Errorf("GetString(idp) = %q, %v; want aad, true", s, ok)
	}
	if n, ok := meta.GetInt("count"); !ok || n != 3 {
		t.Errorf("GetInt(count) = %d, %v; want 3, true", n, ok)
	}
	if b, ok := meta.GetBool("verified"); !ok || !b {
		t.Errorf("GetBool(verified) = %v, %v; want true, true", b, ok)
	}
	if at, ok := meta.GetTime("at"); !ok || !at.Equal(now) {
		t.Errorf("GetTime(at) = %v, %v; want %v, true", at, ok, now)
	}

	// Wrong-type access reports absence
	if _, ok := meta.GetString("count"); ok {
		t.Error("GetString on an int value should report false")
	}
	if _, ok := meta.GetInt("missing"); ok {
		t.Error("GetInt on a missing key should report false")
	}
}

func TestMetadata_CloneAndMerge(t *testing.T) {
	original := NewMetadata().Set("a", 1)
	_ = original.Clone().Set("b", 2)

	if original.Has("b") {
		t.Error("mutating a clone should not affect the original")
	}

	merged := NewMetadata().Set("a", 0).Merge(original)
	if n, _ := merged.GetInt("a"); n != 1 {
		t.Errorf("Merge should overwrite existing keys, got a=%d", n)
	}
}

// ============================================================================
// Mocks
// ============================================================================

type mockIdentityProvider struct {
	userID string
}

func (m *mockIdentityProvider) Resolve(_ context.Context, _ http.Header) (*AuthInfo, error) {
	return &AuthInfo{UserID: m.userID}, nil
}

type mockAuditLogger struct {
	events []AuditEvent
}

func (m *mockAuditLogger) Log(_ context.Context, event AuditEvent) error {
	m.events = append(m.events, event)
	return nil
}

func (m *mockAuditLogger) Flush(_ context.Context) error { return nil }

type mockMessageFilter struct{}

func (m *mockMessageFilter) FilterInput(_ context.Context, msg string) (*FilterResult, error) {
	return &FilterResult{Original: msg, Filtered: msg}, nil
}

func (m *mockMessageFilter) FilterOutput(_ context.Context, msg string) (*FilterResult, error) {
	return &FilterResult{Original: msg, Filtered: msg}, nil
}

func (m *mockMessageFilter) FilterContext(_ context.Context, msg string) (*FilterResult, error) {
	return &FilterResult{Original: msg, Filtered: msg}, nil
}
