// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// AuditEvent represents a security-relevant event for compliance logging.
//
// The gateway emits events for destructive history operations and for
// feedback submission; enterprise deployments can route them to a SIEM.
//
// # Event Categories
//
// Events are categorized by type for filtering and alerting:
//   - History: "history.delete", "history.delete_all", "history.clear",
//     "history.rename"
//   - Feedback: "feedback.submit", "feedback.denied"
//   - System: "system.start", "system.stop"
//
// # Compliance Fields
//
// For regulatory compliance, always populate:
//   - UserID: Required for GDPR right-to-know requests
//   - Timestamp: Required for audit trail integrity
//   - ResourceType/ResourceID: Required for data lineage
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    "history.delete",
//	    Timestamp:    time.Now().UTC(),
//	    UserID:       authInfo.UserID,
//	    Action:       "delete",
//	    ResourceType: "conversation",
//	    ResourceID:   conversationID,
//	    Outcome:      "success",
//	}
type AuditEvent struct {
	// EventType categorizes the event for filtering and alerting.
	// Format: "category.action" (e.g., "history.delete", "feedback.submit")
	EventType string

	// Timestamp is when the event occurred (always use UTC).
	// If zero, implementations should set to time.Now().UTC().
	Timestamp time.Time

	// UserID identifies who performed the action.
	// Use "system" for automated actions.
	UserID string

	// Action describes what operation was attempted.
	// Common values: "create", "read", "update", "delete", "submit"
	Action string

	// ResourceType is the category of resource involved.
	// Examples: "conversation", "message", "feedback"
	ResourceType string

	// ResourceID is the specific resource instance (optional).
	ResourceID string

	// Outcome indicates the result of the action.
	// Values: "success", "failure", "denied", "error"
	Outcome string

	// Metadata holds additional event-specific data.
	//
	// Common metadata keys:
	//   - "error": error message if Outcome is "failure" or "error"
	//   - "feedback": the submitted feedback value
	//   - "message_count": number of messages affected
	Metadata Metadata
}

// AuditLogger records security-relevant events for compliance and analysis.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// The Log method should be non-blocking or have reasonable timeouts to
// avoid impacting request latency.
//
// # Open Source Behavior
//
// The default NopAuditLogger discards all events. This is appropriate for
// local deployments where audit trails aren't required.
//
// # Enterprise Implementation
//
// Enterprise versions send events to SIEM systems (Splunk, Datadog, ELK),
// cloud logging, or compliance databases. For compliance-critical events,
// synchronous persistence is recommended.
type AuditLogger interface {
	// Log records a security-relevant event.
	//
	// Implementations should:
	//  1. Set Timestamp if zero
	//  2. Validate required fields (EventType, UserID)
	//  3. Persist or transmit the event
	//  4. Return quickly (use async buffering if needed)
	Log(ctx context.Context, event AuditEvent) error

	// Flush ensures all buffered events are persisted.
	//
	// Call this before application shutdown to prevent event loss.
	// For synchronous implementations, this may be a no-op.
	Flush(ctx context.Context) error
}

// NopAuditLogger is the default audit logger for open source.
//
// It discards all events without recording them.
//
// Thread-safe: this implementation has no mutable state.
type NopAuditLogger struct{}

// Log discards the event without recording it.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error {
	return nil
}

// Flush is a no-op since nothing is buffered.
func (l *NopAuditLogger) Flush(_ context.Context) error {
	return nil
}

// Compile-time interface compliance check.
var _ AuditLogger = (*NopAuditLogger)(nil)
