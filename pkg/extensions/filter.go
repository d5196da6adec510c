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
)

// ErrMessageBlocked is returned when a message is rejected by the filter.
// Enterprise implementations should wrap this error with the reason.
//
// Example:
//
//	if containsPII(msg) {
//	    return "", fmt.Errorf("message contains PII: %w", ErrMessageBlocked)
//	}
var ErrMessageBlocked = errors.New("message blocked by filter")

// FilterResult contains the outcome of a filter operation.
//
// Example:
//
//	result := FilterResult{
//	    Original:    "My SSN is 123-45-6789",
//	    Filtered:    "My SSN is [REDACTED]",
//	    WasModified: true,
//	}
type FilterResult struct {
	// Original is the input text before filtering.
	Original string

	// Filtered is the text after filtering transformations.
	// If WasModified is false, this equals Original.
	Filtered string

	// WasModified indicates if any transformations were applied.
	WasModified bool

	// WasBlocked indicates if the text was completely rejected.
	// If true, Filtered should not be used.
	WasBlocked bool

	// BlockReason explains why the text was blocked (if WasBlocked).
	BlockReason string
}

// MessageFilter transforms chat content before and after LLM processing.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Filter Pipeline
//
// Content flows through filters at three points:
//
//  1. FilterInput: the user's latest message, before building the
//     provider request (PII removal, policy checks, prompt-injection
//     detection).
//
//  2. FilterOutput: assistant content, before returning it to the client
//     (secret scrubbing, compliance disclaimers).
//
//  3. FilterContext: retrieved document chunks and system prompts,
//     before injection into the conversation.
//
// # Open Source Behavior
//
// The default NopMessageFilter passes all content through unchanged.
//
// # Blocking vs Transforming
//
// Filters can either transform content and allow it through, or block the
// request entirely. To block, return a FilterResult with WasBlocked=true
// and BlockReason set; the caller then surfaces ErrMessageBlocked.
type MessageFilter interface {
	// FilterInput processes a user message before LLM inference.
	//
	// If the result has WasBlocked set, the caller should log the block
	// via AuditLogger, return ErrMessageBlocked to the user, and must
	// not send the message to the LLM.
	FilterInput(ctx context.Context, message string) (*FilterResult, error)

	// FilterOutput processes assistant content before returning to the user.
	FilterOutput(ctx context.Context, message string) (*FilterResult, error)

	// FilterContext processes retrieved context before it is injected
	// into the conversation.
	FilterContext(ctx context.Context, contextMsg string) (*FilterResult, error)
}

// NopMessageFilter is the default message filter for open source.
//
// It passes all content through unchanged without any transformation
// or blocking.
//
// Thread-safe: this implementation has no mutable state.
type NopMessageFilter struct{}

// FilterInput returns the message unchanged.
func (f *NopMessageFilter) FilterInput(_ context.Context, message string) (*FilterResult, error) {
	return &FilterResult{Original: message, Filtered: message}, nil
}

// FilterOutput returns the message unchanged.
func (f *NopMessageFilter) FilterOutput(_ context.Context, message string) (*FilterResult, error) {
	return &FilterResult{Original: message, Filtered: message}, nil
}

// FilterContext returns the context unchanged.
func (f *NopMessageFilter) FilterContext(_ context.Context, contextMsg string) (*FilterResult, error) {
	return &FilterResult{Original: contextMsg, Filtered: contextMsg}, nil
}

// Compile-time interface compliance check.
var _ MessageFilter = (*NopMessageFilter)(nil)
