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
	"errors"
	"fmt"
)

// =============================================================================
// Error Taxonomy
//
// Every failure surfaced by the gateway belongs to one of these
// categories. Handlers map them to HTTP statuses in one place; inner
// layers wrap causes with %w so errors.As still finds the category.
// =============================================================================

// ConfigurationError indicates the service is missing or carries
// invalid configuration (absent provider credentials, unsupported API
// version, unconfigured history store where one is required).
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Setting == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
}

// UpstreamError indicates the completion provider or the tool executor
// failed. StatusCode carries the upstream HTTP status when one exists;
// zero means transport-level failure.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s failed with status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s failed: %v", e.Operation, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// UnknownToolError indicates the model requested a tool that is not in
// the configured catalog. Invocation skips these silently; the type
// exists so the skip decision is visible to tests and metrics, not so
// it can surface to clients.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Tool)
}

// NotFoundError indicates a conversation or message that does not exist
// for the requesting user. A record owned by another user is reported
// identically so existence never leaks across users.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ValidationError indicates a malformed request body or parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid request: %s", e.Reason)
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

// StoreUnavailableError indicates the history store could not be
// reached or is not configured.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("history store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// =============================================================================
// Predicates
// =============================================================================

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsStoreUnavailable reports whether err is (or wraps) a
// StoreUnavailableError.
func IsStoreUnavailable(err error) bool {
	var target *StoreUnavailableError
	return errors.As(err, &target)
}

// IsUnknownTool reports whether err is (or wraps) an UnknownToolError.
func IsUnknownTool(err error) bool {
	var target *UnknownToolError
	return errors.As(err, &target)
}

// UpstreamStatus returns the upstream HTTP status carried by err, or 0
// when err is not an UpstreamError or carries no status.
func UpstreamStatus(err error) int {
	var target *UpstreamError
	if errors.As(err, &target) {
		return target.StatusCode
	}
	return 0
}
