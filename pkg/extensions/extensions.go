// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines interfaces for enterprise functionality.
//
// This package provides extension points that allow AleutianEnterprise
// to add capabilities without modifying the core AleutianChat codebase.
// The open source version uses no-op defaults for all interfaces.
//
// # Design Philosophy
//
// AleutianChat is designed as a fully functional chat gateway that runs
// behind any identity-aware proxy without external dependencies beyond
// its stores. Enterprise features are implemented by providing concrete
// implementations of these interfaces and injecting them via
// ServiceOptions.
//
// # Extension Categories
//
// The package is organized by domain:
//
//   - identity.go: Request principal resolution (IdentityProvider)
//   - audit.go: Compliance audit logging of history mutations (AuditLogger)
//   - filter.go: Message transformation and PII redaction (MessageFilter)
//
// # Usage in AleutianChat (Open Source)
//
// The open source version uses permissive defaults:
//
//	opts := extensions.DefaultOptions()
//	svc, err := gateway.New(cfg, &opts)
//
// # Usage in AleutianEnterprise
//
// Enterprise provides concrete implementations:
//
//	opts := extensions.ServiceOptions{
//	    Identity:      enterprise.NewOIDCIdentityProvider(cfg),
//	    AuditLogger:   enterprise.NewSplunkAuditor(cfg),
//	    MessageFilter: enterprise.NewPIIFilter(policy),
//	}
//	svc, err := gateway.New(cfg, &opts)
//
// # Thread Safety
//
// All interface implementations must be safe for concurrent use.
// Multiple goroutines may call methods simultaneously.
package extensions

// ServiceOptions groups all extension points for service configuration.
//
// Pass this to service constructors to enable enterprise features.
// All fields are optional; nil values are replaced with no-op defaults
// when DefaultOptions() is called or when services check for nil.
//
// Example:
//
//	// Open source: use defaults
//	opts := extensions.DefaultOptions()
//
//	// Enterprise: inject implementations
//	opts := extensions.ServiceOptions{
//	    Identity:      oidcProvider,
//	    AuditLogger:   splunkAuditor,
//	    MessageFilter: piiFilter,
//	}
type ServiceOptions struct {
	// Identity resolves the authenticated principal for each request.
	// Default: HeaderIdentityProvider (trusts proxy headers, falls back
	// to a development principal when they are absent)
	Identity IdentityProvider

	// AuditLogger records security-relevant events such as conversation
	// deletion and feedback submission.
	// Default: NopAuditLogger (discards all events)
	AuditLogger AuditLogger

	// MessageFilter transforms chat content before and after inference.
	// Default: NopMessageFilter (passes through unchanged)
	MessageFilter MessageFilter
}

// DefaultOptions returns ServiceOptions with open-source defaults.
//
// Identity trusts the fronting proxy's principal headers; audit events
// are discarded; content passes through unfiltered.
//
// Returns:
//   - ServiceOptions with all fields populated
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		Identity:      &HeaderIdentityProvider{},
		AuditLogger:   &NopAuditLogger{},
		MessageFilter: &NopMessageFilter{},
	}
}

// WithIdentity returns a copy of opts with the given IdentityProvider.
// Useful for fluent configuration.
func (opts ServiceOptions) WithIdentity(provider IdentityProvider) ServiceOptions {
	opts.Identity = provider
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}

// WithFilter returns a copy of opts with the given MessageFilter.
func (opts ServiceOptions) WithFilter(filter MessageFilter) ServiceOptions {
	opts.MessageFilter = filter
	return opts
}
