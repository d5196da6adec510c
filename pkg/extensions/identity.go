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
)

// ErrUnauthorized is returned when principal resolution fails.
// Enterprise implementations should wrap this error with additional context.
//
// Example:
//
//	if claims.Subject == "" {
//	    return nil, fmt.Errorf("token missing subject: %w", extensions.ErrUnauthorized)
//	}
var ErrUnauthorized = errors.New("unauthorized")

// Proxy headers set by identity-aware front ends (App Service EasyAuth,
// oauth2-proxy, and compatible gateways).
const (
	HeaderPrincipalID   = "X-Ms-Client-Principal-Id"
	HeaderPrincipalName = "X-Ms-Client-Principal-Name"
	HeaderPrincipalIDP  = "X-Ms-Client-Principal-Idp"
	HeaderAccessToken   = "X-Ms-Token-Aad-Access-Token"
)

// Development principal used when no proxy headers are present.
// Matches the placeholder identity the web UI ships with, so local
// deployments share one history partition.
const (
	DevPrincipalID   = "00000000-0000-0000-0000-000000000000"
	DevPrincipalName = "testusername@constoso.com"
)

// AuthInfo contains identity information for the resolved principal.
//
// Required fields (always populated):
//   - UserID: Unique identifier for the user; partitions all history data
//
// Optional fields (may be empty):
//   - Name: Display name or login of the user
//   - Roles: Role/group memberships
//   - Metadata: Arbitrary key-value pairs for enterprise extensions
//
// Example:
//
//	info := &AuthInfo{
//	    UserID: "7f8e1d2c-9a4b-4c3d-8e5f-6a7b8c9d0e1f",
//	    Name:   "analyst@example.com",
//	    Roles:  []string{"analyst"},
//	    Metadata: NewMetadata().
//	        Set("idp", "aad").
//	        Set("mfa_verified", true),
//	}
type AuthInfo struct {
	// UserID is the unique identifier for the authenticated user.
	// This is the only required field and must never be empty; every
	// conversation and message is partitioned by it.
	UserID string

	// Name is the user's display name or login.
	// May be empty if not provided by the identity provider.
	Name string

	// Roles contains the user's role memberships for authorization decisions.
	Roles []string

	// Metadata holds additional claims from the identity provider.
	// Enterprise implementations can store provider-specific data here
	// without requiring changes to the core struct.
	Metadata Metadata
}

// HasRole checks if the user has a specific role.
//
// This is a convenience method for authorization checks:
//
//	if !authInfo.HasRole("admin") {
//	    return ErrUnauthorized
//	}
func (a *AuthInfo) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IdentityProvider resolves the authenticated principal from request headers.
//
// Implementations must be safe for concurrent use by multiple goroutines.
//
// # Open Source Behavior
//
// The default HeaderIdentityProvider trusts the principal headers injected
// by an identity-aware proxy, and falls back to a fixed development
// principal when they are absent. This allows local deployments to run
// without any authentication infrastructure.
//
// # Enterprise Implementation
//
// Enterprise versions validate bearer tokens directly against identity
// providers like Okta, Auth0, or Entra ID.
//
// Example enterprise implementation:
//
//	type OktaIdentityProvider struct {
//	    client *okta.Client
//	}
//
//	func (p *OktaIdentityProvider) Resolve(ctx context.Context, h http.Header) (*AuthInfo, error) {
//	    claims, err := p.client.VerifyToken(ctx, bearerToken(h))
//	    if err != nil {
//	        return nil, fmt.Errorf("okta validation failed: %w", ErrUnauthorized)
//	    }
//	    return &AuthInfo{UserID: claims.Subject, Name: claims.Email, Roles: claims.Groups}, nil
//	}
type IdentityProvider interface {
	// Resolve extracts and validates the principal for a request.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - headers: The inbound request headers
	//
	// Returns:
	//   - *AuthInfo: Principal information if resolved
	//   - error: ErrUnauthorized (or wrapped) if the request carries no
	//     acceptable identity
	Resolve(ctx context.Context, headers http.Header) (*AuthInfo, error)
}

// HeaderIdentityProvider resolves principals from proxy-injected headers.
//
// When RequireHeaders is false (the default) and no principal header is
// present, Resolve returns the fixed development principal instead of an
// error. Production deployments behind a real proxy should set
// RequireHeaders to true so unauthenticated requests are rejected.
//
// Thread-safe: this implementation has no mutable state.
type HeaderIdentityProvider struct {
	// RequireHeaders rejects requests without a principal ID header
	// instead of falling back to the development principal.
	RequireHeaders bool
}

// Resolve reads the principal headers set by the fronting proxy.
//
// The identity provider name, when present, is recorded under the
// "idp" metadata key.
func (p *HeaderIdentityProvider) Resolve(_ context.Context, headers http.Header) (*AuthInfo, error) {
	id := headers.Get(HeaderPrincipalID)
	if id == "" {
		if p.RequireHeaders {
			return nil, ErrUnauthorized
		}
		return &AuthInfo{
			UserID: DevPrincipalID,
			Name:   DevPrincipalName,
		}, nil
	}

	info := &AuthInfo{
		UserID: id,
		Name:   headers.Get(HeaderPrincipalName),
	}
	if idp := headers.Get(HeaderPrincipalIDP); idp != "" {
		info.Metadata = NewMetadata().Set("idp", idp)
	}
	return info, nil
}

// Compile-time interface compliance check.
var _ IdentityProvider = (*HeaderIdentityProvider)(nil)
