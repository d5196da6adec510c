// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the chat gateway.
//
// # Authentication Flow
//
// The gateway runs behind an identity-aware proxy (App Service
// EasyAuth, oauth2-proxy, or compatible) that injects principal
// headers. The identity middleware resolves those headers through the
// configured IdentityProvider and stores the resulting AuthInfo in the
// Gin context for downstream handlers.
//
//	Request
//	   │
//	   ▼
//	IdentityMiddleware
//	   │
//	   ├─► provider.Resolve(ctx, r.Header)
//	   │
//	   └─► Store AuthInfo in context
//	           │
//	           ▼
//	       Handler (retrieves via GetAuthInfo)
//
// # Open Source Behavior
//
// The default HeaderIdentityProvider falls back to a fixed development
// principal when no proxy headers are present, so the gateway works
// out of the box with no authentication infrastructure.
//
// # Enterprise Behavior
//
// Enterprise implementations validate bearer tokens directly against
// identity providers (Okta, Auth0, Entra ID) and return real identity
// information.
package middleware

import (
	"errors"
	"net/http"

	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/gin-gonic/gin"
)

// =============================================================================
// Context Keys
// =============================================================================

// authInfoKey is the context key for storing AuthInfo.
// Using a dedicated key prevents collisions with other context values.
const authInfoKey = "aleutian_auth_info"

// =============================================================================
// Context Helpers
// =============================================================================

// SetAuthInfo stores the authenticated user info in the Gin context.
//
// # Description
//
// Called by IdentityMiddleware after successful principal resolution.
// The stored AuthInfo can be retrieved by handlers via GetAuthInfo.
//
// # Thread Safety
//
// Safe to call concurrently (Gin context is request-scoped).
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo retrieves the authenticated user info from the Gin context.
//
// # Description
//
// Called by handlers to access the authenticated principal. Returns nil
// if no AuthInfo is present (request not authenticated), so handlers
// must treat nil as an internal error: the identity middleware runs
// before every handler that calls this.
//
// # Thread Safety
//
// Safe to call concurrently (Gin context is request-scoped).
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	if info, exists := c.Get(authInfoKey); exists {
		if authInfo, ok := info.(*extensions.AuthInfo); ok {
			return authInfo
		}
	}
	return nil
}

// =============================================================================
// Identity Middleware
// =============================================================================

// IdentityMiddleware creates a Gin middleware that resolves the request
// principal.
//
// # Description
//
// Passes the inbound headers to the provider and stores the resulting
// AuthInfo in the context. Requests the provider rejects are aborted
// with 401 before reaching any handler.
//
// # Inputs
//
//   - provider: IdentityProvider to resolve principals. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin
//
// # Examples
//
//	authed := router.Group("/")
//	authed.Use(middleware.IdentityMiddleware(opts.Identity))
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func IdentityMiddleware(provider extensions.IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		authInfo, err := provider.Resolve(c.Request.Context(), c.Request.Header)
		if err != nil {
			if errors.Is(err, extensions.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
			return
		}

		SetAuthInfo(c, authInfo)
		c.Next()
	}
}
