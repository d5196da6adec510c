// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Rate limiter defaults. Completions are the expensive path; the
// defaults allow a burst of UI retries while capping sustained load
// per principal.
const (
	DefaultRequestsPerSecond = 5
	DefaultBurst             = 10

	// limiterIdleTTL bounds memory: per-user limiters unused for this
	// long are evicted.
	limiterIdleTTL = 10 * time.Minute
)

// RateLimiter enforces a per-user token bucket.
//
// # Description
//
// Each principal gets an independent bucket keyed by AuthInfo.UserID.
// Requests that exceed the bucket are rejected with 429 rather than
// queued, since a queued completion would hold an upstream slot.
//
// # Thread Safety
//
// Safe for concurrent use. The limiter map is guarded by a mutex;
// rate.Limiter itself is concurrency-safe.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter with the given per-user rate
// and burst. Non-positive values fall back to the defaults.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &RateLimiter{
		limiters: make(map[string]*userLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether the given user may proceed, consuming one
// token if so.
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	ul, ok := rl.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[userID] = ul
		rl.evictIdleLocked(now)
	}
	ul.lastSeen = now
	return ul.limiter.Allow()
}

// evictIdleLocked drops limiters that have been idle past the TTL.
// Called with rl.mu held, only on the new-user path so steady traffic
// pays nothing.
func (rl *RateLimiter) evictIdleLocked(now time.Time) {
	for id, ul := range rl.limiters {
		if now.Sub(ul.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, id)
		}
	}
}

// Middleware returns a Gin middleware enforcing the per-user limit.
//
// Must run after IdentityMiddleware; requests without a resolved
// principal are limited under a shared anonymous bucket.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := "anonymous"
		if info := GetAuthInfo(c); info != nil {
			userID = info.UserID
		}
		if !rl.Allow(userID) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
