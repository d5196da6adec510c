// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/gin-gonic/gin"
)

// statusForError maps the error taxonomy onto HTTP statuses.
//
// UpstreamError relays the provider's status when one exists so the UI
// can distinguish throttling (429) from hard failure; transport-level
// upstream failures and everything unclassified map to 500.
func statusForError(err error) int {
	switch {
	case datatypes.IsValidation(err):
		return http.StatusBadRequest
	case datatypes.IsNotFound(err):
		return http.StatusNotFound
	case datatypes.IsStoreUnavailable(err):
		return http.StatusInternalServerError
	default:
		if status := datatypes.UpstreamStatus(err); status != 0 {
			return status
		}
		return http.StatusInternalServerError
	}
}

// errorCodeFor categorizes an error for metrics labeling.
func errorCodeFor(err error) observability.ErrorCode {
	var upstream *datatypes.UpstreamError
	var config *datatypes.ConfigurationError
	switch {
	case datatypes.IsValidation(err):
		return observability.ErrorCodeValidation
	case datatypes.IsNotFound(err):
		return observability.ErrorCodeNotFound
	case datatypes.IsStoreUnavailable(err):
		return observability.ErrorCodeStoreUnavailable
	case errors.As(err, &upstream):
		return observability.ErrorCodeUpstream
	case errors.As(err, &config):
		return observability.ErrorCodeInternal
	default:
		return observability.ErrorCodeInternal
	}
}

// respondError writes the uniform error body and records the failure.
func respondError(c *gin.Context, endpoint observability.Endpoint, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "endpoint", string(endpoint), "status", status, "error", err)
	} else {
		slog.Debug("Request rejected", "endpoint", string(endpoint), "status", status, "error", err)
	}

	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(endpoint, errorCodeFor(err))
		m.RecordRequest(endpoint, false)
	}

	c.JSON(status, datatypes.ErrorResponse{Error: datatypes.SanitizeErrorText(err.Error())})
}

// respondValidation rejects a malformed request with 400 and a direct
// reason, bypassing error wrapping for the common bind failures.
func respondValidation(c *gin.Context, endpoint observability.Endpoint, reason string) {
	respondError(c, endpoint, &datatypes.ValidationError{Reason: reason})
}
