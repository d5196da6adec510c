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
	"net/http"

	"github.com/AleutianAI/AleutianChat/services/gateway/settings"
	"github.com/gin-gonic/gin"
)

// FrontendSettings handles GET /frontend_settings: the hot-reloaded UI
// configuration blob.
func (h *Handler) FrontendSettings(c *gin.Context) {
	if h.settings == nil {
		c.JSON(http.StatusOK, settings.Defaults())
		return
	}
	c.JSON(http.StatusOK, h.settings.Get())
}

// Healthz handles GET /healthz: process liveness only, no dependency
// probes (those live behind /history/ensure).
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
