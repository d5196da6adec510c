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
	"io"
	"net/http"
	"strings"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/gin-gonic/gin"
)

// maxDocumentBytes caps a single uploaded document.
const maxDocumentBytes = 10 * 1024 * 1024 // 10MB

// IngestDocument handles POST /documents: split the supplied text into
// chunks and index them for retrieval augmentation.
//
// # Description
//
// Accepts either a JSON body `{"source", "content"}` or a multipart
// form with a `file` field (the filename becomes the source). Returns
// the number of chunks written.
func (h *Handler) IngestDocument(c *gin.Context) {
	if h.ingestor == nil {
		c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
			Error: "document store is not configured",
		})
		return
	}

	var req datatypes.DocumentIngestRequest
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			respondValidation(c, observability.EndpointConversation, "multipart request must carry a file field")
			return
		}
		if fileHeader.Size > maxDocumentBytes {
			respondValidation(c, observability.EndpointConversation, "document exceeds 10MB")
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			respondValidation(c, observability.EndpointConversation, "failed to open uploaded file")
			return
		}
		defer file.Close()
		content, err := io.ReadAll(io.LimitReader(file, maxDocumentBytes+1))
		if err != nil || int64(len(content)) > maxDocumentBytes {
			respondValidation(c, observability.EndpointConversation, "failed to read uploaded file")
			return
		}
		req = datatypes.DocumentIngestRequest{
			Source:  fileHeader.Filename,
			Content: string(content),
		}
	} else if isJSONRequest(c) {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, observability.EndpointConversation, "malformed request body")
			return
		}
	} else {
		c.JSON(http.StatusUnsupportedMediaType, datatypes.ErrorResponse{
			Error: "request must be json or multipart/form-data",
		})
		return
	}

	if err := req.Validate(); err != nil {
		respondError(c, observability.EndpointConversation, &datatypes.ValidationError{Reason: "source and content are required"})
		return
	}
	if len(req.Content) > maxDocumentBytes {
		respondValidation(c, observability.EndpointConversation, "document exceeds 10MB")
		return
	}

	chunks, err := h.ingestor.Ingest(c.Request.Context(), req.Source, req.Content)
	if err != nil {
		respondError(c, observability.EndpointConversation, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"source": req.Source,
		"chunks": chunks,
	})
}
