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
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

// ContentTypeNDJSON is the content type of streamed completion
// responses: one standalone JSON object per line.
const ContentTypeNDJSON = "application/json-lines"

// NDJSONWriter streams newline-delimited JSON objects over an HTTP
// response.
//
// # Description
//
// Each WriteLine call marshals one value, appends a newline, and
// flushes so the client sees the line immediately instead of waiting
// for proxy or transport buffers to fill. Headers are written lazily on
// the first line; a request that fails before producing any output can
// still answer with an ordinary JSON error status.
//
// # Thread Safety
//
// Safe for concurrent use; writes are serialized by an internal mutex
// so interleaved lines never corrupt each other.
type NDJSONWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewNDJSONWriter wraps an HTTP response for NDJSON streaming.
func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	flusher, _ := w.(http.Flusher)
	return &NDJSONWriter{w: w, flusher: flusher}
}

// Started reports whether any line has been written. Once true, the
// status and headers are on the wire and error handling must switch to
// an in-stream error line.
func (n *NDJSONWriter) Started() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started
}

// WriteLine emits one JSON object as a line and flushes it.
func (n *NDJSONWriter) WriteLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode stream line: %w", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		n.w.Header().Set("Content-Type", ContentTypeNDJSON)
		// Disable proxy buffering so lines reach the browser as they
		// are produced.
		n.w.Header().Set("X-Accel-Buffering", "no")
		n.w.Header().Set("Cache-Control", "no-cache")
		n.w.WriteHeader(http.StatusOK)
		n.started = true
	}

	if _, err := n.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write stream line: %w", err)
	}
	if n.flusher != nil {
		n.flusher.Flush()
	}
	return nil
}

// WriteError appends a final error line. Best effort: by the time a
// mid-stream failure happens the client may already be gone.
func (n *NDJSONWriter) WriteError(message string) {
	_ = n.WriteLine(datatypes.ErrorResponse{Error: datatypes.SanitizeErrorText(message)})
}
