// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// HeaderConfig groups the optional parameters for the chat header.
//
// # Fields
//
//   - ServerURL: Required. Gateway base URL.
//   - Model: Model name reported by the server. May be empty until the
//     first exchange.
//   - ConversationID: Identifier of the resumed conversation. Empty for
//     new sessions.
//   - Title: Conversation title. Empty until the server mints one.
type HeaderConfig struct {
	ServerURL      string
	Model          string
	ConversationID string
	Title          string
}

// Header writes the chat session banner.
func Header(w io.Writer, cfg HeaderConfig) {
	var lines []string
	lines = append(lines, fmt.Sprintf("server  %s", cfg.ServerURL))
	if cfg.Model != "" {
		lines = append(lines, fmt.Sprintf("model   %s", cfg.Model))
	}
	if cfg.ConversationID != "" {
		title := cfg.Title
		if title == "" {
			title = "(untitled)"
		}
		lines = append(lines, fmt.Sprintf("resume  %s  %s", shortID(cfg.ConversationID), title))
	}
	content := strings.Join(lines, "\n")

	if IsPlain() {
		fmt.Fprintf(w, "Aleutian Chat\n%s\n", content)
		return
	}
	banner := Styles.Title.Render("⚓ Aleutian Chat")
	fmt.Fprintln(w, Styles.Box.Render(banner+"\n"+Styles.Muted.Render(content)))
}

// SessionStats aggregates metrics from a chat session for display when
// the session ends.
type SessionStats struct {
	// Exchanges counts completed request/reply round trips.
	Exchanges int

	// Characters counts assistant output characters received.
	Characters int

	// Duration is the wall-clock session length.
	Duration time.Duration
}

// Render writes the end-of-session summary.
func (s SessionStats) Render(w io.Writer) {
	if s.Exchanges == 0 {
		return
	}
	line := fmt.Sprintf("%d exchanges · %d chars · %s",
		s.Exchanges, s.Characters, s.Duration.Round(time.Second))
	if IsPlain() {
		fmt.Fprintf(w, "SESSION: %s\n", line)
		return
	}
	fmt.Fprintln(w, Styles.Muted.Render(line))
}

// shortID abbreviates a UUID for display.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
