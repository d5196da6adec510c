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
	"time"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

// maxTitleWidth truncates long conversation titles in list output.
const maxTitleWidth = 48

// RenderConversationList writes one conversation per line, newest
// first (the server already orders by updatedAt descending).
func RenderConversationList(w io.Writer, conversations []datatypes.Conversation) {
	for _, conv := range conversations {
		title := truncate(conv.Title, maxTitleWidth)
		updated := relativeTime(conv.UpdatedAt)

		if IsPlain() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", conv.ID, updated, title)
			continue
		}
		fmt.Fprintf(w, "%s  %s  %s\n",
			Styles.Muted.Render(shortID(conv.ID)),
			Styles.Subtitle.Render(fmt.Sprintf("%-14s", updated)),
			title)
	}
}

// RenderTranscript writes a stored conversation as a readable
// transcript. Tool traffic is summarized rather than dumped.
func RenderTranscript(w io.Writer, messages []datatypes.ChatMessage) {
	for _, msg := range messages {
		switch msg.Role {
		case datatypes.RoleUser:
			fmt.Fprintf(w, "%s %s\n", roleLabel("you", Styles.UserLabel), msg.Content)
		case datatypes.RoleAssistant:
			if msg.Content == "" && msg.FunctionCall != nil {
				fmt.Fprintf(w, "%s %s\n",
					roleLabel("tool", Styles.ToolLabel),
					fmt.Sprintf("called %s", msg.FunctionCall.Name))
				continue
			}
			fmt.Fprintf(w, "%s %s\n", roleLabel("assistant", Styles.AssistantLabel), msg.Content)
		case datatypes.RoleTool:
			fmt.Fprintf(w, "%s %s\n",
				roleLabel("tool", Styles.ToolLabel),
				truncate(msg.Content, maxTitleWidth))
		default:
			// System and unknown roles stay hidden in transcripts.
		}
		fmt.Fprintln(w)
	}
}

func roleLabel(name string, style interface{ Render(...string) string }) string {
	label := name + ":"
	if IsPlain() {
		return label
	}
	return style.Render(label)
}

// truncate shortens s to width runes with an ellipsis.
func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}

// relativeTime renders an RFC3339 timestamp as a coarse age ("3h ago").
// Unparseable input is returned verbatim.
func relativeTime(stamp string) string {
	t, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return stamp
	}
	age := time.Since(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	case age < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
