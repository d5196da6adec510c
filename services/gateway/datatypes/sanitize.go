// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "strings"

// SanitizeText strips control characters from stored content before it
// is sent to a client. Newline, carriage return, and tab survive; every
// other rune below 0x20 and DEL is dropped. The result always
// round-trips through JSON encode/decode.
func SanitizeText(s string) string {
	if !strings.ContainsFunc(s, isDisallowedControl) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isDisallowedControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SanitizeErrorText flattens an error message onto a single line so it
// can be emitted as one NDJSON error object or one log record. Newlines
// and carriage returns become spaces; other control characters are
// dropped.
func SanitizeErrorText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteRune(' ')
		case r < 0x20 || r == 0x7f:
			// drop
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func isDisallowedControl(r rune) bool {
	if r == '\n' || r == '\r' || r == '\t' {
		return false
	}
	return r < 0x20 || r == 0x7f
}
