// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

// maxStreamLineBytes bounds one NDJSON line. Envelope lines are small,
// but buffered replies can carry whole messages.
const maxStreamLineBytes = 1 << 20

// StreamResult contains the complete result of processing an NDJSON
// reply stream.
type StreamResult struct {
	// Answer is the concatenated assistant content.
	Answer string

	// Metadata is the conversation correlation block, when the server
	// attached one.
	Metadata *datatypes.HistoryMetadata

	// Model is the model name reported on the first envelope.
	Model string
}

// StreamProcessor consumes one NDJSON reply stream from the gateway.
type StreamProcessor interface {
	// Process reads envelope lines until EOF or an error line. Tokens
	// are rendered as they arrive; the aggregated result is returned.
	// An in-stream error line returns the partial result alongside the
	// error.
	Process(reader io.Reader) (*StreamResult, error)
}

// ndjsonStreamProcessor renders tokens to a writer as they arrive.
//
// Each stream line is a standalone JSON object: either a response
// envelope with a single delta choice, or an error object appended
// after a mid-stream failure.
type ndjsonStreamProcessor struct {
	writer io.Writer
	answer strings.Builder
	result StreamResult
}

// NewStreamProcessor creates a processor that renders to stdout.
func NewStreamProcessor() StreamProcessor {
	return &ndjsonStreamProcessor{writer: os.Stdout}
}

// NewStreamProcessorWithWriter creates a processor with a custom
// writer (for testing and non-terminal output).
func NewStreamProcessorWithWriter(w io.Writer) StreamProcessor {
	return &ndjsonStreamProcessor{writer: w}
}

// Process implements StreamProcessor.
func (p *ndjsonStreamProcessor) Process(reader io.Reader) (*StreamResult, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var envelope datatypes.ResponseEnvelope
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			return p.snapshot(), fmt.Errorf("malformed stream line: %w", err)
		}

		// Error lines carry no choices; probe for the error field.
		if len(envelope.Choices) == 0 {
			var errLine datatypes.ErrorResponse
			if json.Unmarshal([]byte(line), &errLine) == nil && errLine.Error != "" {
				return p.snapshot(), fmt.Errorf("stream error: %s", errLine.Error)
			}
			continue
		}

		p.handleEnvelope(&envelope)
	}
	if err := scanner.Err(); err != nil {
		return p.snapshot(), fmt.Errorf("reading stream: %w", err)
	}

	return p.snapshot(), nil
}

func (p *ndjsonStreamProcessor) handleEnvelope(envelope *datatypes.ResponseEnvelope) {
	if p.result.Model == "" {
		p.result.Model = envelope.Model
	}
	if envelope.HistoryMetadata != nil {
		p.result.Metadata = envelope.HistoryMetadata
	}

	choice := envelope.Choices[0]
	switch {
	case choice.Delta != nil:
		p.emit(choice.Delta.Content)
	case len(choice.Messages) > 0:
		// Buffered reply: render the final assistant message.
		last := choice.Messages[len(choice.Messages)-1]
		if last.Role == datatypes.RoleAssistant {
			p.emit(last.Content)
		}
	}
}

func (p *ndjsonStreamProcessor) emit(token string) {
	if token == "" {
		return
	}
	p.answer.WriteString(token)
	fmt.Fprint(p.writer, token)
}

func (p *ndjsonStreamProcessor) snapshot() *StreamResult {
	result := p.result
	result.Answer = p.answer.String()
	return &result
}
