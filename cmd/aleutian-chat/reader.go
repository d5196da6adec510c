// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// InputReader abstracts reading one line of user input so the chat
// loop can be tested without a terminal.
type InputReader interface {
	// ReadLine blocks until the user submits a line. Returns io.EOF
	// when input is exhausted (Ctrl+D, closed pipe).
	ReadLine() (string, error)
}

// =============================================================================
// StdinReader (non-TTY fallback)
// =============================================================================

// StdinReader reads plain lines from stdin. Used for piped input and
// CI where the interactive editor cannot run.
type StdinReader struct {
	scanner *bufio.Scanner
}

// NewStdinReader creates a basic line reader over stdin.
func NewStdinReader() *StdinReader {
	return &StdinReader{scanner: bufio.NewScanner(os.Stdin)}
}

// ReadLine implements InputReader.
func (r *StdinReader) ReadLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(r.scanner.Text()), nil
}

// =============================================================================
// InteractiveReader (bubbletea textinput)
// =============================================================================

// InteractiveReader reads lines with a bubbletea textinput: line
// editing plus up/down history navigation.
//
// # Limitations
//
//   - Falls back to StdinReader for non-TTY stdin
//   - Terminal must support ANSI escape codes
type InteractiveReader struct {
	history    []string
	maxHistory int
	prompt     string
}

// NewInteractiveReader creates an interactive reader with history, or
// a StdinReader when stdin is not a terminal.
func NewInteractiveReader(maxHistory int) InputReader {
	fd := os.Stdin.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return NewStdinReader()
	}
	return &InteractiveReader{
		history:    make([]string, 0, maxHistory),
		maxHistory: maxHistory,
		prompt:     "> ",
	}
}

// ReadLine implements InputReader.
func (r *InteractiveReader) ReadLine() (string, error) {
	ti := textinput.New()
	ti.Prompt = r.prompt
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = 80

	m := lineModel{
		textInput:    ti,
		history:      r.history,
		historyIndex: -1,
	}

	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}
	result, ok := finalModel.(lineModel)
	if !ok {
		return "", fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}

	if result.cancelled && result.textInput.Value() == "" {
		return "", io.EOF
	}

	line := strings.TrimSpace(result.textInput.Value())
	if line != "" {
		r.remember(line)
	}
	return line, nil
}

func (r *InteractiveReader) remember(line string) {
	if len(r.history) > 0 && r.history[len(r.history)-1] == line {
		return
	}
	r.history = append(r.history, line)
	if len(r.history) > r.maxHistory {
		r.history = r.history[1:]
	}
}

// lineModel is the bubbletea model for one line of input.
type lineModel struct {
	textInput    textinput.Model
	history      []string
	historyIndex int
	currentInput string
	done         bool
	cancelled    bool
}

// Init implements tea.Model.
func (m lineModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m lineModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit

		case tea.KeyCtrlC:
			m.textInput.SetValue("")
			m.done = true
			return m, tea.Quit

		case tea.KeyCtrlD:
			m.cancelled = true
			m.textInput.SetValue("")
			m.done = true
			return m, tea.Quit

		case tea.KeyUp:
			if len(m.history) == 0 {
				return m, nil
			}
			if m.historyIndex == -1 {
				m.currentInput = m.textInput.Value()
				m.historyIndex = len(m.history) - 1
			} else if m.historyIndex > 0 {
				m.historyIndex--
			}
			m.textInput.SetValue(m.history[m.historyIndex])
			m.textInput.CursorEnd()
			return m, nil

		case tea.KeyDown:
			if m.historyIndex == -1 {
				return m, nil
			}
			if m.historyIndex < len(m.history)-1 {
				m.historyIndex++
				m.textInput.SetValue(m.history[m.historyIndex])
			} else {
				m.historyIndex = -1
				m.textInput.SetValue(m.currentInput)
			}
			m.textInput.CursorEnd()
			return m, nil
		}
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m lineModel) View() string {
	if m.done {
		return ""
	}
	return m.textInput.View()
}

// =============================================================================
// MockReader (testing)
// =============================================================================

// MockReader returns scripted inputs in order, then io.EOF.
type MockReader struct {
	inputs []string
	index  int
}

// NewMockReader creates a reader over the given scripted inputs.
func NewMockReader(inputs ...string) *MockReader {
	return &MockReader{inputs: inputs}
}

// ReadLine implements InputReader.
func (r *MockReader) ReadLine() (string, error) {
	if r.index >= len(r.inputs) {
		return "", io.EOF
	}
	line := r.inputs[r.index]
	r.index++
	return line, nil
}
