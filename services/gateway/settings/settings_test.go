// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "frontend.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// TestLoad_LayersOverDefaults verifies a partial file keeps defaults
// for the fields it omits.
func TestLoad_LayersOverDefaults(t *testing.T) {
	path := writeSettings(t, t.TempDir(), "ui:\n  title: Contoso Chat\nfeedback_enabled: false\n")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Contoso Chat", loaded.UI.Title)
	assert.False(t, loaded.FeedbackEnabled)
	// Untouched default survives.
	assert.Equal(t, "Start chatting", loaded.UI.ChatTitle)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	loaded, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
	assert.Equal(t, Defaults(), loaded)
}

func TestLoad_MalformedFileReturnsDefaults(t *testing.T) {
	path := writeSettings(t, t.TempDir(), "ui: [not a mapping\n")
	loaded, err := Load(path)
	assert.Error(t, err)
	assert.Equal(t, Defaults(), loaded)
}

// TestWatcher_EmptyPathServesDefaults verifies the unconfigured case
// needs no special handling by callers.
func TestWatcher_EmptyPathServesDefaults(t *testing.T) {
	w, err := NewWatcher("")
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, Defaults(), w.Get())
	assert.NoError(t, w.Run(context.Background()))
}

// TestWatcher_HotReload verifies a file rewrite is picked up.
func TestWatcher_HotReload(t *testing.T) {
	dir := t.TempDir()
	path := writeSettings(t, dir, "ui:\n  title: Before\n")

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()
	require.Equal(t, "Before", w.Get().UI.Title)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	writeSettings(t, dir, "ui:\n  title: After\n")

	require.Eventually(t, func() bool {
		return w.Get().UI.Title == "After"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}
