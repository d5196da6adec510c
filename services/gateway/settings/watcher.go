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
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher serves the current frontend settings snapshot and hot-reloads
// the backing file when it changes.
//
// # Thread Safety
//
// Get is safe for concurrent use; Run is driven by a single goroutine.
type Watcher struct {
	mu      sync.RWMutex
	current FrontendSettings
	path    string
	fs      *fsnotify.Watcher
}

// NewWatcher loads the file once and prepares the filesystem watch.
// With an empty path the watcher serves static defaults and Run returns
// immediately, so callers need no special case.
func NewWatcher(path string) (*Watcher, error) {
	w := &Watcher{current: Defaults(), path: path}
	if path == "" {
		return w, nil
	}

	loaded, err := Load(path)
	if err != nil {
		// A missing or malformed file falls back to defaults; the
		// watch still starts so a later fix is picked up.
		slog.Warn("Failed to load frontend settings, serving defaults", "path", path, "error", err)
	} else {
		w.current = loaded
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory, not the file: editors and configmap mounts
	// replace the file, which would silently end a file-level watch.
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, err
	}
	w.fs = fs
	return w, nil
}

// Get returns the current settings snapshot.
func (w *Watcher) Get() FrontendSettings {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.fs == nil {
		return nil
	}
	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			loaded, err := Load(w.path)
			if err != nil {
				slog.Warn("Frontend settings reload failed, keeping previous", "error", err)
				continue
			}
			w.mu.Lock()
			w.current = loaded
			w.mu.Unlock()
			slog.Info("Frontend settings reloaded", "path", w.path)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Settings watcher error", "error", err)
		}
	}
}

// Close stops the filesystem watch.
func (w *Watcher) Close() error {
	if w.fs == nil {
		return nil
	}
	return w.fs.Close()
}
