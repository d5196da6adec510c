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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	title/<conversation-id> -> conversation title
//	last                    -> id of the most recent conversation
const (
	cacheTitlePrefix = "title/"
	cacheLastKey     = "last"
)

// ConversationCache is a local BadgerDB cache of conversation titles
// and the most recently used conversation.
//
// # Description
//
// The cache lets `chat --resume last` and title display work without
// a round trip. It is advisory only; the gateway remains the source
// of truth, and a stale or missing cache never blocks a command.
//
// # Thread Safety
//
// Safe for concurrent use; BadgerDB transactions handle isolation.
type ConversationCache struct {
	db *badger.DB
}

// OpenCache opens (or creates) the conversation cache at dir. An empty
// dir selects ALEUTIAN_CACHE_DIR, then ~/.aleutian/chat-cache.
func OpenCache(dir string) (*ConversationCache, error) {
	if dir == "" {
		dir = os.Getenv("ALEUTIAN_CACHE_DIR")
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving cache dir: %w", err)
		}
		dir = filepath.Join(home, ".aleutian", "chat-cache")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithSyncWrites(false)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return &ConversationCache{db: db}, nil
}

// RememberConversation stores the conversation's title and marks it as
// the most recent one.
func (c *ConversationCache) RememberConversation(conversationID, title string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		if title != "" {
			key := []byte(cacheTitlePrefix + conversationID)
			if err := txn.Set(key, []byte(title)); err != nil {
				return err
			}
		}
		return txn.Set([]byte(cacheLastKey), []byte(conversationID))
	})
}

// Title returns the cached title for a conversation, or "" when the
// cache has none.
func (c *ConversationCache) Title(conversationID string) string {
	var title string
	_ = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheTitlePrefix + conversationID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			title = string(val)
			return nil
		})
	})
	return title
}

// LastConversation returns the id of the most recently used
// conversation, or "" when none is recorded.
func (c *ConversationCache) LastConversation() string {
	var id string
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheLastKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return ""
	}
	return id
}

// Forget removes one conversation from the cache. Clearing the "last"
// pointer when it refers to the removed conversation keeps resume from
// targeting a deleted record.
func (c *ConversationCache) Forget(conversationID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(cacheTitlePrefix + conversationID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		item, err := txn.Get([]byte(cacheLastKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		var last string
		if err := item.Value(func(val []byte) error {
			last = string(val)
			return nil
		}); err != nil {
			return err
		}
		if last == conversationID {
			return txn.Delete([]byte(cacheLastKey))
		}
		return nil
	})
}

// Clear drops every cached entry.
func (c *ConversationCache) Clear() error {
	return c.db.DropAll()
}

// Close releases the cache database.
func (c *ConversationCache) Close() error {
	return c.db.Close()
}

// openCacheQuiet opens the cache, returning nil on failure. Cache
// problems degrade features instead of failing commands.
func openCacheQuiet() *ConversationCache {
	cache, err := OpenCache("")
	if err != nil {
		return nil
	}
	return cache
}
