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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianChat/pkg/extensions"
	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

// defaultRequestTimeout bounds management calls. Chat streams carry no
// client-side deadline; the server owns stream lifetime.
const defaultRequestTimeout = 30 * time.Second

// Client speaks the gateway's HTTP protocol.
//
// # Description
//
// All requests carry the principal id header the gateway's identity
// middleware resolves. Management calls (list, read, rename, delete)
// decode JSON bodies; Generate hands back the raw NDJSON stream for
// the ux stream processor.
//
// # Thread Safety
//
// Safe for concurrent use; state is read-only after construction.
type Client struct {
	baseURL string
	userID  string
	http    *http.Client
}

// NewClient builds a gateway client for the given server and principal.
func NewClient(baseURL, userID string) *Client {
	return &Client{
		baseURL: baseURL,
		userID:  userID,
		http:    &http.Client{},
	}
}

// APIError is a non-2xx gateway reply.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// Generate starts one chat exchange through POST /history/generate and
// returns the NDJSON reply stream. The caller must close the stream.
func (c *Client) Generate(ctx context.Context, req datatypes.HistoryChatRequest) (io.ReadCloser, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/history/generate", req)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling gateway: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp.Body, nil
}

// Update persists the assistant reply through POST /history/update.
func (c *Client) Update(ctx context.Context, req datatypes.HistoryChatRequest) error {
	return c.call(ctx, http.MethodPost, "/history/update", req, nil)
}

// ListConversations fetches one page of the caller's conversations,
// newest activity first. A missing-history 404 maps to an empty list.
func (c *Client) ListConversations(ctx context.Context, offset int) ([]datatypes.Conversation, error) {
	var conversations []datatypes.Conversation
	path := fmt.Sprintf("/history/list?offset=%d", offset)
	err := c.call(ctx, http.MethodGet, path, nil, &conversations)

	var apiErr *APIError
	if err != nil {
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return conversations, nil
}

// ReadConversation fetches the stored transcript of one conversation.
func (c *Client) ReadConversation(ctx context.Context, conversationID string) (*datatypes.ConversationMessagesResponse, error) {
	var out datatypes.ConversationMessagesResponse
	err := c.call(ctx, http.MethodPost, "/history/read",
		datatypes.ConversationRef{ConversationID: conversationID}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameConversation retitles one conversation.
func (c *Client) RenameConversation(ctx context.Context, conversationID, title string) error {
	return c.call(ctx, http.MethodPost, "/history/rename",
		datatypes.RenameRequest{ConversationID: conversationID, Title: title}, nil)
}

// DeleteConversation removes one conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.call(ctx, http.MethodDelete, "/history/delete",
		datatypes.ConversationRef{ConversationID: conversationID}, nil)
}

// DeleteAllConversations removes every conversation the principal owns.
func (c *Client) DeleteAllConversations(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, "/history/delete_all", nil, nil)
}

// call performs one management round trip with a bounded deadline.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding gateway reply: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(extensions.HeaderPrincipalID, c.userID)
	return req, nil
}

// decodeAPIError turns a non-2xx reply into an APIError, preserving
// the server's error text when the body is a JSON error object.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err == nil {
		var body datatypes.ErrorResponse
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			apiErr.Message = body.Error
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	}
	return apiErr
}
