// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools manages the function-calling surface of the gateway:
// the tool catalog fetched from the executor service at startup, and
// the invoker that runs individual tool calls against it.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"

	openai "github.com/sashabaranov/go-openai"
)

// Tool is one entry of the executor's catalog, in the provider's
// function-tool shape so it can be attached to completion requests
// verbatim.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction describes the callable the model may request.
type ToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToOpenAI converts the catalog entry into the SDK request shape.
func (t Tool) ToOpenAI() openai.Tool {
	return openai.Tool{
		Type: openai.ToolType(t.Type),
		Function: &openai.FunctionDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		},
	}
}

// =============================================================================
// Catalog
// =============================================================================

// Catalog is the set of tools the gateway will execute. It is built
// once during startup and read concurrently by every request without
// locking; nothing mutates it afterwards.
type Catalog struct {
	tools  []Tool
	openAI []openai.Tool
	names  map[string]struct{}
}

// NewCatalog builds an immutable catalog from the given tools.
func NewCatalog(tools []Tool) *Catalog {
	c := &Catalog{
		tools:  make([]Tool, len(tools)),
		openAI: make([]openai.Tool, len(tools)),
		names:  make(map[string]struct{}, len(tools)),
	}
	copy(c.tools, tools)
	for i, t := range tools {
		c.openAI[i] = t.ToOpenAI()
		c.names[t.Function.Name] = struct{}{}
	}
	return c
}

// EmptyCatalog returns a catalog with no tools. Invocations against it
// all resolve to unknown.
func EmptyCatalog() *Catalog {
	return NewCatalog(nil)
}

// Has reports whether name is a registered tool.
func (c *Catalog) Has(name string) bool {
	_, ok := c.names[name]
	return ok
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	return len(c.tools)
}

// Names returns the registered tool names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.names))
	for name := range c.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OpenAITools returns the catalog in the SDK request shape. Callers
// must not mutate the returned slice.
func (c *Catalog) OpenAITools() []openai.Tool {
	return c.openAI
}

// =============================================================================
// Catalog Fetch
// =============================================================================

// FetchCatalog retrieves the tool definitions from the executor's
// metadata endpoint ({baseURL}?code={key}). The key authenticates the
// call and never appears in errors or logs.
func FetchCatalog(ctx context.Context, client *http.Client, baseURL, key string) ([]Tool, error) {
	if client == nil {
		client = http.DefaultClient
	}

	endpoint, err := authenticatedURL(baseURL, key)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool catalog request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool catalog request to %s failed: %w", redactURL(baseURL), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool catalog response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool catalog endpoint %s returned status %d", redactURL(baseURL), resp.StatusCode)
	}

	var tools []Tool
	if err := json.Unmarshal(body, &tools); err != nil {
		return nil, fmt.Errorf("failed to parse tool catalog: %w", err)
	}
	return tools, nil
}

// authenticatedURL appends the function key as the code query
// parameter.
func authenticatedURL(baseURL, key string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid tool endpoint URL: %w", err)
	}
	q := u.Query()
	q.Set("code", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redactURL strips the query string so the function key cannot leak
// into logs or error chains.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable url)"
	}
	u.RawQuery = ""
	return u.String()
}
