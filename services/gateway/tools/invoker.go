// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.gateway.tools")

const defaultInvokeTimeout = 2 * time.Minute

// Config parameterizes the tool executor endpoints.
type Config struct {
	// Enabled gates all function calling. When false the catalog stays
	// empty and Invoke is a no-op.
	Enabled bool

	// ToolsBaseURL is the catalog metadata endpoint (GET).
	ToolsBaseURL string

	// ToolBaseURL is the invocation endpoint (POST).
	ToolBaseURL string

	// Key is the function key sent as the code query parameter on both
	// endpoints.
	Key string

	// RequestTimeout bounds one invocation round trip. Zero selects the
	// default.
	RequestTimeout time.Duration
}

// Invoker executes named tools. The completion orchestrator consumes
// this interface; tests substitute scripted fakes.
type Invoker interface {
	// Invoke runs one tool with its JSON-encoded arguments and returns
	// the executor's textual result. It returns UnknownToolError for
	// names outside the catalog; callers skip those silently.
	Invoke(ctx context.Context, name, argumentsJSON string) (string, error)

	// Enabled reports whether function calling is active.
	Enabled() bool

	// Catalog returns the registered tool catalog.
	Catalog() *Catalog
}

// invokeBody is the wire shape of one invocation request.
type invokeBody struct {
	ToolName      string `json:"tool_name"`
	ToolArguments any    `json:"tool_arguments"`
}

// HTTPInvoker calls the external function-execution endpoint.
type HTTPInvoker struct {
	cfg     Config
	client  *http.Client
	catalog *Catalog
}

// NewInvoker builds an invoker over an already-fetched catalog.
func NewInvoker(cfg Config, catalog *Catalog) *HTTPInvoker {
	if catalog == nil {
		catalog = EmptyCatalog()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultInvokeTimeout
	}
	return &HTTPInvoker{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		catalog: catalog,
	}
}

// LoadInvoker fetches the catalog and builds the invoker over it. A
// fetch failure is logged and yields an invoker with an empty catalog,
// so a flaky executor degrades function calling instead of blocking
// startup.
func LoadInvoker(ctx context.Context, cfg Config) *HTTPInvoker {
	if !cfg.Enabled {
		return NewInvoker(cfg, EmptyCatalog())
	}

	fetched, err := FetchCatalog(ctx, nil, cfg.ToolsBaseURL, cfg.Key)
	if err != nil {
		slog.Error("Failed to fetch tool catalog, continuing without tools",
			"endpoint", redactURL(cfg.ToolsBaseURL), "error", err)
		return NewInvoker(cfg, EmptyCatalog())
	}

	catalog := NewCatalog(fetched)
	slog.Info("Loaded tool catalog", "tools", catalog.Len(), "names", catalog.Names())
	return NewInvoker(cfg, catalog)
}

// Enabled implements Invoker.
func (h *HTTPInvoker) Enabled() bool {
	return h.cfg.Enabled && h.catalog.Len() > 0
}

// Catalog implements Invoker.
func (h *HTTPInvoker) Catalog() *Catalog {
	return h.catalog
}

// Invoke implements Invoker.
func (h *HTTPInvoker) Invoke(ctx context.Context, name, argumentsJSON string) (string, error) {
	if !h.cfg.Enabled {
		return "", nil
	}

	ctx, span := tracer.Start(ctx, "tools.Invoke")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", name))

	if !h.catalog.Has(name) {
		slog.Warn("Model requested a tool outside the catalog, skipping", "tool", name)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordToolInvocation(name, observability.ToolStatusSkippedUnknown)
		}
		return "", &datatypes.UnknownToolError{Tool: name}
	}

	var parsedArgs any
	if err := json.Unmarshal([]byte(argumentsJSON), &parsedArgs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("tool %s arguments are not valid JSON: %w", name, err)
	}

	endpoint, err := authenticatedURL(h.cfg.ToolBaseURL, h.cfg.Key)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(invokeBody{ToolName: name, ToolArguments: parsedArgs})
	if err != nil {
		return "", fmt.Errorf("failed to marshal tool invocation body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create tool invocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("Invoking tool", "tool", name)
	resp, err := h.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.recordOutcome(name, observability.ToolStatusError)
		return "", &datatypes.UpstreamError{Operation: "tool invocation", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.recordOutcome(name, observability.ToolStatusError)
		return "", fmt.Errorf("failed to read tool %s response: %w", name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("tool executor %s returned status %d", redactURL(h.cfg.ToolBaseURL), resp.StatusCode)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.recordOutcome(name, observability.ToolStatusError)
		return "", &datatypes.UpstreamError{
			Operation:  "tool invocation",
			StatusCode: resp.StatusCode,
			Err:        err,
		}
	}

	h.recordOutcome(name, observability.ToolStatusSuccess)
	slog.Debug("Tool invocation succeeded", "tool", name, "result_bytes", len(body))
	return string(body), nil
}

func (h *HTTPInvoker) recordOutcome(name, status string) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordToolInvocation(name, status)
	}
}
