// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the gateway.
//
// # Description
//
// This package implements Prometheus metrics for monitoring chat completion
// traffic and the history store. Metrics include:
//   - Request counters (by endpoint, status)
//   - Token usage (input/output tokens by model)
//   - Latency histograms (time to first chunk, total completion duration)
//   - Active stream gauges
//   - Tool invocation counters, including silently skipped unknown tools
//   - History store operation counters
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for chat gateway metrics
const gatewaySubsystem = "chat"

// GatewayMetrics holds all Prometheus metrics for the chat gateway.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring completion
// traffic, tool execution, and history persistence. Initialize once at
// startup via InitMetrics().
//
// # Thread Safety
//
// All operations are thread-safe.
type GatewayMetrics struct {
	// RequestsTotal counts completion requests by endpoint and status.
	// Labels: endpoint (conversation, history_generate), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// TokensTotal counts tokens processed by direction and model.
	// Labels: direction (input, output), model
	TokensTotal *prometheus.CounterVec

	// TimeToFirstChunkSeconds measures latency to the first streamed chunk.
	// Labels: endpoint
	TimeToFirstChunkSeconds *prometheus.HistogramVec

	// CompletionDurationSeconds measures total completion duration.
	// Labels: endpoint, mode (buffered, streaming), status
	CompletionDurationSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently active streaming connections.
	// Labels: endpoint
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts errors by endpoint and error code.
	// Labels: endpoint, error_code
	ErrorsTotal *prometheus.CounterVec

	// ToolInvocationsTotal counts tool executions by tool name and outcome.
	// Labels: tool, status (success, error, skipped_unknown)
	ToolInvocationsTotal *prometheus.CounterVec

	// HistoryOperationsTotal counts history store round trips.
	// Labels: operation (create_conversation, create_message, ...), status
	HistoryOperationsTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts client disconnections during streaming.
	// Labels: endpoint
	ClientDisconnectsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of GatewayMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *GatewayMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup, after the Prometheus registry is available.
//
// # Outputs
//
//   - *GatewayMetrics: The initialized metrics instance.
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
func InitMetrics() *GatewayMetrics {
	DefaultMetrics = &GatewayMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "requests_total",
				Help:      "Total number of completion requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		TokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "tokens_total",
				Help:      "Total tokens processed by direction and model",
			},
			[]string{"direction", "model"},
		),

		TimeToFirstChunkSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "time_to_first_chunk_seconds",
				Help:      "Time from request to first streamed chunk in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint"},
		),

		CompletionDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "completion_duration_seconds",
				Help:      "Total completion duration in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"endpoint", "mode", "status"},
		),

		ActiveStreams: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "active_streams",
				Help:      "Number of currently active streaming connections",
			},
			[]string{"endpoint"},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "errors_total",
				Help:      "Total errors by endpoint and error code",
			},
			[]string{"endpoint", "error_code"},
		),

		ToolInvocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "tool_invocations_total",
				Help:      "Total tool executions by tool name and outcome",
			},
			[]string{"tool", "status"},
		),

		HistoryOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "history_operations_total",
				Help:      "Total history store round trips by operation and status",
			},
			[]string{"operation", "status"},
		),

		ClientDisconnectsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: gatewaySubsystem,
				Name:      "client_disconnects_total",
				Help:      "Total client disconnections during streaming",
			},
			[]string{"endpoint"},
		),
	}

	return DefaultMetrics
}

// GetMetrics returns the singleton, initializing it on first use.
func GetMetrics() *GatewayMetrics {
	if DefaultMetrics == nil {
		return InitMetrics()
	}
	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeUpstream indicates completion provider failure.
	ErrorCodeUpstream ErrorCode = "upstream"

	// ErrorCodeToolError indicates a tool execution failure.
	ErrorCodeToolError ErrorCode = "tool_error"

	// ErrorCodeStoreUnavailable indicates the history store was unreachable.
	ErrorCodeStoreUnavailable ErrorCode = "store_unavailable"

	// ErrorCodeNotFound indicates a missing conversation or message.
	ErrorCodeNotFound ErrorCode = "not_found"

	// ErrorCodeInternal indicates internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates the client disconnected.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents a gateway endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointConversation is the stateless completion endpoint.
	EndpointConversation Endpoint = "conversation"

	// EndpointHistoryGenerate is the persisted-completion endpoint.
	EndpointHistoryGenerate Endpoint = "history_generate"
)

// Tool invocation outcomes.
const (
	ToolStatusSuccess        = "success"
	ToolStatusError          = "error"
	ToolStatusSkippedUnknown = "skipped_unknown"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed request.
//
// # Inputs
//
//   - endpoint: The endpoint that handled the request.
//   - success: Whether the request completed successfully.
func (m *GatewayMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordError records a categorized error.
func (m *GatewayMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordTokens records token usage for one completion round trip.
func (m *GatewayMetrics) RecordTokens(inputTokens, outputTokens int, model string) {
	m.TokensTotal.WithLabelValues("input", model).Add(float64(inputTokens))
	m.TokensTotal.WithLabelValues("output", model).Add(float64(outputTokens))
}

// RecordToolInvocation records one tool execution outcome.
func (m *GatewayMetrics) RecordToolInvocation(tool, status string) {
	m.ToolInvocationsTotal.WithLabelValues(tool, status).Inc()
}

// RecordHistoryOperation records one history store round trip.
func (m *GatewayMetrics) RecordHistoryOperation(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.HistoryOperationsTotal.WithLabelValues(operation, status).Inc()
}

// StreamStarted increments the active streams gauge.
func (m *GatewayMetrics) StreamStarted(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded decrements the active streams gauge.
func (m *GatewayMetrics) StreamEnded(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordTimeToFirstChunk records the first-chunk latency for a stream.
func (m *GatewayMetrics) RecordTimeToFirstChunk(endpoint Endpoint, seconds float64) {
	m.TimeToFirstChunkSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

// RecordCompletionDuration records the total duration of one exchange.
func (m *GatewayMetrics) RecordCompletionDuration(endpoint Endpoint, mode string, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.CompletionDurationSeconds.WithLabelValues(string(endpoint), mode, status).Observe(seconds)
}

// RecordClientDisconnect increments the client disconnect counter.
func (m *GatewayMetrics) RecordClientDisconnect(endpoint Endpoint) {
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}
