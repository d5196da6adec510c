// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ALEUTIAN_ENV", "staging")
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")

	cfg := DefaultConfig()
	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "stdout", cfg.TraceExporter)
	assert.Equal(t, "prometheus", cfg.MetricExporter)
}

func TestInit_NilContext(t *testing.T) {
	_, err := Init(nil, DefaultConfig()) //nolint:staticcheck
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_UnknownTraceExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "jaeger"
	cfg.MetricExporter = "none"

	_, err := Init(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

// TestInit_StdoutExporters exercises the full init/shutdown cycle
// without requiring an OTLP collector.
func TestInit_StdoutExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout"
	cfg.MetricExporter = "stdout"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_DisabledExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMetricsHandler_NilBeforePrometheusInit(t *testing.T) {
	prometheusHandlerMu.Lock()
	prometheusHandler = nil
	prometheusHandlerMu.Unlock()

	assert.Nil(t, MetricsHandler())
}
