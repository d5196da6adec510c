// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package usage records per-completion token consumption to InfluxDB.
//
// Token accounting is time-series data: operators chart spend per user
// and per model over time, which is a poor fit for the conversation
// store. Writes go through the non-blocking write API so a slow or
// unavailable InfluxDB never adds latency to a completion.
package usage

import (
	"context"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const measurementTokenUsage = "token_usage"

// Config holds the InfluxDB connection parameters.
type Config struct {
	// URL is the InfluxDB server URL, e.g. http://localhost:8086.
	URL string

	// Token is the API token used for writes.
	Token string

	// Org is the InfluxDB organization.
	Org string

	// Bucket receives the token_usage measurement.
	Bucket string
}

// Recorder writes token usage points to InfluxDB.
//
// # Thread Safety
//
// The underlying write API buffers points internally and is safe for
// concurrent use.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// NewRecorder connects to InfluxDB and starts the background write
// batching goroutine.
func NewRecorder(cfg Config) *Recorder {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	r := &Recorder{client: client, writeAPI: writeAPI}

	// Drain the async error channel so write failures surface in logs
	// instead of silently filling the channel.
	go func() {
		for err := range writeAPI.Errors() {
			slog.Warn("Token usage write failed", "error", err)
		}
	}()

	return r
}

// RecordCompletion queues one usage point. The write is asynchronous
// and never blocks the request path.
func (r *Recorder) RecordCompletion(
	_ context.Context,
	userID, model, kind string,
	promptTokens, completionTokens int,
	latency time.Duration,
) {
	point := write.NewPoint(
		measurementTokenUsage,
		map[string]string{
			"user":  userID,
			"model": model,
			"kind":  kind,
		},
		map[string]interface{}{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"latency_ms":        latency.Milliseconds(),
		},
		time.Now(),
	)
	r.writeAPI.WritePoint(point)
}

// Close flushes buffered points and releases the client.
func (r *Recorder) Close() {
	r.writeAPI.Flush()
	r.client.Close()
}

// NopRecorder discards usage data. Used when InfluxDB is not
// configured.
type NopRecorder struct{}

// RecordCompletion does nothing.
func (NopRecorder) RecordCompletion(
	_ context.Context,
	_, _, _ string,
	_, _ int,
	_ time.Duration,
) {
}
