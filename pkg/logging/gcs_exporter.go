// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSExporterConfig configures a GCSExporter.
type GCSExporterConfig struct {
	// Bucket is the target GCS bucket name. Required.
	Bucket string

	// Prefix is prepended to every object name.
	// Default: "logs"
	Prefix string

	// CredentialsFile is an optional path to a service-account JSON key.
	// When empty, Application Default Credentials are used.
	CredentialsFile string

	// BatchSize is the number of entries that triggers an upload.
	// Default: 200
	BatchSize int

	// FlushInterval uploads any pending entries at least this often.
	// Default: 30s
	FlushInterval time.Duration
}

// GCSExporter uploads log entries to a Google Cloud Storage bucket.
//
// Entries are buffered in memory and uploaded as newline-delimited JSON
// objects named {prefix}/{service}/{date}/{timestamp}-{seq}.ndjson.
// Upload happens when the buffer reaches BatchSize, when FlushInterval
// elapses, and on Flush.
//
// # Thread Safety
//
// GCSExporter is safe for concurrent use.
//
// Example:
//
//	exporter, err := logging.NewGCSExporter(ctx, logging.GCSExporterConfig{
//	    Bucket: "aleutian-gateway-logs",
//	})
//	if err != nil { ... }
//	logger := logging.New(logging.Config{Service: "gateway", Exporter: exporter})
type GCSExporter struct {
	client *storage.Client
	cfg    GCSExporterConfig

	mu     sync.Mutex
	buffer []LogEntry
	seq    int

	stop chan struct{}
	done chan struct{}
}

// NewGCSExporter creates a GCSExporter and starts its background flush loop.
//
// Returns an error when the bucket name is missing or the storage client
// cannot be constructed.
func NewGCSExporter(ctx context.Context, cfg GCSExporterConfig) (*GCSExporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs exporter: bucket is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "logs"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs exporter: create client: %w", err)
	}

	e := &GCSExporter{
		client: client,
		cfg:    cfg,
		buffer: make([]LogEntry, 0, cfg.BatchSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go e.flushLoop()
	return e, nil
}

// Export buffers the entry for upload.
//
// When the buffer reaches BatchSize the batch is uploaded in the
// background; Export itself never blocks on the network.
func (e *GCSExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	e.buffer = append(e.buffer, entry)
	var batch []LogEntry
	if len(e.buffer) >= e.cfg.BatchSize {
		batch = e.takeLocked()
	}
	e.mu.Unlock()

	if batch != nil {
		go e.upload(context.Background(), batch)
	}
	return nil
}

// Flush uploads all buffered entries synchronously.
func (e *GCSExporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	batch := e.takeLocked()
	e.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	return e.upload(ctx, batch)
}

// Close stops the flush loop and releases the storage client.
// Call Flush first to avoid dropping buffered entries.
func (e *GCSExporter) Close() error {
	close(e.stop)
	<-e.done
	return e.client.Close()
}

// flushLoop periodically uploads pending entries.
func (e *GCSExporter) flushLoop() {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = e.Flush(ctx)
			cancel()
		case <-e.stop:
			return
		}
	}
}

// takeLocked detaches the current buffer. Caller must hold e.mu.
func (e *GCSExporter) takeLocked() []LogEntry {
	if len(e.buffer) == 0 {
		return nil
	}
	batch := e.buffer
	e.buffer = make([]LogEntry, 0, e.cfg.BatchSize)
	e.seq++
	return batch
}

// upload writes one batch as an NDJSON object.
func (e *GCSExporter) upload(ctx context.Context, batch []LogEntry) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range batch {
		if err := enc.Encode(exportRecord{
			Timestamp: entry.Timestamp.UTC().Format(time.RFC3339Nano),
			Level:     entry.Level.String(),
			Message:   entry.Message,
			Service:   entry.Service,
			Attrs:     entry.Attrs,
		}); err != nil {
			return fmt.Errorf("gcs exporter: encode entry: %w", err)
		}
	}

	name := e.objectName(batch[0])
	w := e.client.Bucket(e.cfg.Bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	if _, err := w.Write(buf.Bytes()); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs exporter: write %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs exporter: close %s: %w", name, err)
	}
	return nil
}

// objectName builds the destination object path for a batch.
func (e *GCSExporter) objectName(first LogEntry) string {
	service := first.Service
	if service == "" {
		service = "aleutian"
	}
	ts := first.Timestamp.UTC()
	return fmt.Sprintf("%s/%s/%s/%s-%06d.ndjson",
		e.cfg.Prefix,
		service,
		ts.Format("2006-01-02"),
		ts.Format("150405"),
		e.seq,
	)
}

// exportRecord is the on-wire shape of an uploaded entry.
type exportRecord struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Service   string         `json:"service"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Ensure GCSExporter implements LogExporter
var _ LogExporter = (*GCSExporter)(nil)
