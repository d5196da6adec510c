// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command gateway starts the AleutianChat completion gateway HTTP server.
//
// This is the main entry point for the containerized gateway service.
// It reads configuration from environment variables and starts the
// server.
//
// # Environment Variables
//
//   - GATEWAY_PORT: HTTP server port (default: 12210)
//   - GATEWAY_METRICS_PORT: dedicated Prometheus listener port (default: /metrics on the main port)
//   - GATEWAY_STREAM: stream NDJSON replies (default: true)
//   - GATEWAY_SYSTEM_PROMPT: system prompt injected on each exchange
//   - GATEWAY_MAX_TOKENS: completion token cap (default: provider default)
//   - GATEWAY_TEMPERATURE: sampling temperature (default: provider default)
//   - LLM_PROVIDER: completion provider - azure, openai (default: openai)
//   - LLM_ENDPOINT: provider base URL (required for azure)
//   - LLM_API_KEY: provider API key (required)
//   - LLM_MODEL: model or deployment name (required)
//   - LLM_DEPLOYMENT: Azure deployment when it differs from the model
//   - LLM_API_VERSION: Azure API version
//   - FUNCTIONS_ENABLED: enable tool calling (default: false)
//   - TOOLS_BASE_URL: tool catalog metadata endpoint
//   - TOOL_BASE_URL: tool invocation endpoint
//   - TOOLS_KEY: function key for both tool endpoints
//   - WEAVIATE_SERVICE_URL: conversation history store URL (optional)
//   - DATASOURCE_TYPE: retrieval datasource kind, e.g. weaviate (optional)
//   - DATASOURCE_TOP_K: retrieval chunks per request
//   - FRONTEND_SETTINGS_PATH: frontend settings YAML file (optional)
//   - INFLUXDB_URL / INFLUXDB_TOKEN / INFLUXDB_ORG / INFLUXDB_BUCKET: usage recorder
//   - RATE_LIMIT_RPS / RATE_LIMIT_BURST: per-user rate limiting (default: off)
//   - LOG_LEVEL / LOG_DIR / LOG_JSON: logging configuration
//   - LOG_GCS_BUCKET: ship logs to a GCS bucket (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_TRACES_EXPORTER, OTEL_METRICS_EXPORTER: telemetry
//
// # Usage
//
//	# Build
//	go build -o gateway ./cmd/gateway
//
//	# Run
//	LLM_API_KEY=sk-... LLM_MODEL=gpt-4o ./gateway
//
//	# Or via container
//	podman-compose up gateway
package main

import (
	"log"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianChat/services/gateway"
	"github.com/AleutianAI/AleutianChat/services/gateway/completion"
	"github.com/AleutianAI/AleutianChat/services/gateway/tools"
	"github.com/AleutianAI/AleutianChat/services/gateway/usage"
	"github.com/AleutianAI/AleutianChat/services/llm"
)

func main() {
	stream := getEnvBool("GATEWAY_STREAM", true)

	cfg := gateway.Config{
		Port:        getEnvInt("GATEWAY_PORT", 12210),
		MetricsPort: getEnvInt("GATEWAY_METRICS_PORT", 0),
		GinMode:     os.Getenv("GIN_MODE"),
		StreamMode:  &stream,
		LLM: llm.Config{
			Provider:   getEnvString("LLM_PROVIDER", llm.ProviderOpenAI),
			Endpoint:   os.Getenv("LLM_ENDPOINT"),
			APIKey:     os.Getenv("LLM_API_KEY"),
			Model:      os.Getenv("LLM_MODEL"),
			Deployment: os.Getenv("LLM_DEPLOYMENT"),
			APIVersion: os.Getenv("LLM_API_VERSION"),
		},
		Completion: completion.BuilderConfig{
			Model:            os.Getenv("LLM_MODEL"),
			SystemPrompt:     os.Getenv("GATEWAY_SYSTEM_PROMPT"),
			Temperature:      float32(getEnvFloat("GATEWAY_TEMPERATURE", 0)),
			MaxTokens:        getEnvInt("GATEWAY_MAX_TOKENS", 0),
			FunctionsEnabled: getEnvBool("FUNCTIONS_ENABLED", false),
			Datasource:       datasourceFromEnv(),
		},
		Tools: tools.Config{
			Enabled:      getEnvBool("FUNCTIONS_ENABLED", false),
			ToolsBaseURL: os.Getenv("TOOLS_BASE_URL"),
			ToolBaseURL:  os.Getenv("TOOL_BASE_URL"),
			Key:          os.Getenv("TOOLS_KEY"),
		},
		WeaviateURL:  os.Getenv("WEAVIATE_SERVICE_URL"),
		SettingsPath: os.Getenv("FRONTEND_SETTINGS_PATH"),
		Usage: usage.Config{
			URL:    os.Getenv("INFLUXDB_URL"),
			Token:  os.Getenv("INFLUXDB_TOKEN"),
			Org:    os.Getenv("INFLUXDB_ORG"),
			Bucket: os.Getenv("INFLUXDB_BUCKET"),
		},
		RateRPS:      getEnvFloat("RATE_LIMIT_RPS", 0),
		RateBurst:    getEnvInt("RATE_LIMIT_BURST", 0),
		LogLevel:     getEnvString("LOG_LEVEL", "info"),
		LogDir:       os.Getenv("LOG_DIR"),
		LogJSON:      getEnvBool("LOG_JSON", false),
		LogGCSBucket: os.Getenv("LOG_GCS_BUCKET"),
	}

	// Create gateway with default (no-op) extension options.
	// Enterprise builds pass custom ServiceOptions here.
	svc, err := gateway.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Gateway error: %v", err)
	}
}

// datasourceFromEnv builds the retrieval datasource config, or nil
// when DATASOURCE_TYPE is unset.
func datasourceFromEnv() *completion.DatasourceConfig {
	kind := os.Getenv("DATASOURCE_TYPE")
	if kind == "" {
		return nil
	}
	return &completion.DatasourceConfig{
		Type: kind,
		TopK: getEnvInt("DATASOURCE_TOP_K", 0),
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as bool or a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvFloat returns the environment variable as float64 or a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
