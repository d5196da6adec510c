package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	openai "github.com/sashabaranov/go-openai"
)

// =============================================================================
// Config Validation Tests
// =============================================================================

func validAzureConfig() Config {
	return Config{
		Provider:   ProviderAzure,
		Endpoint:   "https://example.openai.azure.com",
		APIKey:     "test-key",
		Model:      "gpt-4o",
		APIVersion: MinimumAzureAPIVersion,
	}
}

func TestConfig_Validate_AzureSuccess(t *testing.T) {
	cfg := validAzureConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}
}

func TestConfig_Validate_AzureRequiresEndpoint(t *testing.T) {
	cfg := validAzureConfig()
	cfg.Endpoint = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing endpoint, got nil")
	}
	var cerr *datatypes.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Errorf("expected ConfigurationError, got %T", err)
	}
}

func TestConfig_Validate_APIVersionBelowMinimum(t *testing.T) {
	cfg := validAzureConfig()
	cfg.APIVersion = "2023-06-01-preview"

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for api version below minimum, got nil")
	}
}

func TestConfig_Validate_APIVersionAboveMinimum(t *testing.T) {
	cfg := validAzureConfig()
	cfg.APIVersion = "2024-08-01-preview"

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected newer api version to pass, got error: %v", err)
	}
}

func TestConfig_Validate_UnknownProvider(t *testing.T) {
	cfg := validAzureConfig()
	cfg.Provider = "bedrock"

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown provider, got nil")
	}
}

func TestConfig_Validate_OpenAIRequiresKeyAndModel(t *testing.T) {
	cfg := Config{Provider: ProviderOpenAI, Model: "gpt-4o-mini"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing api key, got nil")
	}

	cfg = Config{Provider: ProviderOpenAI, APIKey: "k"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing model, got nil")
	}
}

// =============================================================================
// Upstream Error Mapping Tests
// =============================================================================

func TestWrapUpstream_PreservesAPIErrorStatus(t *testing.T) {
	apiErr := &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}

	err := wrapUpstream("completion", apiErr)

	if got := datatypes.UpstreamStatus(err); got != 429 {
		t.Errorf("expected status 429, got %d", got)
	}
}

func TestWrapUpstream_TransportFailureHasNoStatus(t *testing.T) {
	err := wrapUpstream("completion", errors.New("dial tcp: connection refused"))

	if got := datatypes.UpstreamStatus(err); got != 0 {
		t.Errorf("expected status 0, got %d", got)
	}
	var uerr *datatypes.UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UpstreamError, got %T", err)
	}
}

// =============================================================================
// Round Trip Tests (fake provider)
// =============================================================================

const completionBody = `{
	"id": "cmpl-1",
	"object": "chat.completion",
	"created": 1714000000,
	"model": "gpt-4o",
	"choices": [
		{"index": 0, "message": {"role": "assistant", "content": "hello there"}, "finish_reason": "stop"}
	],
	"usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}
}`

func TestComplete_RoundTrip(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("x-ms-useragent")
		w.Header().Set("apim-request-id", "apim-123")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completionBody)
	}))
	defer server.Close()

	client, err := New(Config{
		Provider: ProviderOpenAI,
		Endpoint: server.URL + "/v1",
		APIKey:   "test-key",
		Model:    "gpt-4o",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	resp, apimID, err := client.Complete(context.Background(), openai.ChatCompletionRequest{
		Model: "gpt-4o",
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Choices[0].Message.Content != "hello there" {
		t.Errorf("unexpected content: %q", resp.Choices[0].Message.Content)
	}
	if apimID != "apim-123" {
		t.Errorf("expected apim id apim-123, got %q", apimID)
	}
	if gotUserAgent != UserAgent {
		t.Errorf("expected user agent %q on the wire, got %q", UserAgent, gotUserAgent)
	}
	if resp.Usage.TotalTokens != 8 {
		t.Errorf("expected usage to survive, got %+v", resp.Usage)
	}
}

func TestComplete_UpstreamErrorStatusSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		io.WriteString(w, `{"error": {"message": "overloaded", "type": "server_error"}}`)
	}))
	defer server.Close()

	client, err := New(Config{
		Provider: ProviderOpenAI,
		Endpoint: server.URL + "/v1",
		APIKey:   "test-key",
		Model:    "gpt-4o",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	_, _, err = client.Complete(context.Background(), openai.ChatCompletionRequest{
		Model:    "gpt-4o",
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error from 503 response, got nil")
	}
	if got := datatypes.UpstreamStatus(err); got != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", got)
	}
}

func TestStream_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("apim-request-id", "apim-stream-1")
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"id":"cmpl-1","object":"chat.completion.chunk","created":1714000000,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"hel"}}]}`+"\n\n")
		io.WriteString(w, `data: {"id":"cmpl-1","object":"chat.completion.chunk","created":1714000000,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"}}]}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, err := New(Config{
		Provider: ProviderOpenAI,
		Endpoint: server.URL + "/v1",
		APIKey:   "test-key",
		Model:    "gpt-4o",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	stream, apimID, err := client.Stream(context.Background(), openai.ChatCompletionRequest{
		Model:    "gpt-4o",
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer stream.Close()

	if apimID != "apim-stream-1" {
		t.Errorf("expected apim id apim-stream-1, got %q", apimID)
	}

	var content string
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		if len(chunk.Choices) > 0 {
			content += chunk.Choices[0].Delta.Content
		}
	}

	if content != "hello" {
		t.Errorf("expected streamed content to assemble to %q, got %q", "hello", content)
	}
}
