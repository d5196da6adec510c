// Package llm wraps the completion provider behind a small interface so
// the gateway's orchestration code never touches provider SDK plumbing
// directly and tests can substitute scripted backends.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	openai "github.com/sashabaranov/go-openai"
)

// Supported provider kinds.
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
)

// MinimumAzureAPIVersion is the oldest Azure OpenAI API version the
// gateway accepts. Older versions predate the tool-call chunk shapes
// the orchestrator relies on. API versions are date strings, so an
// ordinary string comparison orders them.
const MinimumAzureAPIVersion = "2024-05-01-preview"

// UserAgent is attached to every provider request.
const UserAgent = "AleutianChat/AsyncClient/1.0.0"

const defaultRequestTimeout = 5 * time.Minute

// apimRequestIDHeader is set by Azure API Management front ends and is
// echoed back to clients for support correlation.
const apimRequestIDHeader = "apim-request-id"

// ChunkStream is an asynchronous sequence of completion chunks.
// *openai.ChatCompletionStream satisfies it; tests use scripted fakes.
type ChunkStream interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// Client is the completion provider surface the orchestrator consumes.
// Both methods return the provider's request-correlation id alongside
// the payload; it is empty when the provider did not send one.
type Client interface {
	// Complete performs one buffered chat completion round trip.
	Complete(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, string, error)

	// Stream opens a streamed chat completion. The caller owns the
	// returned stream and must Close it.
	Stream(ctx context.Context, req openai.ChatCompletionRequest) (ChunkStream, string, error)

	// Model returns the configured model (or Azure deployment) name.
	Model() string
}

// Config selects and parameterizes the completion provider.
type Config struct {
	// Provider is one of ProviderAzure or ProviderOpenAI.
	Provider string

	// Endpoint is the provider base URL. Required for Azure.
	Endpoint string

	// APIKey authenticates every request.
	APIKey string

	// Model is the model id sent with each request. For Azure this is
	// also the deployment name unless Deployment overrides it.
	Model string

	// Deployment is the Azure deployment name when it differs from the
	// model id. Ignored for ProviderOpenAI.
	Deployment string

	// APIVersion is the Azure API version. Must be at or above
	// MinimumAzureAPIVersion. Ignored for ProviderOpenAI.
	APIVersion string

	// RequestTimeout bounds one provider round trip, streamed reads
	// included. Zero selects the default.
	RequestTimeout time.Duration
}

// Validate reports the first configuration problem, if any.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderAzure:
		if c.Endpoint == "" {
			return &datatypes.ConfigurationError{Setting: "LLM_ENDPOINT", Reason: "is required for the azure provider"}
		}
		if c.APIVersion == "" {
			return &datatypes.ConfigurationError{Setting: "LLM_API_VERSION", Reason: "is required for the azure provider"}
		}
		if c.APIVersion < MinimumAzureAPIVersion {
			return &datatypes.ConfigurationError{
				Setting: "LLM_API_VERSION",
				Reason:  fmt.Sprintf("%s is below the minimum supported version %s", c.APIVersion, MinimumAzureAPIVersion),
			}
		}
	case ProviderOpenAI:
		// Endpoint optional; the SDK default is used when blank.
	default:
		return &datatypes.ConfigurationError{Setting: "LLM_PROVIDER", Reason: fmt.Sprintf("unknown provider %q", c.Provider)}
	}
	if c.APIKey == "" {
		return &datatypes.ConfigurationError{Setting: "LLM_API_KEY", Reason: "is required"}
	}
	if c.Model == "" {
		return &datatypes.ConfigurationError{Setting: "LLM_MODEL", Reason: "is required"}
	}
	return nil
}

// New builds the provider client described by cfg.
func New(cfg Config) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: &headerTransport{base: http.DefaultTransport},
	}

	var clientCfg openai.ClientConfig
	switch cfg.Provider {
	case ProviderAzure:
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		clientCfg.APIVersion = cfg.APIVersion
		deployment := cfg.Deployment
		if deployment == "" {
			deployment = cfg.Model
		}
		clientCfg.AzureModelMapperFunc = func(string) string { return deployment }
	default:
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			clientCfg.BaseURL = cfg.Endpoint
		}
	}
	clientCfg.HTTPClient = httpClient

	return &openAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// headerTransport stamps the gateway user agent onto outgoing provider
// requests.
type headerTransport struct {
	base http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("x-ms-useragent", UserAgent)
	return t.base.RoundTrip(clone)
}
