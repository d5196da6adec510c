package llm

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("aleutian.llm.openai")

// openAIClient serves both the azure and openai providers; the
// difference is entirely in the openai.ClientConfig built by New.
type openAIClient struct {
	client *openai.Client
	model  string
}

func (o *openAIClient) Model() string { return o.model }

// Complete implements Client.
func (o *openAIClient) Complete(ctx context.Context,
	req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, string, error) {

	ctx, span := tracer.Start(ctx, "llm.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.num_messages", len(req.Messages)),
	)

	slog.Debug("Sending buffered completion request", "model", req.Model, "messages", len(req.Messages))

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Completion request failed", "error", err)
		return nil, "", wrapUpstream("completion", err)
	}

	apimID := resp.Header().Get(apimRequestIDHeader)
	if len(resp.Choices) == 0 {
		slog.Warn("Provider returned no choices", "id", resp.ID)
	}
	if resp.Usage.TotalTokens > 0 {
		span.SetAttributes(attribute.Int("llm.total_tokens", resp.Usage.TotalTokens))
	}
	return &resp, apimID, nil
}

// Stream implements Client.
func (o *openAIClient) Stream(ctx context.Context,
	req openai.ChatCompletionRequest) (ChunkStream, string, error) {

	ctx, span := tracer.Start(ctx, "llm.Stream")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.num_messages", len(req.Messages)),
	)

	req.Stream = true
	slog.Debug("Opening streamed completion", "model", req.Model, "messages", len(req.Messages))

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Stream open failed", "error", err)
		return nil, "", wrapUpstream("completion stream", err)
	}

	return stream, stream.Header().Get(apimRequestIDHeader), nil
}

// wrapUpstream converts SDK errors into the gateway's upstream error
// shape, preserving the provider HTTP status when the SDK carries one.
func wrapUpstream(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &datatypes.UpstreamError{
			Operation:  operation,
			StatusCode: apiErr.HTTPStatusCode,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &datatypes.UpstreamError{
			Operation:  operation,
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}
	return &datatypes.UpstreamError{Operation: operation, Err: err}
}

