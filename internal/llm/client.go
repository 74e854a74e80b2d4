package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/spec-kit/ticket-assist/internal/config"
)

// Completer sends one system + user prompt pair and returns the raw text
// of the first choice.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ErrEmptyCompletion is returned when the service answers without choices.
var ErrEmptyCompletion = errors.New("llm returned no choices")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	http        *resty.Client
	model       string
	temperature float64
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.LLMConfig) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout()).
		SetTransport(otelhttp.NewTransport(http.DefaultTransport)).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}
	return &Client{
		http:        httpClient,
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

// Complete performs a single chat completion.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, span := otel.Tracer("ticket-assist/llm").Start(ctx, "llm.Complete")
	span.SetAttributes(attribute.String("llm.model", c.model))
	defer span.End()

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: c.model,
			Messages: []chatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			Temperature: c.temperature,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/chat/completions")
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("call llm: %w", err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		span.SetStatus(codes.Error, msg)
		return "", fmt.Errorf("llm error (%d): %s", resp.StatusCode(), msg)
	}
	if len(out.Choices) == 0 {
		span.SetStatus(codes.Error, ErrEmptyCompletion.Error())
		return "", ErrEmptyCompletion
	}
	return out.Choices[0].Message.Content, nil
}
