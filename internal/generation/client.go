// Package generation talks to the text-generation backend that writes report narratives.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var (
	// ErrBackendUnavailable wraps network, timeout and non-2xx failures. These are transient.
	ErrBackendUnavailable = errors.New("text generation backend unavailable")
	// ErrEmptyReply is returned when the backend answers without any text.
	ErrEmptyReply = errors.New("text generation backend returned an empty reply")
)

// Request is one generation call.
type Request struct {
	SystemInstructions string
	UserContent        string
	MaxOutputTokens    int
}

// Response carries the generated text and token usage.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Generator produces free text from a Request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

const maxLogSnippetRunes = 1024

// OpenAIGenerator calls an OpenAI-compatible chat completion endpoint.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

// OpenAIOption configures an OpenAIGenerator.
type OpenAIOption func(*openAISettings)

type openAISettings struct {
	baseURL     string
	httpClient  openai.HTTPDoer
	temperature float32
	logger      *zap.Logger
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(base string) OpenAIOption {
	return func(s *openAISettings) { s.baseURL = strings.TrimRight(strings.TrimSpace(base), "/") }
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(client openai.HTTPDoer) OpenAIOption {
	return func(s *openAISettings) { s.httpClient = client }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) OpenAIOption {
	return func(s *openAISettings) { s.temperature = t }
}

// WithLogger sets the logger used for request/response snippets.
func WithLogger(logger *zap.Logger) OpenAIOption {
	return func(s *openAISettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewOpenAIGenerator builds a generator for model using apiKey.
func NewOpenAIGenerator(apiKey, model string, opts ...OpenAIOption) (*OpenAIGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("generation api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("generation model is required")
	}

	settings := openAISettings{temperature: 0.4, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg := openai.DefaultConfig(apiKey)
	if settings.baseURL != "" {
		cfg.BaseURL = settings.baseURL
	}
	if settings.httpClient != nil {
		cfg.HTTPClient = settings.httpClient
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: settings.temperature,
		logger:      settings.logger,
	}, nil
}

// Generate sends the request as a system + user chat completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	logExchange(g.logger, "prompt", req.UserContent)

	start := time.Now()
	completion, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: strings.TrimSpace(req.SystemInstructions)},
			{Role: openai.ChatMessageRoleUser, Content: req.UserContent},
		},
		MaxTokens:   req.MaxOutputTokens,
		Temperature: g.temperature,
	})
	observeRequest(g.model, time.Since(start), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, ctxErr)
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return Response{}, fmt.Errorf("%w: status %d: %s", ErrBackendUnavailable, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return Response{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return Response{}, ErrEmptyReply
	}

	text := completion.Choices[0].Message.Content
	logExchange(g.logger, "response", text)
	return Response{
		Text:             text,
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}, nil
}

func logExchange(logger *zap.Logger, phase, content string) {
	trimmed := strings.TrimSpace(content)
	runes := utf8.RuneCountInString(trimmed)
	snippet := trimmed
	if runes > maxLogSnippetRunes {
		snippet = string([]rune(trimmed)[:maxLogSnippetRunes]) + "…(truncated)"
	}
	logger.Debug("generation exchange", zap.String("phase", phase), zap.Int("runes", runes), zap.String("snippet", snippet))
}
