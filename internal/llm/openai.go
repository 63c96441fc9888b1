package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/thatssosanya/kimovil-scraper/internal/observability"
)

type OpenAIOptions struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAIGenerator issues chat completions against an OpenAI compatible API.
// It never retries.
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

func NewOpenAIGenerator(opts OpenAIOptions, logger *slog.Logger) *OpenAIGenerator {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	model := opts.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	return &OpenAIGenerator{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: opts.MaxTokens,
		logger:    logger.With("component", "llm"),
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	chatReq := g.buildRequest(req)

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	observability.LLMRequestDuration.WithLabelValues(req.Purpose).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.LLMFailuresTotal.WithLabelValues(req.Purpose).Inc()
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		observability.LLMFailuresTotal.WithLabelValues(req.Purpose).Inc()
		return "", ErrEmptyCompletion
	}

	g.logger.Debug("completion finished",
		"purpose", req.Purpose,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason,
		"duration", time.Since(start),
	)

	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) buildRequest(req Request) openai.ChatCompletionRequest {
	messages := []openai.ChatCompletionMessage{}
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	// the client drops a zero temperature, which the API reads as 1
	temperature := req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   g.maxTokens,
	}

	if len(req.Schema) > 0 {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: req.Schema,
				Strict: true,
			},
		}
	}

	return chatReq
}
