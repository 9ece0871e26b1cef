package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	"github.com/kailas-cloud/trackjudge/internal/transport/llm"
)

const provider = "openai"

// Agent is a judging capability backed by the OpenAI chat completions API
// (or any OpenAI-compatible endpoint).
type Agent struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	logger      *zap.Logger
	onUsage     llm.UsageFunc
}

// Config holds the OpenAI agent settings.
type Config struct {
	APIKey      string
	BaseURL     string // empty = api.openai.com
	Model       string
	MaxTokens   int
	Temperature float64
	Logger      *zap.Logger
	OnUsage     llm.UsageFunc // optional, receives billed tokens
}

// NewAgent creates an OpenAI-compatible judging capability.
func NewAgent(cfg *Config) *Agent {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Agent{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		logger:      logger,
		onUsage:     cfg.OnUsage,
	}
}

// Invoke implements domain.Capability. The response is constrained to the verdict JSON schema.
func (a *Agent) Invoke(
	ctx context.Context, systemPrompt string, conversation []domain.Message,
) (json.RawMessage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(conversation)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range conversation {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: a.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   domain.VerdictSchemaName,
				Schema: domain.VerdictSchema(),
				Strict: true,
			},
		},
	}
	if a.maxTokens > 0 {
		req.MaxCompletionTokens = a.maxTokens
	}

	obs := llm.Observation{Provider: provider, Model: a.model, Start: time.Now(), OnUsage: a.onUsage}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		obs.ErrorType = "api_error"
		llm.Record(obs)
		return nil, parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		obs.ErrorType = "empty_response"
		llm.Record(obs)
		return nil, fmt.Errorf("no choices in completion: %w", domain.ErrMalformedJudgeOutput)
	}

	obs.InputTokens = int64(resp.Usage.PromptTokens)
	obs.OutputTokens = int64(resp.Usage.CompletionTokens)
	llm.Record(obs)

	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		a.logger.Warn("judge refused", zap.String("refusal", choice.Message.Refusal))
		return nil, fmt.Errorf("judge refused: %w", domain.ErrMalformedJudgeOutput)
	}

	return llm.RawVerdict(choice.Message.Content)
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (a *Agent) HealthCheck(ctx context.Context) error {
	if _, err := a.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrJudgeUnavailable for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrJudgeUnavailable

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("judge API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if detail := extractDetail(reqErr.Body); detail != "" {
			return fmt.Errorf("judge API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("judge API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	return fmt.Errorf("judge request failed: %v: %w", err, wrap)
}

// extractDetail extracts the "detail" field from a JSON error body (some compatible gateways use it).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
