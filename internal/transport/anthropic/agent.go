// Package anthropic implements the judging capability on the Anthropic Messages API.
// The model is forced to answer through a single submit_score tool whose input is the verdict.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	"github.com/kailas-cloud/trackjudge/internal/transport/llm"
)

const (
	provider = "anthropic"

	// ToolName is the tool the model must call to submit its verdict.
	ToolName = "submit_score"
)

// Agent is a judging capability backed by Claude.
type Agent struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	tool        anthropic.ToolParam
	logger      *zap.Logger
	onUsage     llm.UsageFunc
}

// Config holds the Anthropic agent settings.
type Config struct {
	APIKey      string
	BaseURL     string // empty = api.anthropic.com
	Model       string
	MaxTokens   int
	Temperature float64
	Logger      *zap.Logger
	OnUsage     llm.UsageFunc // optional, receives billed tokens
}

// NewAgent creates a Claude judging capability.
// The SDK's own retries are disabled: a submission is judged exactly once per request.
func NewAgent(cfg *Config) (*Agent, error) {
	props, required, err := llm.VerdictProperties()
	if err != nil {
		return nil, fmt.Errorf("build %s tool schema: %w", ToolName, err)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Agent{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
		tool: anthropic.ToolParam{
			Name:        ToolName,
			Description: anthropic.String("Submit the match score for the candidate file."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       constant.Object("object"),
				Properties: props,
				Required:   required,
			},
		},
		logger:  logger,
		onUsage: cfg.OnUsage,
	}, nil
}

// Invoke implements domain.Capability and returns the submit_score tool input.
func (a *Agent) Invoke(
	ctx context.Context, systemPrompt string, conversation []domain.Message,
) (json.RawMessage, error) {
	messages := make([]anthropic.MessageParam, 0, len(conversation))
	for _, m := range conversation {
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	params := anthropic.MessageNewParams{
		Model:      anthropic.Model(a.model),
		MaxTokens:  a.maxTokens,
		System:     []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:   messages,
		Tools:      []anthropic.ToolUnionParam{{OfTool: &a.tool}},
		ToolChoice: anthropic.ToolChoiceParamOfTool(ToolName),
	}
	if a.temperature > 0 {
		params.Temperature = anthropic.Float(a.temperature)
	}

	obs := llm.Observation{Provider: provider, Model: a.model, Start: time.Now(), OnUsage: a.onUsage}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		obs.ErrorType = "api_error"
		llm.Record(obs)
		return nil, parseAPIError(err)
	}

	obs.InputTokens = message.Usage.InputTokens
	obs.OutputTokens = message.Usage.OutputTokens
	llm.Record(obs)

	for _, block := range message.Content {
		if block.Type == "tool_use" && block.Name == ToolName {
			if len(block.Input) == 0 {
				return nil, fmt.Errorf("empty %s input: %w", ToolName, domain.ErrMalformedJudgeOutput)
			}
			return block.Input, nil
		}
	}

	a.logger.Warn("judge answered without tool call", zap.String("stop_reason", string(message.StopReason)))
	return nil, fmt.Errorf("no %s tool call in response: %w", ToolName, domain.ErrMalformedJudgeOutput)
}

// HealthCheck verifies API availability via the models listing (free endpoint).
func (a *Agent) HealthCheck(ctx context.Context) error {
	if _, err := a.client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)}); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError wraps provider failures with domain.ErrJudgeUnavailable.
func parseAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("judge API error %d: %v: %w", apiErr.StatusCode, err, domain.ErrJudgeUnavailable)
	}
	return fmt.Errorf("judge request failed: %v: %w", err, domain.ErrJudgeUnavailable)
}
