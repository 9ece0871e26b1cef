// Package gemini implements the judging capability on the Gemini API with a JSON response schema.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	"github.com/kailas-cloud/trackjudge/internal/transport/llm"
)

const provider = "gemini"

// Agent is a judging capability backed by Gemini.
type Agent struct {
	client  *genai.Client
	model   string
	config  *genai.GenerateContentConfig
	logger  *zap.Logger
	onUsage llm.UsageFunc
}

// Config holds the Gemini agent settings.
type Config struct {
	APIKey      string
	BaseURL     string // empty = generativelanguage.googleapis.com
	Model       string
	MaxTokens   int
	Temperature float64
	Logger      *zap.Logger
	OnUsage     llm.UsageFunc // optional, receives billed tokens
}

// NewAgent creates a Gemini judging capability.
func NewAgent(ctx context.Context, cfg *Config) (*Agent, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	genCfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   verdictSchema(),
	}
	if cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(cfg.MaxTokens)
	}
	if cfg.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(cfg.Temperature))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Agent{
		client:  client,
		model:   cfg.Model,
		config:  genCfg,
		logger:  logger,
		onUsage: cfg.OnUsage,
	}, nil
}

// verdictSchema mirrors domain.Verdict in Gemini's schema dialect.
func verdictSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"score": {
				Type:        genai.TypeNumber,
				Description: "How well the file matches the requested track, from 0 (no match) to 1 (exact match)",
				Minimum:     genai.Ptr(0.0),
				Maximum:     genai.Ptr(1.0),
			},
		},
		Required: []string{"score"},
	}
}

// Invoke implements domain.Capability.
func (a *Agent) Invoke(
	ctx context.Context, systemPrompt string, conversation []domain.Message,
) (json.RawMessage, error) {
	contents := make([]*genai.Content, 0, len(conversation))
	for _, m := range conversation {
		contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
	}

	// Shallow copy so concurrent invocations never share a mutated config.
	cfg := *a.config
	cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)

	obs := llm.Observation{Provider: provider, Model: a.model, Start: time.Now(), OnUsage: a.onUsage}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, &cfg)
	if err != nil {
		obs.ErrorType = "api_error"
		llm.Record(obs)
		return nil, parseAPIError(err)
	}

	if resp.UsageMetadata != nil {
		obs.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		obs.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	llm.Record(obs)

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil {
			a.logger.Warn("judge prompt blocked", zap.String("reason", string(resp.PromptFeedback.BlockReason)))
		}
		return nil, fmt.Errorf("no candidates in response: %w", domain.ErrMalformedJudgeOutput)
	}

	return llm.RawVerdict(resp.Text())
}

// HealthCheck verifies API availability by fetching the configured model.
func (a *Agent) HealthCheck(ctx context.Context) error {
	if _, err := a.client.Models.Get(ctx, a.model, nil); err != nil {
		return fmt.Errorf("get model %s: %w", a.model, err)
	}
	return nil
}

// parseAPIError wraps provider failures with domain.ErrJudgeUnavailable.
func parseAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("judge API error %d: %s: %w", apiErr.Code, apiErr.Message, domain.ErrJudgeUnavailable)
	}
	return fmt.Errorf("judge request failed: %v: %w", err, domain.ErrJudgeUnavailable)
}
