package judge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	logpkg "github.com/kailas-cloud/trackjudge/internal/logger"
	"github.com/kailas-cloud/trackjudge/internal/metrics"
)

// FramingInstruction is the first turn of every judge conversation; the payload follows as the second.
const FramingInstruction = "In the next message from me you will find your input. " +
	"said input will be in a format like the one I specified previously"

// Adapter turns a Submission into a single judging capability invocation and validates the verdict.
// It holds no mutable state: concurrent calls are independent.
type Adapter struct {
	agent        Capability
	systemPrompt string
	logger       *zap.Logger
}

// New creates an Adapter. systemPrompt is loaded once at startup by the caller.
func New(agent Capability, systemPrompt string, logger *zap.Logger) *Adapter {
	return &Adapter{agent: agent, systemPrompt: systemPrompt, logger: logger}
}

// Judge scores a submission. Exactly one capability round-trip; no retry, no added timeout.
// The returned Response echoes submission.Track unchanged.
func (a *Adapter) Judge(ctx context.Context, sub domain.Submission) (domain.Response, error) {
	log := logpkg.FromContext(ctx, a.logger)

	input, err := sub.Canonical()
	if err != nil {
		return domain.Response{}, fmt.Errorf("serialize submission: %w", err)
	}

	log.Info("input to judge", zap.String("submission", input))

	conversation := []domain.Message{
		{Role: domain.RoleUser, Content: FramingInstruction},
		{Role: domain.RoleUser, Content: input},
	}

	start := time.Now()
	raw, err := a.agent.Invoke(ctx, a.systemPrompt, conversation)
	duration := time.Since(start)
	if err != nil {
		err = classifyInvokeError(err)
		metrics.JudgeVerdictsTotal.WithLabelValues(outcome(err)).Inc()
		log.Error("Judge invocation failed", zap.Duration("duration", duration), zap.Error(err))
		return domain.Response{}, err
	}

	score, err := domain.ParseVerdict(raw)
	if err != nil {
		metrics.JudgeVerdictsTotal.WithLabelValues("malformed").Inc()
		log.Warn("Judge returned malformed verdict",
			zap.ByteString("raw", raw),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.Response{}, fmt.Errorf("validate verdict: %w", err)
	}

	metrics.JudgeVerdictsTotal.WithLabelValues("ok").Inc()
	metrics.JudgeScores.Observe(score)
	log.Debug("Judge verdict accepted",
		zap.Float64("score", score),
		zap.Duration("duration", duration),
	)

	return domain.Response{Track: sub.Track, Score: score}, nil
}

// classifyInvokeError keeps domain categories set by the capability and marks everything else unavailable.
func classifyInvokeError(err error) error {
	if errors.Is(err, domain.ErrJudgeUnavailable) ||
		errors.Is(err, domain.ErrMalformedJudgeOutput) ||
		errors.Is(err, domain.ErrJudgeBudgetExceeded) {
		return fmt.Errorf("invoke judge: %w", err)
	}
	return fmt.Errorf("invoke judge: %w: %w", domain.ErrJudgeUnavailable, err)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrMalformedJudgeOutput):
		return "malformed"
	case errors.Is(err, domain.ErrJudgeBudgetExceeded):
		return "budget_exceeded"
	}
	return "unavailable"
}
