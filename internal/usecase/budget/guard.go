package budget

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/trackjudge/internal/domain"
)

// Guard is a domain.Capability decorator that refuses invocations once the budget is spent.
// Token usage itself is reported by the transport through Tracker.Record.
type Guard struct {
	inner   domain.Capability
	tracker *Tracker
}

// NewGuard wraps inner with budget enforcement.
func NewGuard(inner domain.Capability, tracker *Tracker) *Guard {
	return &Guard{inner: inner, tracker: tracker}
}

// Invoke implements domain.Capability.
func (g *Guard) Invoke(
	ctx context.Context, systemPrompt string, conversation []domain.Message,
) (json.RawMessage, error) {
	if err := g.tracker.Check(ctx); err != nil {
		return nil, err
	}
	g.tracker.CountRequest()
	return g.inner.Invoke(ctx, systemPrompt, conversation)
}

// HealthCheck delegates to the wrapped capability when it can be probed.
func (g *Guard) HealthCheck(ctx context.Context) error {
	hc, ok := g.inner.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("judge health check: %w", err)
	}
	return nil
}
