package judge

import (
	"context"
	"encoding/json"

	"github.com/kailas-cloud/trackjudge/internal/domain"
)

// Capability invokes the external judging agent.
type Capability interface {
	Invoke(ctx context.Context, systemPrompt string, conversation []domain.Message) (json.RawMessage, error)
}
