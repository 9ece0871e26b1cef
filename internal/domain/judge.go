package domain

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a conversation turn.
type Role string

// RoleUser marks a turn written by the caller.
const RoleUser Role = "user"

// Message is one turn of the conversation handed to a judging capability.
type Message struct {
	Role    Role
	Content string
}

// Capability is the external judging contract shared between layers.
// Implementations return the raw structured result; validation happens in the judge use case.
type Capability interface {
	Invoke(ctx context.Context, systemPrompt string, conversation []Message) (json.RawMessage, error)
}

// HealthChecker verifies judging capability availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
