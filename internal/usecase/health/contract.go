package health

import "context"

// JudgeChecker checks judging capability availability.
type JudgeChecker interface {
	HealthCheck(ctx context.Context) error
}
