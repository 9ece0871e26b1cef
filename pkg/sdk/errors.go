package trackjudge

import (
	"fmt"

	"github.com/kailas-cloud/trackjudge/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrMalformedSubmission  = domain.ErrMalformedSubmission
	ErrMalformedJudgeOutput = domain.ErrMalformedJudgeOutput
	ErrJudgeUnavailable     = domain.ErrJudgeUnavailable
	ErrJudgeBudgetExceeded  = domain.ErrJudgeBudgetExceeded
	ErrEntryNotFound        = domain.ErrEntryNotFound
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("trackjudge: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("trackjudge: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the response code to its sentinel, if any.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "bad_request":
		return ErrMalformedSubmission
	case "malformed_judge_output":
		return ErrMalformedJudgeOutput
	case "judge_unavailable":
		return ErrJudgeUnavailable
	case "judge_budget_exceeded":
		return ErrJudgeBudgetExceeded
	case "not_found":
		return ErrEntryNotFound
	default:
		return nil
	}
}
