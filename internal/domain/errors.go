package domain

import "errors"

var (
	// ErrMalformedSubmission signals a request body that is not a structurally valid Submission.
	ErrMalformedSubmission = errors.New("malformed submission")
	// ErrMalformedJudgeOutput signals judge output that fails the verdict schema.
	ErrMalformedJudgeOutput = errors.New("malformed judge output")
	// ErrJudgeUnavailable signals a failed invocation of the judging capability.
	ErrJudgeUnavailable = errors.New("judge unavailable")
	// ErrJudgeBudgetExceeded signals that the judge token budget for the period is spent.
	ErrJudgeBudgetExceeded = errors.New("judge token budget exceeded")
	// ErrEntryNotFound signals a missing submission log entry.
	ErrEntryNotFound = errors.New("entry not found")
)
