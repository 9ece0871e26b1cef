package scoring

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	"github.com/kailas-cloud/trackjudge/internal/repository/submissionlog"
)

// Service orchestrates judge → log → respond. It is the sole writer of the submission log.
type Service struct {
	judge Judge
	log   SubmissionLog
	clock Clock
}

// New creates a scoring service over an explicitly owned log.
func New(judge Judge, log SubmissionLog) *Service {
	return &Service{judge: judge, log: log, clock: systemClock{}}
}

// WithClock overrides the logging clock.
func (s *Service) WithClock(c Clock) *Service {
	s.clock = c
	return s
}

// Score judges the submission and, only on success, records the original submission
// under a timestamp captured after the judge call returns.
func (s *Service) Score(ctx context.Context, sub domain.Submission) (domain.Response, error) {
	resp, err := s.judge.Judge(ctx, sub)
	if err != nil {
		return domain.Response{}, fmt.Errorf("judge submission: %w", err)
	}

	payload, err := sub.Canonical()
	if err != nil {
		return domain.Response{}, fmt.Errorf("serialize submission: %w", err)
	}

	// Fresh timestamp, independent of anything in the response.
	s.log.Record(s.clock.Now().UnixMilli(), payload)

	return resp, nil
}

// Log returns the submission log as of the call.
func (s *Service) Log(_ context.Context) []submissionlog.Entry {
	return s.log.Snapshot()
}

// Entry returns the submission logged at timestamp.
func (s *Service) Entry(_ context.Context, timestamp int64) (submissionlog.Entry, error) {
	e, err := s.log.Get(timestamp)
	if err != nil {
		return submissionlog.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}
