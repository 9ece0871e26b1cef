package trackjudge

import (
	"time"

	"github.com/kailas-cloud/trackjudge/internal/domain"
)

// SearchItem is the desired target of a search.
type SearchItem = domain.SearchItem

// DownloadableFile is a candidate file offered by a remote peer.
type DownloadableFile = domain.DownloadableFile

// Submission is a (query, candidate) pair sent for judging.
type Submission = domain.Submission

// Response is the service's verdict for one submission.
type Response = domain.Response

// Entry is one submission from the service log.
type Entry struct {
	Timestamp int64  // Unix milliseconds
	Payload   string // serialized Submission
}

// Submission decodes the logged payload.
func (e Entry) Submission() (Submission, error) {
	return domain.ParseSubmission([]byte(e.Payload))
}

// HealthStatus is the service health report.
type HealthStatus struct {
	Status  string            `json:"status"` // "ok" or "degraded"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version"`
}

// Usage is the judge token usage report for a period.
type Usage struct {
	Period        string     `json:"period"` // "day", "month" or "total"
	Provider      string     `json:"provider"`
	PeriodStartAt *time.Time `json:"period_start_at"`
	PeriodEndAt   *time.Time `json:"period_end_at"`
	Usage         struct {
		JudgeRequests int64 `json:"judge_requests"`
		Tokens        int64 `json:"tokens"`
	} `json:"usage"`
	Budget struct {
		TokensLimit     int64      `json:"tokens_limit"` // 0 = unlimited
		TokensRemaining *int64     `json:"tokens_remaining"`
		IsExhausted     bool       `json:"is_exhausted"`
		ResetsAt        *time.Time `json:"resets_at"`
	} `json:"budget"`
}
