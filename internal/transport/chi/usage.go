package chi

import (
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"

	domusage "github.com/kailas-cloud/trackjudge/internal/domain/usage"
)

// UsageMetrics is the traffic section of GET /usage.
type UsageMetrics struct {
	JudgeRequests int64 `json:"judge_requests"`
	Tokens        int64 `json:"tokens"`
}

// BudgetStatus is the budget section of GET /usage. A zero limit means unlimited.
type BudgetStatus struct {
	TokensLimit     int64      `json:"tokens_limit"`
	TokensRemaining *int64     `json:"tokens_remaining,omitempty"`
	IsExhausted     bool       `json:"is_exhausted"`
	ResetsAt        *time.Time `json:"resets_at,omitempty"`
}

// UsageResponse is the body of GET /usage.
type UsageResponse struct {
	Period        string       `json:"period"`
	Provider      string       `json:"provider,omitempty"`
	PeriodStartAt *time.Time   `json:"period_start_at,omitempty"`
	PeriodEndAt   *time.Time   `json:"period_end_at,omitempty"`
	Usage         UsageMetrics `json:"usage"`
	Budget        BudgetStatus `json:"budget"`
}

// GetUsage handles GET /usage?period=day|month|total.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	var raw string
	if err := runtime.BindQueryParameter("form", true, false, "period", r.URL.Query(), &raw); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "invalid format for parameter period")
		return
	}
	period, err := domusage.ParsePeriod(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}

	report := s.usage.GetReport(r.Context(), period)

	resp := UsageResponse{
		Period:   string(report.Period()),
		Provider: report.Provider(),
		Usage: UsageMetrics{
			JudgeRequests: report.Metrics().JudgeRequests(),
			Tokens:        report.Metrics().Tokens(),
		},
		Budget: BudgetStatus{
			TokensLimit: report.Budget().TokensLimit(),
			IsExhausted: report.Budget().IsExhausted(),
		},
	}

	if !report.Budget().Unlimited() {
		remaining := report.Budget().TokensRemaining()
		resp.Budget.TokensRemaining = &remaining
	}

	if report.PeriodStart() > 0 {
		start := time.UnixMilli(report.PeriodStart()).UTC()
		end := time.UnixMilli(report.PeriodEnd()).UTC()
		resp.PeriodStartAt = &start
		resp.PeriodEndAt = &end
	}

	if report.Budget().ResetsAt() > 0 {
		resetsAt := time.UnixMilli(report.Budget().ResetsAt()).UTC()
		resp.Budget.ResetsAt = &resetsAt
	}

	writeJSON(w, http.StatusOK, resp)
}
