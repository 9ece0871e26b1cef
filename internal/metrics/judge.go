package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Judge Prometheus metrics.
var (
	// JudgeRequestsTotal counts provider round-trips by outcome.
	JudgeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackjudge",
			Name:      "judge_requests_total",
			Help:      "Total number of judging capability invocations",
		},
		[]string{"provider", "model", "status"},
	)

	JudgeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trackjudge",
			Name:      "judge_request_duration_seconds",
			Help:      "Judging capability round-trip duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	JudgeTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackjudge",
			Name:      "judge_tokens_total",
			Help:      "Total tokens consumed by the judging capability",
		},
		[]string{"provider", "model", "type"}, // "input" / "output"
	)

	// JudgeVerdictsTotal counts adapter outcomes after validation.
	JudgeVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackjudge",
			Name:      "judge_verdicts_total",
			Help:      "Judge adapter outcomes",
		},
		[]string{"result"}, // "ok" / "malformed" / "unavailable" / "budget_exceeded"
	)

	JudgeScores = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "trackjudge",
			Name:      "judge_scores",
			Help:      "Distribution of accepted judge scores",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)

	SubmissionLogEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trackjudge",
			Name:      "submission_log_entries",
			Help:      "Number of distinct timestamps in the submission log",
		},
	)
)

var registerJudgeOnce sync.Once

// RegisterJudgeMetrics registers judge and submission log metrics on the default registry.
// Safe to call more than once.
func RegisterJudgeMetrics() {
	registerJudgeOnce.Do(func() {
		prometheus.MustRegister(
			JudgeRequestsTotal,
			JudgeRequestDuration,
			JudgeTokensTotal,
			JudgeVerdictsTotal,
			JudgeScores,
			SubmissionLogEntries,
		)
	})
}
