package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	"github.com/kailas-cloud/trackjudge/internal/metrics"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"score":0.5}`, `{"score":0.5}`},
		{"whitespace", "\n  {\"score\":0.5}  \n", `{"score":0.5}`},
		{"json fence", "```json\n{\"score\":0.5}\n```", `{"score":0.5}`},
		{"fence with prose", "Here you go:\n```json\n{\"score\":0.5}\n```\nDone.", `{"score":0.5}`},
		{"bare fence", "```\n{\"score\":0.5}\n```", `{"score":0.5}`},
		{"empty", "   ", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSON(tc.in); got != tc.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestRawVerdict_Empty(t *testing.T) {
	if _, err := RawVerdict("```json\n```"); !errors.Is(err, domain.ErrMalformedJudgeOutput) {
		t.Fatalf("expected ErrMalformedJudgeOutput, got %v", err)
	}
}

func TestRawVerdict_ValidatesDownstream(t *testing.T) {
	raw, err := RawVerdict("```json\n{\"score\":0.8}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	score, err := domain.ParseVerdict(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0.8 {
		t.Errorf("score = %v, want 0.8", score)
	}
}

func TestVerdictProperties(t *testing.T) {
	props, required, err := VerdictProperties()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	score, ok := props["score"].(map[string]any)
	if !ok {
		t.Fatalf("score property missing: %v", props)
	}
	if score["type"] != "number" {
		t.Errorf("score type = %v, want number", score["type"])
	}
	if len(required) != 1 || required[0] != "score" {
		t.Errorf("required = %v, want [score]", required)
	}
}

func TestRecord(t *testing.T) {
	Record(Observation{
		Provider: "test", Model: "m", Start: time.Now(),
		InputTokens: 12, OutputTokens: 3,
	})
	Record(Observation{Provider: "test", Model: "m", ErrorType: "api_error"})

	if v := testutil.ToFloat64(metrics.JudgeRequestsTotal.WithLabelValues("test", "m", "success")); v < 1 {
		t.Errorf("expected success count >= 1, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.JudgeRequestsTotal.WithLabelValues("test", "m", "api_error")); v < 1 {
		t.Errorf("expected api_error count >= 1, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.JudgeTokensTotal.WithLabelValues("test", "m", "input")); v < 12 {
		t.Errorf("expected input tokens >= 12, got %f", v)
	}
}

func TestRecord_ReportsUsage(t *testing.T) {
	var got int64
	onUsage := func(tokens int64) { got += tokens }

	Record(Observation{Provider: "test", Model: "u", Start: time.Now(), InputTokens: 30, OutputTokens: 5, OnUsage: onUsage})
	Record(Observation{Provider: "test", Model: "u", ErrorType: "api_error", InputTokens: 99, OnUsage: onUsage})

	if got != 35 {
		t.Errorf("usage = %d, want 35", got)
	}
}
