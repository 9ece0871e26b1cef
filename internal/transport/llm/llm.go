// Package llm holds helpers shared by the judging capability transports.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	"github.com/kailas-cloud/trackjudge/internal/metrics"
)

// ExtractJSON strips markdown code fences and surrounding prose-free whitespace from model output.
// Text without fences is returned trimmed.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "```json"); start >= 0 {
		body := text[start+len("```json"):]
		if end := strings.Index(body, "```"); end >= 0 {
			body = body[:end]
		}
		return strings.TrimSpace(body)
	}

	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// RawVerdict turns model text into a raw verdict payload.
// Empty output is reported as malformed, not as a transport failure.
func RawVerdict(text string) (json.RawMessage, error) {
	body := ExtractJSON(text)
	if body == "" {
		return nil, fmt.Errorf("empty judge response: %w", domain.ErrMalformedJudgeOutput)
	}
	return json.RawMessage(body), nil
}

// VerdictProperties returns the verdict schema's properties and required list as plain maps,
// for SDKs that take tool schemas as map[string]any.
func VerdictProperties() (map[string]any, []string, error) {
	data, err := json.Marshal(domain.VerdictSchema())
	if err != nil {
		return nil, nil, fmt.Errorf("marshal verdict schema: %w", err)
	}
	var s struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, nil, fmt.Errorf("unmarshal verdict schema: %w", err)
	}
	return s.Properties, s.Required, nil
}

// UsageFunc receives the total tokens billed for one successful round-trip.
type UsageFunc func(tokens int64)

// Observation carries the transport-level outcome of one provider round-trip.
type Observation struct {
	Provider     string
	Model        string
	Start        time.Time
	InputTokens  int64
	OutputTokens int64
	ErrorType    string // empty on success
	OnUsage      UsageFunc
}

// Record writes an Observation to the judge transport metrics and reports usage.
func Record(o Observation) {
	if o.ErrorType != "" {
		metrics.JudgeRequestsTotal.WithLabelValues(o.Provider, o.Model, o.ErrorType).Inc()
		return
	}
	if total := o.InputTokens + o.OutputTokens; o.OnUsage != nil && total > 0 {
		o.OnUsage(total)
	}
	metrics.JudgeRequestsTotal.WithLabelValues(o.Provider, o.Model, "success").Inc()
	metrics.JudgeRequestDuration.WithLabelValues(o.Provider, o.Model).Observe(time.Since(o.Start).Seconds())
	if o.InputTokens > 0 {
		metrics.JudgeTokensTotal.WithLabelValues(o.Provider, o.Model, "input").Add(float64(o.InputTokens))
	}
	if o.OutputTokens > 0 {
		metrics.JudgeTokensTotal.WithLabelValues(o.Provider, o.Model, "output").Add(float64(o.OutputTokens))
	}
}
