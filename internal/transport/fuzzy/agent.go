// Package fuzzy is an offline judging capability scoring by edit distance between the
// requested "track - artist - album" string and the candidate file name.
package fuzzy

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	"github.com/kailas-cloud/trackjudge/internal/transport/llm"
)

const (
	provider = "levenshtein"
	model    = "normalized-edit-distance"
)

// Agent implements domain.Capability without any network dependency.
type Agent struct{}

// NewAgent creates the edit-distance judge.
func NewAgent() *Agent {
	return &Agent{}
}

// Invoke reads the submission from the last conversation turn and returns {"score": x}.
// The system prompt and framing turns are ignored.
func (a *Agent) Invoke(
	ctx context.Context, _ string, conversation []domain.Message,
) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("judge request cancelled: %w", err)
	}
	if len(conversation) == 0 {
		return nil, fmt.Errorf("empty conversation: %w", domain.ErrMalformedJudgeOutput)
	}

	start := time.Now()

	sub, err := domain.ParseSubmission([]byte(conversation[len(conversation)-1].Content))
	if err != nil {
		llm.Record(llm.Observation{Provider: provider, Model: model, ErrorType: "bad_input"})
		return nil, fmt.Errorf("read submission from conversation: %v: %w", err, domain.ErrMalformedJudgeOutput)
	}

	raw, err := json.Marshal(domain.Verdict{Score: Score(sub.Query, sub.Track.Filename)})
	if err != nil {
		return nil, fmt.Errorf("marshal verdict: %w", err)
	}

	llm.Record(llm.Observation{Provider: provider, Model: model, Start: start})
	return raw, nil
}

// HealthCheck always succeeds.
func (a *Agent) HealthCheck(context.Context) error {
	return nil
}

// Score returns 1 - normalized edit distance between the query and the file's base name,
// compared case-insensitively. Identical strings score 1, completely different ones approach 0.
func Score(query domain.SearchItem, filename string) float64 {
	want := strings.ToLower(query.String())
	got := strings.ToLower(baseName(filename))

	longest := max(utf8.RuneCountInString(want), utf8.RuneCountInString(got))
	if longest == 0 {
		return 1
	}

	dist := levenshtein.ComputeDistance(want, got)
	return 1 - float64(dist)/float64(longest)
}

// baseName strips directories (either separator) and the extension.
func baseName(filename string) string {
	name := filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, path.Ext(name))
}
