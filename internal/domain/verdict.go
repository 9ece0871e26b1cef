package domain

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/invopop/jsonschema"
)

// Verdict is the structured result a judging capability must produce.
type Verdict struct {
	Score float64 `json:"score" jsonschema:"minimum=0,maximum=1" jsonschema_description:"How well the candidate file matches the requested track, from 0 (unrelated) to 1 (exact match)"` //nolint:lll // struct tag
}

// VerdictSchemaName names the schema in provider requests.
const VerdictSchemaName = "verdict"

// VerdictSchema returns the JSON schema of Verdict: a closed object with a required score in [0, 1].
func VerdictSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	s := r.Reflect(&Verdict{})
	// Providers reject meta keywords in strict mode.
	s.Version = ""
	s.ID = ""
	return s
}

// NewScore validates a raw score against the closed interval [0, 1].
func NewScore(v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: score is not a finite number", ErrMalformedJudgeOutput)
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("%w: score %v outside [0, 1]", ErrMalformedJudgeOutput, v)
	}
	return v, nil
}

// ParseVerdict validates judge output against the verdict schema and returns the score.
func ParseVerdict(raw json.RawMessage) (float64, error) {
	var v struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMalformedJudgeOutput, err)
	}
	if v.Score == nil {
		return 0, fmt.Errorf("%w: score is missing", ErrMalformedJudgeOutput)
	}
	return NewScore(*v.Score)
}
