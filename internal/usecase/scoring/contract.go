package scoring

import (
	"context"
	"time"

	"github.com/kailas-cloud/trackjudge/internal/domain"
	"github.com/kailas-cloud/trackjudge/internal/repository/submissionlog"
)

// Judge scores a single submission.
type Judge interface {
	Judge(ctx context.Context, sub domain.Submission) (domain.Response, error)
}

// SubmissionLog records and exposes logged submissions.
type SubmissionLog interface {
	Record(timestamp int64, payload string)
	Snapshot() []submissionlog.Entry
	Get(timestamp int64) (submissionlog.Entry, error)
}

// Clock supplies logging timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
