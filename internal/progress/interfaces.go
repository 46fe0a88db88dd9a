package progress

import (
	"context"
	"time"

	"assistdojo/internal/state"
)

// Store is the part of the state store the tracker writes to.
type Store interface {
	RecordCompletion(ctx context.Context, rec state.CompletionRecord) error
	EnqueueReviewConcepts(ctx context.Context, learnerKey, sourceID string, concepts []string, reviewDays []int, now time.Time) error
}

// Reader is the part of the state store a report is built from.
type Reader interface {
	ListCompletions(ctx context.Context, learnerKey string) ([]state.CompletionRecord, error)
	GetProgressMap(ctx context.Context, learnerKey string) (map[string]state.DefinitionProgress, error)
	GetSummary(ctx context.Context, learnerKey string) (state.Summary, error)
	CountDueReviews(ctx context.Context, learnerKey string, at time.Time) (int, error)
}

type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}
