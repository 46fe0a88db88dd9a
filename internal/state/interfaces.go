package state

import (
	"context"
	"time"
)

type Store interface {
	EnsureSchema(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	RecordCompletion(ctx context.Context, rec CompletionRecord) error
	ListCompletions(ctx context.Context, learnerKey string) ([]CompletionRecord, error)
	GetProgressMap(ctx context.Context, learnerKey string) (map[string]DefinitionProgress, error)
	GetSummary(ctx context.Context, learnerKey string) (Summary, error)
	EnqueueReviewConcepts(ctx context.Context, learnerKey, sourceID string, concepts []string, reviewDays []int, now time.Time) error
	CountDueReviews(ctx context.Context, learnerKey string, at time.Time) (int, error)
	Close() error
}

// CompletionRecord is the stored form of one finished run.
type CompletionRecord struct {
	ID              string
	LearnerKey      string
	DefinitionID    string
	Kind            string
	Category        string
	FinalScore      int
	BasePoints      int
	PointsTotal     int
	DurationMS      int64
	Attempts        int
	HintsUsed       int
	Skipped         int
	EfficiencyBonus bool
	CompletedAt     time.Time
}

type DefinitionProgress struct {
	DefinitionID    string
	CompletedCount  int
	BestScore       int
	BestTimeMS      int64
	LastCompletedTS time.Time
}

type Summary struct {
	Completions int
	Definitions int
	Attempts    int
	HintsUsed   int
	TotalScore  int
}

var defaultReviewDays = []int{1, 3, 7}
