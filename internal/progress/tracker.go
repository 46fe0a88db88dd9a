package progress

import (
	"context"

	"assistdojo/internal/exercise"
	"assistdojo/internal/state"
)

// Tracker records finished runs. It satisfies exercise.CompletionSink and never
// reports failures back to the runner.
type Tracker struct {
	store  Store
	logger Logger
}

func NewTracker(store Store, logger Logger) *Tracker {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Tracker{store: store, logger: logger}
}

func (t *Tracker) RecordCompletion(ctx context.Context, c exercise.Completion) {
	if t == nil || t.store == nil {
		return
	}
	rec := Record(c)
	if err := t.store.RecordCompletion(ctx, rec); err != nil {
		t.logger.Error("progress.record_failed", map[string]any{"definition": c.DefinitionID, "completion_id": c.ID, "error": err.Error()})
		return
	}
	if err := t.store.EnqueueReviewConcepts(ctx, c.LearnerKey, c.DefinitionID, c.Concepts, c.ReviewDays, c.CompletedAt); err != nil {
		t.logger.Error("progress.review_enqueue_failed", map[string]any{"definition": c.DefinitionID, "error": err.Error()})
	}
	t.logger.Info("progress.recorded", map[string]any{
		"definition":  c.DefinitionID,
		"final_score": c.FinalScore,
		"concepts":    len(c.Concepts),
	})
}

// Record converts a runner completion into its stored form.
func Record(c exercise.Completion) state.CompletionRecord {
	return state.CompletionRecord{
		ID:              c.ID,
		LearnerKey:      c.LearnerKey,
		DefinitionID:    c.DefinitionID,
		Kind:            c.Kind,
		Category:        c.Category,
		FinalScore:      c.FinalScore,
		BasePoints:      c.BasePoints,
		PointsTotal:     c.PointsTotal,
		DurationMS:      c.Duration.Milliseconds(),
		Attempts:        c.Attempts,
		HintsUsed:       c.HintsUsed,
		Skipped:         c.Skipped,
		EfficiencyBonus: c.EfficiencyBonus,
		CompletedAt:     c.CompletedAt,
	}
}

type nopLogger struct{}

func (nopLogger) Info(string, map[string]any)  {}
func (nopLogger) Error(string, map[string]any) {}
