package state

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps everything in process memory. It backs ephemeral sessions and
// tests and follows the same rules as SQLiteStore.
type MemoryStore struct {
	mu          sync.Mutex
	kv          map[string][]byte
	completions map[string]CompletionRecord
	order       []string
	progress    map[string]map[string]DefinitionProgress
	reviews     map[string]map[reviewKey]struct{}
}

type reviewKey struct {
	concept string
	source  string
	date    string
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		kv:          map[string][]byte{},
		completions: map[string]CompletionRecord{},
		progress:    map[string]map[string]DefinitionProgress{},
		reviews:     map[string]map[reviewKey]struct{}{},
	}
}

func (m *MemoryStore) EnsureSchema(context.Context) error { return nil }

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, v...), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("set: empty key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = append([]byte{}, value...)
	return nil
}

func (m *MemoryStore) RecordCompletion(_ context.Context, rec CompletionRecord) error {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.DefinitionID) == "" {
		return fmt.Errorf("record completion: id and definition id are required")
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.completions[rec.ID]; ok {
		return nil
	}
	m.completions[rec.ID] = rec
	m.order = append(m.order, rec.ID)

	byDef := m.progress[rec.LearnerKey]
	if byDef == nil {
		byDef = map[string]DefinitionProgress{}
		m.progress[rec.LearnerKey] = byDef
	}
	p := byDef[rec.DefinitionID]
	p.DefinitionID = rec.DefinitionID
	p.CompletedCount++
	p.BestScore = max(p.BestScore, rec.FinalScore)
	if rec.DurationMS > 0 && (p.BestTimeMS == 0 || rec.DurationMS < p.BestTimeMS) {
		p.BestTimeMS = rec.DurationMS
	}
	if rec.CompletedAt.After(p.LastCompletedTS) {
		p.LastCompletedTS = rec.CompletedAt
	}
	byDef[rec.DefinitionID] = p
	return nil
}

func (m *MemoryStore) ListCompletions(_ context.Context, learnerKey string) ([]CompletionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CompletionRecord
	for _, id := range m.order {
		if rec := m.completions[id]; rec.LearnerKey == learnerKey {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CompletedAt.Before(out[j].CompletedAt)
	})
	return out, nil
}

func (m *MemoryStore) GetProgressMap(_ context.Context, learnerKey string) (map[string]DefinitionProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]DefinitionProgress{}
	for id, p := range m.progress[learnerKey] {
		out[id] = p
	}
	return out, nil
}

func (m *MemoryStore) GetSummary(ctx context.Context, learnerKey string) (Summary, error) {
	recs, _ := m.ListCompletions(ctx, learnerKey)
	var out Summary
	defs := map[string]struct{}{}
	for _, rec := range recs {
		out.Completions++
		out.Attempts += rec.Attempts
		out.HintsUsed += rec.HintsUsed
		out.TotalScore += rec.FinalScore
		defs[rec.DefinitionID] = struct{}{}
	}
	out.Definitions = len(defs)
	return out, nil
}

func (m *MemoryStore) EnqueueReviewConcepts(_ context.Context, learnerKey, sourceID string, concepts []string, reviewDays []int, now time.Time) error {
	if strings.TrimSpace(sourceID) == "" || len(concepts) == 0 {
		return nil
	}
	if len(reviewDays) == 0 {
		reviewDays = defaultReviewDays
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	queue := m.reviews[learnerKey]
	if queue == nil {
		queue = map[reviewKey]struct{}{}
		m.reviews[learnerKey] = queue
	}
	for _, due := range reviewDueDates(concepts, reviewDays, now) {
		queue[reviewKey{concept: due.concept, source: sourceID, date: due.date}] = struct{}{}
	}
	return nil
}

func (m *MemoryStore) CountDueReviews(_ context.Context, learnerKey string, at time.Time) (int, error) {
	day := at.UTC().Format(dayLayout)
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.reviews[learnerKey] {
		if k.date <= day {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error { return nil }
