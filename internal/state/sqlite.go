package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// EnsureSchema applies the embedded migrations. Running it on an up to date
// database is a no-op.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("ensure schema: driver: %w", err)
	}
	src, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return fmt.Errorf("ensure schema: source: %w", err)
	}
	defer func() { _ = src.Close() }()

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ensure schema: up: %w", err)
	}
	return nil
}

// Get returns nil, nil for a missing key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("set: empty key")
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv(key, value, updated_ts) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts
	`, key, value, time.Now().UTC().Format(timeLayout))
	return err
}

// RecordCompletion stores the record and folds it into the definition progress.
// Recording the same completion id twice changes nothing.
func (s *SQLiteStore) RecordCompletion(ctx context.Context, rec CompletionRecord) (err error) {
	if strings.TrimSpace(rec.ID) == "" || strings.TrimSpace(rec.DefinitionID) == "" {
		return fmt.Errorf("record completion: id and definition id are required")
	}
	completed := rec.CompletedAt
	if completed.IsZero() {
		completed = time.Now().UTC()
	}
	completedTS := completed.UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO completions(
			id, learner_key, definition_id, kind, category, final_score, base_points,
			points_total, duration_ms, attempts, hints_used, skipped, efficiency_bonus, completed_ts
		) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		rec.ID,
		rec.LearnerKey,
		rec.DefinitionID,
		rec.Kind,
		rec.Category,
		max(0, rec.FinalScore),
		max(0, rec.BasePoints),
		max(0, rec.PointsTotal),
		max(0, rec.DurationMS),
		max(0, rec.Attempts),
		max(0, rec.HintsUsed),
		max(0, rec.Skipped),
		ifThen(rec.EfficiencyBonus, 1, 0),
		completedTS,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return tx.Commit()
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO definition_progress(learner_key, definition_id, completed_count, best_score, best_time_ms, last_completed_ts)
		VALUES(?, ?, 1, ?, ?, ?)
		ON CONFLICT(learner_key, definition_id) DO UPDATE SET
			completed_count = definition_progress.completed_count + 1,
			best_score = CASE
				WHEN excluded.best_score > definition_progress.best_score THEN excluded.best_score
				ELSE definition_progress.best_score
			END,
			best_time_ms = CASE
				WHEN excluded.best_time_ms > 0 AND (definition_progress.best_time_ms = 0 OR excluded.best_time_ms < definition_progress.best_time_ms) THEN excluded.best_time_ms
				ELSE definition_progress.best_time_ms
			END,
			last_completed_ts = CASE
				WHEN excluded.last_completed_ts > definition_progress.last_completed_ts THEN excluded.last_completed_ts
				ELSE definition_progress.last_completed_ts
			END
	`,
		rec.LearnerKey,
		rec.DefinitionID,
		max(0, rec.FinalScore),
		max(0, rec.DurationMS),
		completedTS,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ListCompletions returns the learner's completions, oldest first.
func (s *SQLiteStore) ListCompletions(ctx context.Context, learnerKey string) ([]CompletionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, learner_key, definition_id, kind, category, final_score, base_points, points_total,
			duration_ms, attempts, hints_used, skipped, efficiency_bonus, completed_ts
		FROM completions
		WHERE learner_key = ?
		ORDER BY completed_ts, id
	`, learnerKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CompletionRecord
	for rows.Next() {
		var (
			rec       CompletionRecord
			bonus     int
			completed string
		)
		if err := rows.Scan(
			&rec.ID, &rec.LearnerKey, &rec.DefinitionID, &rec.Kind, &rec.Category,
			&rec.FinalScore, &rec.BasePoints, &rec.PointsTotal, &rec.DurationMS,
			&rec.Attempts, &rec.HintsUsed, &rec.Skipped, &bonus, &completed,
		); err != nil {
			return nil, err
		}
		rec.EfficiencyBonus = bonus == 1
		if t, err := time.Parse(timeLayout, completed); err == nil {
			rec.CompletedAt = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) GetProgressMap(ctx context.Context, learnerKey string) (map[string]DefinitionProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT definition_id, completed_count, best_score, best_time_ms, last_completed_ts
		FROM definition_progress
		WHERE learner_key = ?
	`, learnerKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]DefinitionProgress{}
	for rows.Next() {
		var (
			p    DefinitionProgress
			last string
		)
		if err := rows.Scan(&p.DefinitionID, &p.CompletedCount, &p.BestScore, &p.BestTimeMS, &last); err != nil {
			return nil, err
		}
		if t, err := time.Parse(timeLayout, last); err == nil {
			p.LastCompletedTS = t
		}
		out[p.DefinitionID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) GetSummary(ctx context.Context, learnerKey string) (Summary, error) {
	var out Summary
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) AS completions,
			COUNT(DISTINCT definition_id) AS definitions,
			COALESCE(SUM(attempts), 0) AS attempts,
			COALESCE(SUM(hints_used), 0) AS hints_used,
			COALESCE(SUM(final_score), 0) AS total_score
		FROM completions
		WHERE learner_key = ?
	`, learnerKey)
	if err := row.Scan(&out.Completions, &out.Definitions, &out.Attempts, &out.HintsUsed, &out.TotalScore); err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *SQLiteStore) EnqueueReviewConcepts(ctx context.Context, learnerKey, sourceID string, concepts []string, reviewDays []int, now time.Time) (err error) {
	if strings.TrimSpace(sourceID) == "" || len(concepts) == 0 {
		return nil
	}
	if len(reviewDays) == 0 {
		reviewDays = defaultReviewDays
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, due := range reviewDueDates(concepts, reviewDays, now) {
		if _, err = tx.ExecContext(
			ctx,
			`INSERT OR IGNORE INTO review_queue(learner_key, concept, source_definition_id, due_date, created_ts) VALUES(?,?,?,?,?)`,
			learnerKey,
			due.concept,
			sourceID,
			due.date,
			now.UTC().Format(timeLayout),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) CountDueReviews(ctx context.Context, learnerKey string, at time.Time) (int, error) {
	var due int
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM review_queue
		WHERE learner_key = ? AND completed = 0 AND due_date <= ?
	`, learnerKey, at.UTC().Format(dayLayout))
	if err := row.Scan(&due); err != nil {
		return 0, err
	}
	return due, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

const (
	timeLayout = "2006-01-02T15:04:05Z07:00"
	dayLayout  = "2006-01-02"
)

type reviewDue struct {
	concept string
	date    string
}

func reviewDueDates(concepts []string, reviewDays []int, now time.Time) []reviewDue {
	var out []reviewDue
	for _, raw := range concepts {
		concept := strings.TrimSpace(raw)
		if concept == "" {
			continue
		}
		for _, day := range reviewDays {
			if day <= 0 {
				continue
			}
			out = append(out, reviewDue{concept: concept, date: now.UTC().AddDate(0, 0, day).Format(dayLayout)})
		}
	}
	return out
}

func ifThen(cond bool, yes, no int) int {
	if cond {
		return yes
	}
	return no
}
