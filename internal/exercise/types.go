package exercise

import (
	"time"

	"assistdojo/internal/grading"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

const (
	EventStarted    = "started"
	EventStepPassed = "step_passed"
	EventStepFailed = "step_failed"
	EventHint       = "hint"
	EventSkipped    = "skipped"
	EventRestarted  = "restarted"
	EventCompleted  = "completed"
)

type StepResult struct {
	StepID       string `json:"step_id"`
	Passed       bool   `json:"passed"`
	PointsEarned int    `json:"points_earned"`
	Feedback     string `json:"feedback"`
	Skipped      bool   `json:"skipped,omitempty"`
}

type RunState struct {
	DefinitionID string            `json:"definition_id"`
	Fingerprint  uint64            `json:"fingerprint"`
	Status       Status            `json:"status"`
	CurrentStep  int               `json:"current_step"`
	Attempts     int               `json:"attempts"`
	HintsUsed    int               `json:"hints_used"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  time.Time         `json:"completed_at,omitempty"`
	Answers      map[string]string `json:"answers"`
	StepResults  []StepResult      `json:"step_results"`
	CompletionID string            `json:"completion_id,omitempty"`
}

func (s RunState) clone() RunState {
	out := s
	if s.Answers != nil {
		out.Answers = make(map[string]string, len(s.Answers))
		for k, v := range s.Answers {
			out.Answers[k] = v
		}
	}
	out.StepResults = append([]StepResult(nil), s.StepResults...)
	return out
}

// BasePoints sums the points earned so far.
func (s RunState) BasePoints() int {
	total := 0
	for _, r := range s.StepResults {
		total += r.PointsEarned
	}
	return total
}

type Completion struct {
	ID              string        `json:"id"`
	LearnerKey      string        `json:"learner_key"`
	DefinitionID    string        `json:"definition_id"`
	Kind            string        `json:"kind"`
	Category        string        `json:"category"`
	FinalScore      int           `json:"final_score"`
	BasePoints      int           `json:"base_points"`
	PointsTotal     int           `json:"points_total"`
	Duration        time.Duration `json:"duration"`
	Attempts        int           `json:"attempts"`
	HintsUsed       int           `json:"hints_used"`
	Skipped         int           `json:"skipped"`
	EfficiencyBonus bool          `json:"efficiency_bonus"`
	StepResults     []StepResult  `json:"step_results"`
	Concepts        []string      `json:"concepts,omitempty"`
	ReviewDays      []int         `json:"review_days,omitempty"`
	Score           grading.Score `json:"score"`
	CompletedAt     time.Time     `json:"completed_at"`
}

type Event struct {
	Type         string         `json:"type"`
	DefinitionID string         `json:"definition_id"`
	Step         int            `json:"step"`
	At           time.Time      `json:"at"`
	Fields       map[string]any `json:"fields,omitempty"`
}

// Reply is returned by every runner operation. Step is the zero-based index of the
// current step; it equals Total once the run is complete. Err carries one of the
// package sentinels when the call was rejected and nothing changed.
type Reply struct {
	Text       string
	Status     Status
	Step       int
	Total      int
	Validation *grading.Result
	Completion *Completion
	Err        error
}
