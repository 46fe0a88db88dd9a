package exercise

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"assistdojo/internal/catalog"
	"assistdojo/internal/grading"
	"assistdojo/internal/simulator"
)

var (
	ErrNotStarted        = errors.New("no exercise in progress")
	ErrCompleted         = errors.New("exercise already completed")
	ErrUnknownDefinition = errors.New("unknown exercise")
)

const DefaultKey = "default"

type RunnerConfig struct {
	Catalog     Catalog
	Simulator   Simulator
	Validator   grading.Grader
	Store       Store
	Completions CompletionSink
	Events      EventSink
	Logger      Logger
	Clock       func() time.Time
	// Key namespaces persisted snapshots, normally the learner id.
	Key string
}

// Runner drives one learner through one definition at a time. It is not safe for
// concurrent use; create one Runner per learner.
type Runner struct {
	catalog     Catalog
	sim         Simulator
	validator   grading.Grader
	store       Store
	completions CompletionSink
	events      EventSink
	logger      Logger
	clock       func() time.Time
	key         string

	def   catalog.Definition
	state RunState
}

func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		catalog:     cfg.Catalog,
		sim:         cfg.Simulator,
		validator:   cfg.Validator,
		store:       cfg.Store,
		completions: cfg.Completions,
		events:      cfg.Events,
		logger:      cfg.Logger,
		clock:       cfg.Clock,
		key:         cfg.Key,
		state:       RunState{Status: StatusNotStarted},
	}
	if r.catalog == nil {
		r.catalog = catalog.New()
	}
	if r.sim == nil {
		r.sim = simulator.New(simulator.Options{})
	}
	if r.validator == nil {
		r.validator = grading.NewValidator()
	}
	if r.logger == nil {
		r.logger = nopLogger{}
	}
	if r.clock == nil {
		r.clock = time.Now
	}
	if r.key == "" {
		r.key = DefaultKey
	}
	return r
}

// State returns a copy of the current run.
func (r *Runner) State() RunState {
	return r.state.clone()
}

// Definition returns the definition of the current run, if any.
func (r *Runner) Definition() (catalog.Definition, bool) {
	if r.state.Status == StatusNotStarted {
		return catalog.Definition{}, false
	}
	return r.def, true
}

func (r *Runner) Simulator() Simulator {
	return r.sim
}

func (r *Runner) Start(ctx context.Context, id string) Reply {
	def, err := r.catalog.Get(id)
	if err != nil {
		r.logger.Info("runner.start_rejected", map[string]any{"definition": id, "error": err.Error()})
		return r.reject(fmt.Sprintf("Unknown exercise %q.", id), ErrUnknownDefinition)
	}
	r.def = def
	r.state = RunState{
		DefinitionID: def.ID,
		Fingerprint:  r.catalog.Fingerprint(def.ID),
		Status:       StatusInProgress,
		StartedAt:    r.clock(),
		Answers:      map[string]string{},
	}
	r.emit(ctx, EventStarted, nil)
	r.logger.Info("runner.start", map[string]any{"definition": def.ID, "key": r.key})
	r.persist(ctx)

	var b strings.Builder
	b.WriteString(def.Title)
	if def.IsAssessment() {
		b.WriteString(" (assessment)")
	}
	b.WriteString("\n\n")
	b.WriteString(r.instructionText())
	return r.reply(b.String())
}

func (r *Runner) Submit(ctx context.Context, input string) Reply {
	if rej, ok := r.requireInProgress(); !ok {
		return rej
	}
	resp := r.sim.Process(input)
	if resp.Unknown {
		return r.reply(resp.Output)
	}

	step := r.def.Steps[r.state.CurrentStep]
	res := r.validator.Validate(step, input, resp.Output)
	r.state.Answers[step.ID] = input

	fields := map[string]any{"definition": r.def.ID, "step": step.ID, "passed": res.Passed}
	r.logger.Info("runner.submit", fields)

	var b strings.Builder
	if resp.Output != "" {
		b.WriteString(resp.Output)
		b.WriteString("\n\n")
	}

	if !res.Passed {
		r.state.Attempts++
		r.emit(ctx, EventStepFailed, map[string]any{"step_id": step.ID, "missing": res.MissingTokens})
		r.persist(ctx)
		b.WriteString("Not yet. ")
		b.WriteString(nudge(step, res))
		out := r.reply(b.String())
		out.Validation = &res
		return out
	}

	r.state.StepResults = append(r.state.StepResults, StepResult{
		StepID:       step.ID,
		Passed:       true,
		PointsEarned: res.PointsEarned,
		Feedback:     res.Feedback,
	})
	r.state.CurrentStep++
	r.emit(ctx, EventStepPassed, map[string]any{"step_id": step.ID, "points": res.PointsEarned})
	b.WriteString(fmt.Sprintf("Step passed (+%d). %s", res.PointsEarned, res.Feedback))

	var completion *Completion
	if r.state.CurrentStep >= len(r.def.Steps) {
		completion = r.complete(ctx)
		b.WriteString("\n\n")
		b.WriteString(completionText(r.def, *completion))
	} else {
		b.WriteString("\n\n")
		b.WriteString(r.instructionText())
	}
	r.persist(ctx)

	out := r.reply(b.String())
	out.Validation = &res
	out.Completion = completion
	return out
}

func (r *Runner) Hint(ctx context.Context) Reply {
	if rej, ok := r.requireInProgress(); !ok {
		return rej
	}
	r.state.HintsUsed++
	idx := r.state.CurrentStep
	text := ""
	if idx < len(r.def.Hints) {
		text = r.def.Hints[idx]
	}
	if text == "" {
		text = "Keep going! Re-read the instruction and try one small command at a time."
	}
	r.emit(ctx, EventHint, map[string]any{"hints_used": r.state.HintsUsed})
	r.logger.Info("runner.hint", map[string]any{"definition": r.def.ID, "step": idx, "hints_used": r.state.HintsUsed})
	r.persist(ctx)
	return r.reply("Hint: " + text)
}

func (r *Runner) Skip(ctx context.Context) Reply {
	if rej, ok := r.requireInProgress(); !ok {
		return rej
	}
	step := r.def.Steps[r.state.CurrentStep]
	r.state.StepResults = append(r.state.StepResults, StepResult{
		StepID:   step.ID,
		Feedback: "Skipped.",
		Skipped:  true,
	})
	r.state.CurrentStep++
	r.emit(ctx, EventSkipped, map[string]any{"step_id": step.ID})
	r.logger.Info("runner.skip", map[string]any{"definition": r.def.ID, "step": step.ID})

	text := "Skipped step " + step.ID + "."
	var completion *Completion
	if r.state.CurrentStep >= len(r.def.Steps) {
		completion = r.complete(ctx)
		text += "\n\n" + completionText(r.def, *completion)
	} else {
		text += "\n\n" + r.instructionText()
	}
	r.persist(ctx)

	out := r.reply(text)
	out.Completion = completion
	return out
}

// Restart discards the current run and starts the same definition again. Session
// side effects are kept.
func (r *Runner) Restart(ctx context.Context) Reply {
	if r.state.Status == StatusNotStarted {
		return r.reject("Nothing to restart. Start an exercise first.", ErrNotStarted)
	}
	id := r.state.DefinitionID
	r.emit(ctx, EventRestarted, nil)
	r.logger.Info("runner.restart", map[string]any{"definition": id})
	return r.Start(ctx, id)
}

func (r *Runner) requireInProgress() (Reply, bool) {
	switch r.state.Status {
	case StatusInProgress:
		return Reply{}, true
	case StatusCompleted:
		return r.reject("This exercise is already complete. Start another one or restart it.", ErrCompleted), false
	default:
		return r.reject("No exercise in progress. Start one first.", ErrNotStarted), false
	}
}

func (r *Runner) complete(ctx context.Context) *Completion {
	now := r.clock()
	duration := max(0, now.Sub(r.state.StartedAt))
	score := grading.FinalScore(grading.ScoreInput{
		BasePoints: r.state.BasePoints(),
		Duration:   duration,
		Estimated:  r.def.EstimatedDuration(),
		HintsUsed:  r.state.HintsUsed,
	})
	skipped := 0
	for _, sr := range r.state.StepResults {
		if sr.Skipped {
			skipped++
		}
	}
	c := Completion{
		ID:              ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		LearnerKey:      r.key,
		DefinitionID:    r.def.ID,
		Kind:            r.def.Kind,
		Category:        r.def.Category,
		FinalScore:      score.Total,
		BasePoints:      score.BasePoints,
		PointsTotal:     r.def.PointsTotal,
		Duration:        duration,
		Attempts:        r.state.Attempts,
		HintsUsed:       r.state.HintsUsed,
		Skipped:         skipped,
		EfficiencyBonus: score.EfficiencyBonus,
		StepResults:     append([]StepResult(nil), r.state.StepResults...),
		Concepts:        append([]string(nil), r.def.Concepts...),
		ReviewDays:      append([]int(nil), r.def.ReviewDays...),
		Score:           score,
		CompletedAt:     now,
	}
	r.state.Status = StatusCompleted
	r.state.CompletedAt = now
	r.state.CompletionID = c.ID
	r.emit(ctx, EventCompleted, map[string]any{"final_score": c.FinalScore, "completion_id": c.ID})
	r.logger.Info("runner.completed", map[string]any{
		"definition":  r.def.ID,
		"final_score": c.FinalScore,
		"duration_ms": duration.Milliseconds(),
		"hints_used":  c.HintsUsed,
	})
	if r.completions != nil {
		r.completions.RecordCompletion(ctx, c)
	}
	return &c
}

func (r *Runner) instructionText() string {
	idx := r.state.CurrentStep
	if idx >= len(r.def.Steps) {
		return ""
	}
	instruction := ""
	if idx < len(r.def.Instructions) {
		instruction = r.def.Instructions[idx]
	}
	return fmt.Sprintf("Step %d/%d: %s", idx+1, len(r.def.Steps), instruction)
}

func nudge(step grading.Step, res grading.Result) string {
	if !res.CommandMatched && step.ExpectedCommand != "" {
		return fmt.Sprintf("Try using `%s`.", step.ExpectedCommand)
	}
	if len(res.MissingTokens) > 0 {
		return fmt.Sprintf("The response should mention %q.", res.MissingTokens[0])
	}
	return res.Feedback
}

func completionText(def catalog.Definition, c Completion) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s complete! Final score: %d (%d/%d points", def.Title, c.FinalScore, c.BasePoints, def.PointsTotal))
	if c.EfficiencyBonus {
		b.WriteString(", speed bonus")
	}
	if c.HintsUsed > 0 {
		b.WriteString(fmt.Sprintf(", %d hints", c.HintsUsed))
	}
	b.WriteString(").")
	if def.NextID != "" {
		b.WriteString("\nNext up: " + def.NextID)
	}
	return b.String()
}

func (r *Runner) reply(text string) Reply {
	total := 0
	if r.state.Status != StatusNotStarted {
		total = len(r.def.Steps)
	}
	return Reply{
		Text:   text,
		Status: r.state.Status,
		Step:   r.state.CurrentStep,
		Total:  total,
	}
}

func (r *Runner) reject(text string, err error) Reply {
	out := r.reply(text)
	out.Err = err
	return out
}

func (r *Runner) emit(ctx context.Context, kind string, fields map[string]any) {
	if r.events == nil {
		return
	}
	r.events.Emit(ctx, Event{
		Type:         kind,
		DefinitionID: r.state.DefinitionID,
		Step:         r.state.CurrentStep,
		At:           r.clock(),
		Fields:       fields,
	})
}

type nopLogger struct{}

func (nopLogger) Info(string, map[string]any)  {}
func (nopLogger) Error(string, map[string]any) {}
