package exercise

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistdojo/internal/catalog"
	"assistdojo/internal/grading"
	"assistdojo/internal/simulator"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fixedRand struct{}

func (fixedRand) IntN(int) int { return 0 }

type memStore struct {
	data   map[string][]byte
	writes int
	fail   error
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	return m.data[key], nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	if m.fail != nil {
		return m.fail
	}
	m.writes++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

type sinkRecorder struct{ records []Completion }

func (s *sinkRecorder) RecordCompletion(_ context.Context, c Completion) {
	s.records = append(s.records, c)
}

type eventRecorder struct{ types []string }

func (e *eventRecorder) Emit(_ context.Context, ev Event) { e.types = append(e.types, ev.Type) }

type logRecorder struct{ errors []string }

func (l *logRecorder) Info(string, map[string]any) {}
func (l *logRecorder) Error(msg string, _ map[string]any) {
	l.errors = append(l.errors, msg)
}

func twoStepDefinition() catalog.Definition {
	return catalog.Definition{
		Kind:             catalog.KindExercise,
		SchemaVersion:    1,
		ID:               "two-steps",
		Title:            "Two steps",
		Category:         "basics",
		Difficulty:       1,
		EstimatedMinutes: 5,
		Steps: []grading.Step{
			{ID: "where", ExpectedCommand: "pwd", ExpectedTokens: []string{simulator.DefaultCwd}, Points: 10},
			{ID: "make", ExpectedCommand: "mkdir", ExpectedTokens: []string{"created directory"}, Points: 10},
		},
		Instructions: []string{"Print the working directory.", "Create a directory."},
		Hints:        []string{"Use pwd."},
	}
}

type harness struct {
	runner *Runner
	clock  *fakeClock
	store  *memStore
	sink   *sinkRecorder
	events *eventRecorder
	logs   *logRecorder
}

func newHarness(t *testing.T, defs ...catalog.Definition) *harness {
	t.Helper()
	if len(defs) == 0 {
		defs = []catalog.Definition{twoStepDefinition()}
	}
	h := &harness{
		clock:  &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		store:  newMemStore(),
		sink:   &sinkRecorder{},
		events: &eventRecorder{},
		logs:   &logRecorder{},
	}
	h.runner = NewRunner(RunnerConfig{
		Catalog:     catalog.New(defs...),
		Simulator:   simulator.New(simulator.Options{Rand: fixedRand{}, Clock: h.clock.Now}),
		Store:       h.store,
		Completions: h.sink,
		Events:      h.events,
		Logger:      h.logs,
		Clock:       h.clock.Now,
		Key:         "learner-1",
	})
	return h
}

func TestScoreExamples(t *testing.T) {
	tests := []struct {
		name    string
		hints   int
		elapsed time.Duration
		want    int
	}{
		{name: "within estimate", elapsed: time.Minute, want: 24},
		{name: "one hint", hints: 1, elapsed: time.Minute, want: 21},
		{name: "over estimate", elapsed: 6 * time.Minute, want: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			require.NoError(t, h.runner.Start(ctx, "two-steps").Err)
			for i := 0; i < tt.hints; i++ {
				h.runner.Hint(ctx)
			}
			h.clock.Advance(tt.elapsed)
			require.True(t, h.runner.Submit(ctx, "pwd").Validation.Passed)
			reply := h.runner.Submit(ctx, "mkdir app")
			require.NotNil(t, reply.Completion)
			assert.Equal(t, tt.want, reply.Completion.FinalScore)
			assert.Equal(t, 20, reply.Completion.BasePoints)
			assert.Equal(t, StatusCompleted, reply.Status)
			assert.Equal(t, 2, reply.Step)
		})
	}
}

func TestCompletionEmittedExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.Start(ctx, "two-steps")
	h.runner.Submit(ctx, "pwd")
	h.runner.Submit(ctx, "mkdir app")
	require.Len(t, h.sink.records, 1)

	before := h.runner.State()
	sess := h.runner.Simulator().Session().Clone()
	for _, input := range []string{"pwd", "mkdir other"} {
		reply := h.runner.Submit(ctx, input)
		assert.ErrorIs(t, reply.Err, ErrCompleted)
		assert.Nil(t, reply.Completion)
	}
	assert.ErrorIs(t, h.runner.Hint(ctx).Err, ErrCompleted)
	assert.ErrorIs(t, h.runner.Skip(ctx).Err, ErrCompleted)
	assert.Len(t, h.sink.records, 1)
	assert.Equal(t, before, h.runner.State())
	assert.Equal(t, sess, h.runner.Simulator().Session())

	rec := h.sink.records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "learner-1", rec.LearnerKey)
	assert.Equal(t, rec.ID, h.runner.State().CompletionID)
	assert.Len(t, rec.StepResults, 2)
}

func TestFailedSubmitStaysOnStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.Start(ctx, "two-steps")

	reply := h.runner.Submit(ctx, "ls")
	require.NotNil(t, reply.Validation)
	assert.False(t, reply.Validation.Passed)
	assert.Contains(t, reply.Text, "Try using `pwd`.")
	assert.Equal(t, 0, reply.Step)

	h.runner.Submit(ctx, "pwd")
	reply = h.runner.Submit(ctx, "mkdir src")
	assert.Contains(t, reply.Text, `should mention "created directory"`)

	st := h.runner.State()
	assert.Equal(t, 2, st.Attempts)
	assert.Equal(t, 1, st.CurrentStep)
	assert.Equal(t, "mkdir src", st.Answers["make"])
	for _, r := range st.StepResults {
		assert.Contains(t, []int{0, 10}, r.PointsEarned)
	}
}

func TestStepIndexIsMonotonic(t *testing.T) {
	def := twoStepDefinition()
	def.ID = "three-steps"
	def.Steps = append(def.Steps, grading.Step{ID: "look", ExpectedCommand: "ls", ExpectedTokens: []string{"app/"}, Points: 5})
	def.Instructions = append(def.Instructions, "List files.")
	h := newHarness(t, def)
	ctx := context.Background()
	h.runner.Start(ctx, "three-steps")

	ops := []string{"ls", "skip", "pwd", "mkdir app", "rm -r app", "skip", "ls", "pwd"}
	prev := 0
	for _, op := range ops {
		var reply Reply
		if op == "skip" {
			reply = h.runner.Skip(ctx)
		} else {
			reply = h.runner.Submit(ctx, op)
		}
		st := h.runner.State()
		require.GreaterOrEqual(t, st.CurrentStep, prev, "after %q", op)
		require.LessOrEqual(t, st.CurrentStep, len(def.Steps))
		prev = st.CurrentStep
		if reply.Status == StatusCompleted {
			break
		}
	}
	assert.Equal(t, StatusCompleted, h.runner.State().Status)
	assert.Len(t, h.sink.records, 1)
}

func TestUnknownCommandChangesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.Start(ctx, "two-steps")
	h.runner.Submit(ctx, "ls")

	stateBefore, err := json.Marshal(h.runner.State())
	require.NoError(t, err)
	sessBefore, err := json.Marshal(h.runner.Simulator().Session())
	require.NoError(t, err)
	writes := h.store.writes
	events := len(h.events.types)

	reply := h.runner.Submit(ctx, "/doesnotexist")

	assert.Contains(t, reply.Text, "Unknown command: /doesnotexist")
	assert.NoError(t, reply.Err)
	assert.Nil(t, reply.Validation)
	stateAfter, _ := json.Marshal(h.runner.State())
	sessAfter, _ := json.Marshal(h.runner.Simulator().Session())
	assert.Equal(t, string(stateBefore), string(stateAfter))
	assert.Equal(t, string(sessBefore), string(sessAfter))
	assert.Equal(t, writes, h.store.writes)
	assert.Len(t, h.events.types, events)
}

func TestRestartResetsCounters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.Start(ctx, "two-steps")
	h.runner.Submit(ctx, "ls")
	h.runner.Hint(ctx)
	h.runner.Submit(ctx, "pwd")
	require.Equal(t, 1, h.runner.State().CurrentStep)

	reply := h.runner.Restart(ctx)

	require.NoError(t, reply.Err)
	st := h.runner.State()
	assert.Equal(t, 0, st.Attempts)
	assert.Equal(t, 0, st.HintsUsed)
	assert.Equal(t, 0, st.CurrentStep)
	assert.Empty(t, st.StepResults)
	assert.Equal(t, StatusInProgress, st.Status)
	assert.Contains(t, reply.Text, "Step 1/2")
}

func TestRestartAfterCompletionStartsAgain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.Start(ctx, "two-steps")
	h.runner.Skip(ctx)
	h.runner.Skip(ctx)
	require.Equal(t, StatusCompleted, h.runner.State().Status)

	require.NoError(t, h.runner.Restart(ctx).Err)
	assert.Equal(t, StatusInProgress, h.runner.State().Status)
	assert.Empty(t, h.runner.State().CompletionID)
}

func TestRejectedCallsBeforeStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, reply := range []Reply{h.runner.Submit(ctx, "pwd"), h.runner.Hint(ctx), h.runner.Skip(ctx), h.runner.Restart(ctx)} {
		assert.ErrorIs(t, reply.Err, ErrNotStarted)
		assert.Equal(t, StatusNotStarted, reply.Status)
	}
	assert.Empty(t, h.runner.Simulator().Session().History)

	h.runner.Start(ctx, "two-steps")
	before := h.runner.State()
	reply := h.runner.Start(ctx, "missing-one")
	assert.ErrorIs(t, reply.Err, ErrUnknownDefinition)
	assert.Equal(t, before, h.runner.State())
}

func TestHints(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.Start(ctx, "two-steps")
	assert.Equal(t, "Hint: Use pwd.", h.runner.Hint(ctx).Text)
	h.runner.Submit(ctx, "pwd")
	assert.Contains(t, h.runner.Hint(ctx).Text, "Keep going")
	assert.Equal(t, 2, h.runner.State().HintsUsed)
	assert.Equal(t, 1, h.runner.State().CurrentStep)
}

func TestSkipCompletesWithAccruedPoints(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.Start(ctx, "two-steps")
	h.runner.Submit(ctx, "pwd")
	reply := h.runner.Skip(ctx)

	require.NotNil(t, reply.Completion)
	assert.Equal(t, 10, reply.Completion.BasePoints)
	assert.Equal(t, 12, reply.Completion.FinalScore)
	assert.Equal(t, 1, reply.Completion.Skipped)
	last := h.runner.State().StepResults[1]
	assert.True(t, last.Skipped)
	assert.Equal(t, 0, last.PointsEarned)
}

func TestEventsInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.Start(ctx, "two-steps")
	h.runner.Submit(ctx, "ls")
	h.runner.Hint(ctx)
	h.runner.Submit(ctx, "pwd")
	h.runner.Restart(ctx)
	h.runner.Skip(ctx)
	h.runner.Skip(ctx)

	assert.Equal(t, []string{
		EventStarted, EventStepFailed, EventHint, EventStepPassed,
		EventRestarted, EventStarted, EventSkipped, EventSkipped, EventCompleted,
	}, h.events.types)
}

func TestFailingStoreDoesNotAbortTransitions(t *testing.T) {
	h := newHarness(t)
	h.store.fail = errors.New("disk full")
	ctx := context.Background()

	require.NoError(t, h.runner.Start(ctx, "two-steps").Err)
	h.runner.Submit(ctx, "pwd")
	reply := h.runner.Submit(ctx, "mkdir app")

	require.NotNil(t, reply.Completion)
	assert.Equal(t, StatusCompleted, h.runner.State().Status)
	assert.Contains(t, h.logs.errors, "store.save_failed")

	resumed := h.runner.Resume(ctx)
	assert.NoError(t, resumed.Err)
	assert.Equal(t, StatusNotStarted, resumed.Status)
}

func TestResumeRestoresRunAndSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.Start(ctx, "two-steps")
	h.runner.Submit(ctx, "mkdir extra")
	h.runner.Submit(ctx, "pwd")

	other := NewRunner(RunnerConfig{
		Catalog:   catalog.New(twoStepDefinition()),
		Simulator: simulator.New(simulator.Options{Rand: fixedRand{}}),
		Store:     h.store,
		Key:       "learner-1",
	})
	reply := other.Resume(ctx)

	assert.Equal(t, StatusInProgress, reply.Status)
	assert.Equal(t, 1, reply.Step)
	assert.Contains(t, reply.Text, "Step 2/2")
	assert.Equal(t, 1, other.State().Attempts)
	assert.True(t, other.Simulator().Session().IsDir(simulator.DefaultCwd+"/extra"))

	done := other.Submit(ctx, "mkdir app")
	require.NotNil(t, done.Completion)
}

func TestResumeFallsBackOnStaleOrCorruptSnapshots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.runner.Start(ctx, "two-steps")
	h.runner.Submit(ctx, "pwd")

	edited := twoStepDefinition()
	edited.Instructions[1] = "Create a directory named app."
	stale := NewRunner(RunnerConfig{Catalog: catalog.New(edited), Store: h.store, Key: "learner-1"})
	reply := stale.Resume(ctx)
	assert.Equal(t, StatusNotStarted, reply.Status)
	assert.Contains(t, reply.Text, "changed since your last visit")

	h.store.data["run/learner-1"] = []byte("{not json")
	corrupt := NewRunner(RunnerConfig{Catalog: catalog.New(twoStepDefinition()), Store: h.store, Key: "learner-1"})
	reply = corrupt.Resume(ctx)
	assert.Equal(t, StatusNotStarted, reply.Status)
	assert.NoError(t, reply.Err)

	missing := NewRunner(RunnerConfig{Catalog: catalog.New(twoStepDefinition()), Store: newMemStore(), Key: "nobody"})
	assert.Equal(t, StatusNotStarted, missing.Resume(ctx).Status)
}

func TestBuiltinDefinitionsCompleteWithReferenceSolutions(t *testing.T) {
	c, problems, err := catalog.LoadBuiltin("")
	require.NoError(t, err)
	require.Empty(t, problems)
	ctx := context.Background()
	for _, def := range c.All() {
		t.Run(def.ID, func(t *testing.T) {
			sink := &sinkRecorder{}
			r := NewRunner(RunnerConfig{
				Catalog:     c,
				Simulator:   simulator.New(simulator.Options{Seed: 7}),
				Completions: sink,
			})
			require.NoError(t, r.Start(ctx, def.ID).Err)
			for _, step := range def.Steps {
				reply := r.Submit(ctx, step.Solution)
				require.NotNil(t, reply.Validation, "step %s: %s", step.ID, reply.Text)
				require.True(t, reply.Validation.Passed, "step %s: %s", step.ID, reply.Validation.Feedback)
			}
			require.Len(t, sink.records, 1)
			assert.Equal(t, def.PointsTotal, sink.records[0].BasePoints)
		})
	}
}
