package devtools

import (
	"context"
	"fmt"
	"time"

	"assistdojo/internal/catalog"
	"assistdojo/internal/exercise"
	"assistdojo/internal/simulator"
)

// DefaultSeeds covers more than one template per response bucket.
var DefaultSeeds = []uint64{1, 2, 3, 5, 8}

type Finding struct {
	DefinitionID string
	StepID       string
	Seed         uint64
	Problem      string
}

func (f Finding) String() string {
	if f.StepID == "" {
		return fmt.Sprintf("%s: %s", f.DefinitionID, f.Problem)
	}
	return fmt.Sprintf("%s/%s (seed %d): %s", f.DefinitionID, f.StepID, f.Seed, f.Problem)
}

type Report struct {
	Checked  int
	Findings []Finding
	// Scores holds the final score of the replay with the first seed.
	Scores map[string]int
}

func (r Report) OK() bool { return len(r.Findings) == 0 }

// Manager replays each definition's reference solutions through a fresh simulator
// and runner, once per seed.
type Manager struct {
	Seeds []uint64
	Clock func() time.Time
}

func NewManager() *Manager {
	return &Manager{Seeds: DefaultSeeds}
}

func (m *Manager) Verify(ctx context.Context, defs []catalog.Definition) Report {
	seeds := m.Seeds
	if len(seeds) == 0 {
		seeds = DefaultSeeds
	}
	out := Report{Scores: map[string]int{}}
	for _, def := range defs {
		out.Checked++
		missing := false
		for _, step := range def.Steps {
			if step.Solution == "" {
				missing = true
				out.Findings = append(out.Findings, Finding{DefinitionID: def.ID, StepID: step.ID, Problem: "no reference solution"})
			}
		}
		if missing {
			continue
		}
		for i, seed := range seeds {
			score, findings := m.replay(ctx, def, seed)
			out.Findings = append(out.Findings, findings...)
			if i == 0 && len(findings) == 0 {
				out.Scores[def.ID] = score
			}
		}
	}
	return out
}

func (m *Manager) replay(ctx context.Context, def catalog.Definition, seed uint64) (int, []Finding) {
	clock := m.Clock
	if clock == nil {
		start := time.Date(2026, time.January, 1, 9, 0, 0, 0, time.UTC)
		clock = func() time.Time { return start }
	}
	runner := exercise.NewRunner(exercise.RunnerConfig{
		Catalog:   catalog.New(def),
		Simulator: simulator.New(simulator.Options{Seed: seed, Clock: clock}),
		Clock:     clock,
		Key:       "verify",
	})
	if reply := runner.Start(ctx, def.ID); reply.Err != nil {
		return 0, []Finding{{DefinitionID: def.ID, Seed: seed, Problem: reply.Err.Error()}}
	}

	var findings []Finding
	var completion *exercise.Completion
	for _, step := range def.Steps {
		reply := runner.Submit(ctx, step.Solution)
		switch {
		case reply.Validation == nil:
			findings = append(findings, Finding{DefinitionID: def.ID, StepID: step.ID, Seed: seed, Problem: "solution is not an accepted command"})
			reply = runner.Skip(ctx)
		case !reply.Validation.Passed:
			findings = append(findings, Finding{DefinitionID: def.ID, StepID: step.ID, Seed: seed, Problem: reply.Validation.Feedback})
			reply = runner.Skip(ctx)
		}
		if reply.Completion != nil {
			completion = reply.Completion
		}
	}
	if completion == nil {
		findings = append(findings, Finding{DefinitionID: def.ID, Seed: seed, Problem: "replay did not complete"})
		return 0, findings
	}
	if len(findings) == 0 && completion.BasePoints != def.PointsTotal {
		findings = append(findings, Finding{
			DefinitionID: def.ID,
			Seed:         seed,
			Problem:      fmt.Sprintf("replay earned %d of %d points", completion.BasePoints, def.PointsTotal),
		})
	}
	return completion.FinalScore, findings
}
