package exercise

import (
	"context"
	"encoding/json"
	"fmt"

	"assistdojo/internal/catalog"
	"assistdojo/internal/session"
)

const (
	runKeyPrefix     = "run/"
	sessionKeyPrefix = "session/"
)

func (r *Runner) RunKey() string     { return runKeyPrefix + r.key }
func (r *Runner) SessionKey() string { return sessionKeyPrefix + r.key }

// persist writes the run and session snapshots. Failures are logged and dropped so
// the in-memory transition always stands.
func (r *Runner) persist(ctx context.Context) {
	if r.store == nil {
		return
	}
	r.save(ctx, r.RunKey(), r.state)
	r.save(ctx, r.SessionKey(), r.sim.Session())
}

// Save persists the current snapshots. Use it after driving the simulator directly.
func (r *Runner) Save(ctx context.Context) {
	r.persist(ctx)
}

func (r *Runner) save(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err == nil {
		err = r.store.Set(ctx, key, b)
	}
	if err != nil {
		r.logger.Error("store.save_failed", map[string]any{"key": key, "error": err.Error()})
	}
}

// Resume restores the last saved run and session. A missing, unreadable or stale
// run snapshot leaves the runner NotStarted; it is never an error.
func (r *Runner) Resume(ctx context.Context) Reply {
	if r.store == nil {
		return r.reply("Nothing to resume.")
	}
	if sess, ok := r.loadSession(ctx); ok {
		r.sim.Restore(sess)
	}

	fresh := func(text string) Reply {
		r.def = catalog.Definition{}
		r.state = RunState{Status: StatusNotStarted}
		return r.reply(text)
	}

	b, err := r.store.Get(ctx, r.RunKey())
	if err != nil {
		r.logger.Error("store.load_failed", map[string]any{"key": r.RunKey(), "error": err.Error()})
		return fresh("Nothing to resume.")
	}
	if len(b) == 0 {
		return fresh("Nothing to resume.")
	}
	var saved RunState
	if err := json.Unmarshal(b, &saved); err != nil {
		r.logger.Error("runner.snapshot_corrupt", map[string]any{"key": r.RunKey(), "error": err.Error()})
		return fresh("Saved progress could not be read. Start an exercise to continue.")
	}
	if saved.Status == StatusNotStarted || saved.DefinitionID == "" {
		return fresh("Nothing to resume.")
	}
	def, err := r.catalog.Get(saved.DefinitionID)
	if err != nil {
		return fresh(fmt.Sprintf("Saved exercise %q is no longer available.", saved.DefinitionID))
	}
	if saved.Fingerprint != r.catalog.Fingerprint(def.ID) || !consistent(saved, len(def.Steps)) {
		r.logger.Info("runner.snapshot_stale", map[string]any{"definition": def.ID})
		return fresh(fmt.Sprintf("%s changed since your last visit. Start it again with a fresh run.", def.Title))
	}
	if saved.Answers == nil {
		saved.Answers = map[string]string{}
	}
	r.def = def
	r.state = saved
	r.logger.Info("runner.resume", map[string]any{"definition": def.ID, "step": saved.CurrentStep})
	if saved.Status == StatusCompleted {
		return r.reply(fmt.Sprintf("%s is already complete.", def.Title))
	}
	return r.reply("Resuming " + def.Title + ".\n\n" + r.instructionText())
}

func consistent(s RunState, steps int) bool {
	switch s.Status {
	case StatusInProgress:
		return s.CurrentStep >= 0 && s.CurrentStep < steps && len(s.StepResults) == s.CurrentStep
	case StatusCompleted:
		return s.CurrentStep == steps
	default:
		return false
	}
}

func (r *Runner) loadSession(ctx context.Context) (*session.Session, bool) {
	b, err := r.store.Get(ctx, r.SessionKey())
	if err != nil || len(b) == 0 {
		return nil, false
	}
	var sess session.Session
	if err := json.Unmarshal(b, &sess); err != nil {
		r.logger.Error("runner.session_corrupt", map[string]any{"key": r.SessionKey(), "error": err.Error()})
		return nil, false
	}
	return &sess, true
}
