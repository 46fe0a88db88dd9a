package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"assistdojo/internal/catalog"
	"assistdojo/internal/exercise"
	"assistdojo/internal/grading"
	"assistdojo/internal/progress"
	"assistdojo/internal/simulator"
	"assistdojo/internal/state"
	"assistdojo/internal/telemetry"
)

const learnerKey = "learner/id"

type App struct {
	cfg Config

	logger   *telemetry.Logger
	store    Store
	catalog  *catalog.Catalog
	problems []catalog.LoadError
	sim      *simulator.Simulator
	runner   *exercise.Runner
	tracker  *progress.Tracker
	render   *Renderer

	learner   string
	sessionID string
	clock     func() time.Time
}

func New(ctx context.Context, cfg Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	logger, err := telemetry.New(telemetry.Options{Path: cfg.LogPath, Format: cfg.LogFormat, Debug: cfg.Debug})
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	cat, problems, err := LoadCatalog(cfg)
	if err != nil {
		_ = store.Close()
		_ = logger.Close()
		return nil, err
	}
	for _, p := range problems {
		logger.Error("catalog.load_error", map[string]any{"source": p.Source, "definition": p.ID, "error": p.Err.Error()})
	}
	if cat.Len() == 0 {
		_ = store.Close()
		_ = logger.Close()
		return nil, fmt.Errorf("no exercises available")
	}

	render, err := NewRenderer(cfg.Render)
	if err != nil {
		_ = store.Close()
		_ = logger.Close()
		return nil, err
	}

	learner, err := resolveLearner(ctx, store, cfg.LearnerID)
	if err != nil {
		_ = store.Close()
		_ = logger.Close()
		return nil, err
	}

	clock := time.Now
	sim := simulator.New(simulator.Options{
		Seed:          cfg.Seed,
		ResponseDelay: time.Duration(cfg.ResponseDelayMS) * time.Millisecond,
	})
	tracker := progress.NewTracker(store, logger)
	runner := exercise.NewRunner(exercise.RunnerConfig{
		Catalog:     cat,
		Simulator:   sim,
		Validator:   grading.NewValidatorWithThresholds(cfg.ExactThreshold, cfg.FreeformThreshold),
		Store:       store,
		Completions: tracker,
		Events:      eventLog{logger: logger},
		Logger:      logger,
		Clock:       clock,
		Key:         learner,
	})

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		catalog:   cat,
		problems:  problems,
		sim:       sim,
		runner:    runner,
		tracker:   tracker,
		render:    render,
		learner:   learner,
		sessionID: uuid.NewString(),
		clock:     clock,
	}, nil
}

// OpenStore opens the configured store and applies its schema.
func OpenStore(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Ephemeral {
		return state.NewMemory(), nil
	}
	store, err := state.NewSQLite(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// LoadCatalog loads the builtin catalog with the configured directory layered on top.
func LoadCatalog(cfg Config) (*catalog.Catalog, []catalog.LoadError, error) {
	layers := []catalog.Layer{catalog.BuiltinLayer()}
	if cfg.CatalogDir != "" {
		layers = append(layers, catalog.DirLayer(cfg.CatalogDir))
	}
	return catalog.NewLoader(cfg.Version).Load(layers...)
}

func resolveLearner(ctx context.Context, store Store, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	b, err := store.Get(ctx, learnerKey)
	if err != nil {
		return "", fmt.Errorf("read learner id: %w", err)
	}
	if id := strings.TrimSpace(string(b)); id != "" {
		return id, nil
	}
	id := uuid.NewString()
	if err := store.Set(ctx, learnerKey, []byte(id)); err != nil {
		return "", fmt.Errorf("save learner id: %w", err)
	}
	return id, nil
}

func (a *App) Learner() string               { return a.learner }
func (a *App) Catalog() *catalog.Catalog     { return a.catalog }
func (a *App) Problems() []catalog.LoadError { return a.problems }
func (a *App) Runner() *exercise.Runner      { return a.runner }

func (a *App) Report(ctx context.Context) (progress.Report, error) {
	return progress.BuildReport(ctx, a.store, a.learner, a.catalog.All(), a.clock())
}

// Run is the interactive loop. It returns when the input ends, :quit is entered
// or ctx is cancelled.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	a.logger.Info("app.start", map[string]any{
		"session":     a.sessionID,
		"learner":     a.learner,
		"definitions": a.catalog.Len(),
		"ephemeral":   a.cfg.Ephemeral,
	})
	defer a.logger.Info("app.stop", map[string]any{"session": a.sessionID})

	fmt.Fprintln(out, a.render.Markdown(welcomeText))
	if rep := a.runner.Resume(ctx); rep.Status != exercise.StatusNotStarted {
		fmt.Fprintln(out, a.render.Reply(rep))
	}

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		fmt.Fprint(out, a.render.Prompt(a.promptLabel()))
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			text, quit := a.Handle(ctx, line)
			if text != "" {
				fmt.Fprintln(out, text)
			}
			if quit {
				return nil
			}
		}
	}
}

// Handle answers one line of input. Lines starting with ':' drive the tutor;
// anything else goes to the active exercise or, without one, to the simulator.
func (a *App) Handle(ctx context.Context, line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if strings.HasPrefix(line, ":") {
		return a.meta(ctx, line)
	}
	if err := a.sim.Delay(ctx); err != nil {
		return "", false
	}
	if a.runner.State().Status == exercise.StatusInProgress {
		return a.render.Reply(a.runner.Submit(ctx, line)), false
	}
	out := a.sim.Execute(line)
	a.runner.Save(ctx)
	return out, false
}

func (a *App) meta(ctx context.Context, line string) (string, bool) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, ":"), " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "quit", "q", "exit":
		return "Bye!", true
	case "help", "h":
		return a.render.Markdown(helpText), false
	case "start":
		if arg == "" {
			return "Usage: :start <exercise-id>. Type :exercises to list them.", false
		}
		return a.render.Reply(a.runner.Start(ctx, arg)), false
	case "next":
		st := a.runner.State()
		next, ok := a.catalog.Next(st.DefinitionID)
		if st.Status != exercise.StatusCompleted || !ok {
			return "Nothing queued up next. Type :exercises to pick one.", false
		}
		return a.render.Reply(a.runner.Start(ctx, next.ID)), false
	case "hint":
		return a.render.Reply(a.runner.Hint(ctx)), false
	case "skip":
		return a.render.Reply(a.runner.Skip(ctx)), false
	case "restart":
		return a.render.Reply(a.runner.Restart(ctx)), false
	case "resume":
		return a.render.Reply(a.runner.Resume(ctx)), false
	case "status":
		return a.statusText(), false
	case "exercises", "ls":
		return a.render.Markdown(a.exercisesMarkdown(ctx)), false
	case "progress":
		report, err := a.Report(ctx)
		if err != nil {
			a.logger.Error("progress.report_failed", map[string]any{"error": err.Error()})
			return "Progress is unavailable right now.", false
		}
		return a.render.Markdown(report.Markdown()), false
	default:
		return fmt.Sprintf("Unknown tutor command :%s. Type :help for the list.", name), false
	}
}

func (a *App) promptLabel() string {
	st := a.runner.State()
	if st.Status != exercise.StatusInProgress {
		return "free"
	}
	def, _ := a.runner.Definition()
	return fmt.Sprintf("%s %d/%d", def.ID, st.CurrentStep+1, len(def.Steps))
}

func (a *App) statusText() string {
	st := a.runner.State()
	def, ok := a.runner.Definition()
	if !ok {
		return "No exercise in progress. Free play: everything you type goes to the assistant."
	}
	switch st.Status {
	case exercise.StatusCompleted:
		return fmt.Sprintf("%s is complete (%d/%d points). Type :next or :restart.", def.Title, st.BasePoints(), def.PointsTotal)
	default:
		elapsed := a.clock().Sub(st.StartedAt).Round(time.Second)
		return fmt.Sprintf("%s: step %d/%d, %d points so far, %d failed attempts, %d hints, %s elapsed.",
			def.Title, st.CurrentStep+1, len(def.Steps), st.BasePoints(), st.Attempts, st.HintsUsed, elapsed)
	}
}

func (a *App) exercisesMarkdown(ctx context.Context) string {
	done, err := a.store.GetProgressMap(ctx, a.learner)
	if err != nil {
		a.logger.Error("progress.map_failed", map[string]any{"error": err.Error()})
	}
	return CatalogMarkdown(a.catalog.All(), done)
}

// CatalogMarkdown lists definitions as a table; done marks completed ones and may be nil.
func CatalogMarkdown(defs []catalog.Definition, done map[string]state.DefinitionProgress) string {
	var b strings.Builder
	b.WriteString("# Exercises\n\n| ID | Title | Category | Level | Minutes | Done |\n|---|---|---|---|---|---|\n")
	for _, d := range defs {
		title := d.Title
		if d.IsAssessment() {
			title += " (assessment)"
		}
		mark := ""
		if p, ok := done[d.ID]; ok && p.CompletedCount > 0 {
			mark = "yes"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %d | %s |\n", d.ID, title, d.Category, d.Difficulty, d.EstimatedMinutes, mark)
	}
	return b.String()
}

func (a *App) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logger.Close()
}

const welcomeText = `# assistdojo

Practice working with a coding assistant in a safe, simulated project.
Type **:exercises** to see what is available, **:start <id>** to begin, or **:help** for every command.`

const helpText = `# Tutor commands

- **:exercises** list exercises
- **:start <id>** start an exercise
- **:hint** show a hint for the current step
- **:skip** skip the current step without points
- **:restart** start the current exercise over
- **:resume** reload the last saved run
- **:next** start the exercise that follows a completed one
- **:status** show where you are
- **:progress** show scores, badges and reviews
- **:quit** leave

Everything else is sent to the assistant. Try **/help** for assistant commands.`

type eventLog struct {
	logger *telemetry.Logger
}

func (e eventLog) Emit(_ context.Context, ev exercise.Event) {
	fields := map[string]any{"definition": ev.DefinitionID, "step": ev.Step}
	for k, v := range ev.Fields {
		fields[k] = v
	}
	e.logger.Debug("runner.event."+ev.Type, fields)
}
