package catalog

import (
	"fmt"
	"regexp"
	"time"

	"github.com/hashicorp/go-version"

	"assistdojo/internal/grading"
)

const (
	KindExercise           = "exercise"
	KindAssessment         = "assessment"
	SupportedSchemaVersion = 1
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,63}$`)

type Definition struct {
	Kind             string         `yaml:"kind" json:"kind"`
	SchemaVersion    int            `yaml:"schema_version" json:"schema_version"`
	ID               string         `yaml:"id" json:"id"`
	Title            string         `yaml:"title" json:"title"`
	SummaryMD        string         `yaml:"summary_md" json:"summary_md,omitempty"`
	Category         string         `yaml:"category" json:"category"`
	Difficulty       int            `yaml:"difficulty" json:"difficulty"`
	EstimatedMinutes int            `yaml:"estimated_minutes" json:"estimated_minutes"`
	Steps            []grading.Step `yaml:"steps" json:"steps"`
	Instructions     []string       `yaml:"instructions" json:"instructions"`
	Hints            []string       `yaml:"hints" json:"hints,omitempty"`
	PointsTotal      int            `yaml:"points_total" json:"points_total"`
	NextID           string         `yaml:"next_id" json:"next_id,omitempty"`
	Concepts         []string       `yaml:"concepts" json:"concepts,omitempty"`
	ReviewDays       []int          `yaml:"review_days" json:"review_days,omitempty"`
	MinAppVersion    string         `yaml:"min_app_version" json:"min_app_version,omitempty"`

	Path string `yaml:"-" json:"-" hash:"ignore"`
}

func (d Definition) IsAssessment() bool {
	return d.Kind == KindAssessment
}

func (d Definition) EstimatedDuration() time.Duration {
	return time.Duration(d.EstimatedMinutes) * time.Minute
}

// MaxPoints is the sum of step points.
func (d Definition) MaxPoints() int {
	total := 0
	for _, s := range d.Steps {
		total += s.Points
	}
	return total
}

func (d Definition) Validate() error {
	if d.Kind != KindExercise && d.Kind != KindAssessment {
		return fmt.Errorf("kind must be %q or %q", KindExercise, KindAssessment)
	}
	if d.SchemaVersion == 0 {
		return fmt.Errorf("schema_version is required")
	}
	if d.SchemaVersion > SupportedSchemaVersion {
		return fmt.Errorf("unsupported schema_version %d (max supported %d)", d.SchemaVersion, SupportedSchemaVersion)
	}
	if !idPattern.MatchString(d.ID) {
		return fmt.Errorf("invalid id %q", d.ID)
	}
	if d.Title == "" {
		return fmt.Errorf("title is required")
	}
	if d.Category == "" {
		return fmt.Errorf("category is required")
	}
	if d.Difficulty < 1 || d.Difficulty > 5 {
		return fmt.Errorf("difficulty must be 1..5")
	}
	if d.EstimatedMinutes < 0 {
		return fmt.Errorf("estimated_minutes must be >= 0")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("steps must contain at least one item")
	}
	if len(d.Steps) != len(d.Instructions) {
		return fmt.Errorf("steps/instructions mismatch: %d steps, %d instructions", len(d.Steps), len(d.Instructions))
	}
	seen := map[string]struct{}{}
	for i, s := range d.Steps {
		if s.ID == "" {
			return fmt.Errorf("steps[%d].id is required", i)
		}
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("duplicate step id %q", s.ID)
		}
		seen[s.ID] = struct{}{}
		if s.Points <= 0 {
			return fmt.Errorf("step %q points must be > 0", s.ID)
		}
		if len(s.ExpectedTokens) == 0 && s.ExpectedCommand == "" {
			return fmt.Errorf("step %q needs expected_tokens or expected_command", s.ID)
		}
		if s.Freeform && len(s.ExpectedTokens) == 0 {
			return fmt.Errorf("freeform step %q needs expected_tokens", s.ID)
		}
	}
	if d.PointsTotal != 0 && d.PointsTotal != d.MaxPoints() {
		return fmt.Errorf("points_total %d does not match step points %d", d.PointsTotal, d.MaxPoints())
	}
	if d.NextID == d.ID {
		return fmt.Errorf("next_id must not point at itself")
	}
	for _, day := range d.ReviewDays {
		if day <= 0 {
			return fmt.Errorf("review_days entries must be > 0")
		}
	}
	if d.MinAppVersion != "" {
		if _, err := version.NewVersion(d.MinAppVersion); err != nil {
			return fmt.Errorf("invalid min_app_version %q: %w", d.MinAppVersion, err)
		}
	}
	return nil
}

// Supports reports whether appVersion satisfies MinAppVersion. An unparseable
// app version (for example a dev build) is treated as satisfying every gate.
func (d Definition) Supports(appVersion string) bool {
	if d.MinAppVersion == "" || appVersion == "" {
		return true
	}
	have, err := version.NewVersion(appVersion)
	if err != nil {
		return true
	}
	want, err := version.NewVersion(d.MinAppVersion)
	if err != nil {
		return false
	}
	return !have.LessThan(want)
}
