package catalog

import (
	"strings"
	"testing"

	"assistdojo/internal/grading"
)

func validDefinition() Definition {
	return Definition{
		Kind:          KindExercise,
		SchemaVersion: 1,
		ID:            "sample-one",
		Title:         "Sample",
		Category:      "basics",
		Difficulty:    1,
		Steps: []grading.Step{
			{ID: "a", ExpectedCommand: "pwd", ExpectedTokens: []string{"/"}, Points: 5},
			{ID: "b", ExpectedTokens: []string{"x", "y"}, Points: 5, Freeform: true},
		},
		Instructions: []string{"do a", "do b"},
	}
}

func TestDefinitionValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Definition)
		want   string
	}{
		{"valid", func(*Definition) {}, ""},
		{"bad kind", func(d *Definition) { d.Kind = "level" }, "kind must be"},
		{"future schema", func(d *Definition) { d.SchemaVersion = SupportedSchemaVersion + 1 }, "unsupported schema_version"},
		{"bad id", func(d *Definition) { d.ID = "A!" }, "invalid id"},
		{"no title", func(d *Definition) { d.Title = "" }, "title is required"},
		{"difficulty", func(d *Definition) { d.Difficulty = 6 }, "difficulty"},
		{"no steps", func(d *Definition) { d.Steps = nil; d.Instructions = nil }, "at least one"},
		{"mismatch", func(d *Definition) { d.Instructions = d.Instructions[:1] }, "steps/instructions mismatch"},
		{"duplicate step", func(d *Definition) { d.Steps[1].ID = "a" }, "duplicate step id"},
		{"zero points", func(d *Definition) { d.Steps[0].Points = 0 }, "points must be > 0"},
		{"empty step", func(d *Definition) { d.Steps[0].ExpectedCommand = ""; d.Steps[0].ExpectedTokens = nil }, "needs expected_tokens"},
		{"points total", func(d *Definition) { d.PointsTotal = 99 }, "points_total"},
		{"self next", func(d *Definition) { d.NextID = d.ID }, "next_id"},
		{"review days", func(d *Definition) { d.ReviewDays = []int{0} }, "review_days"},
		{"min version", func(d *Definition) { d.MinAppVersion = "not-a-version" }, "min_app_version"},
	}
	for _, c := range cases {
		d := validDefinition()
		c.mutate(&d)
		err := d.Validate()
		if c.want == "" {
			if err != nil {
				t.Fatalf("%s: unexpected error %v", c.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: expected error containing %q, got %v", c.name, c.want, err)
		}
	}
}

func TestSupportsAppVersion(t *testing.T) {
	d := validDefinition()
	d.MinAppVersion = "0.3.0"
	if d.Supports("0.2.9") {
		t.Fatalf("0.2.9 should not satisfy 0.3.0")
	}
	if !d.Supports("0.3.0") || !d.Supports("1.0.0") {
		t.Fatalf("newer versions should satisfy the gate")
	}
	if !d.Supports("dev") {
		t.Fatalf("dev builds should not be gated")
	}
}
