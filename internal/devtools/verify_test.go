package devtools

import (
	"context"
	"strings"
	"testing"

	"assistdojo/internal/catalog"
	"assistdojo/internal/grading"
)

func TestBuiltinCatalogVerifies(t *testing.T) {
	cat, problems, err := catalog.LoadBuiltin("dev")
	if err != nil {
		t.Fatalf("load builtin: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("unexpected load problems: %v", problems)
	}
	report := NewManager().Verify(context.Background(), cat.All())
	if !report.OK() {
		t.Fatalf("expected builtin catalog to verify, got %v", report.Findings)
	}
	if report.Checked != cat.Len() {
		t.Fatalf("expected %d checked, got %d", cat.Len(), report.Checked)
	}
	for _, d := range cat.All() {
		if report.Scores[d.ID] < d.PointsTotal {
			t.Fatalf("expected %s score >= %d, got %d", d.ID, d.PointsTotal, report.Scores[d.ID])
		}
	}
}

func broken() catalog.Definition {
	return catalog.Definition{
		Kind:             catalog.KindExercise,
		SchemaVersion:    1,
		ID:               "broken-one",
		Title:            "Broken",
		Category:         "basics",
		Difficulty:       1,
		EstimatedMinutes: 5,
		Steps: []grading.Step{
			{ID: "where", ExpectedCommand: "pwd", ExpectedTokens: []string{"/home/learner/project"}, Points: 10, Solution: "pwd"},
			{ID: "wrong", ExpectedCommand: "ls", ExpectedTokens: []string{"nothing-here.txt"}, Points: 10, Solution: "ls"},
			{ID: "bogus", ExpectedCommand: "/frobnicate", ExpectedTokens: []string{"x"}, Points: 10, Solution: "/frobnicate"},
		},
		Instructions: []string{"Print the directory.", "List files.", "Run it."},
		PointsTotal:  30,
	}
}

func TestVerifyReportsFailingSolutions(t *testing.T) {
	m := &Manager{Seeds: []uint64{7}}
	report := m.Verify(context.Background(), []catalog.Definition{broken()})
	if report.OK() {
		t.Fatalf("expected findings")
	}
	if len(report.Findings) != 2 {
		t.Fatalf("expected 2 findings, got %v", report.Findings)
	}
	if report.Findings[0].StepID != "wrong" || !strings.Contains(report.Findings[0].Problem, "nothing-here.txt") {
		t.Fatalf("unexpected first finding: %+v", report.Findings[0])
	}
	if report.Findings[1].StepID != "bogus" || report.Findings[1].Problem != "solution is not an accepted command" {
		t.Fatalf("unexpected second finding: %+v", report.Findings[1])
	}
	if _, ok := report.Scores["broken-one"]; ok {
		t.Fatalf("failing definitions must not report a score")
	}
}

func TestVerifyRequiresSolutions(t *testing.T) {
	def := broken()
	def.Steps[1].Solution = ""
	report := NewManager().Verify(context.Background(), []catalog.Definition{def})
	if len(report.Findings) != 1 || report.Findings[0].Problem != "no reference solution" {
		t.Fatalf("unexpected findings: %v", report.Findings)
	}
	if got := report.Findings[0].String(); !strings.HasPrefix(got, "broken-one/wrong") {
		t.Fatalf("unexpected finding text %q", got)
	}
}
