package progress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"assistdojo/internal/catalog"
	"assistdojo/internal/state"
)

// Report is a learner's progress at one point in time.
type Report struct {
	LearnerKey  string
	Summary     state.Summary
	Progress    map[string]state.DefinitionProgress
	Badges      []Badge
	Certified   bool
	DueReviews  int
	Definitions []catalog.Definition
	At          time.Time
}

func BuildReport(ctx context.Context, r Reader, learnerKey string, defs []catalog.Definition, now time.Time) (Report, error) {
	records, err := r.ListCompletions(ctx, learnerKey)
	if err != nil {
		return Report{}, fmt.Errorf("list completions: %w", err)
	}
	progressMap, err := r.GetProgressMap(ctx, learnerKey)
	if err != nil {
		return Report{}, fmt.Errorf("progress map: %w", err)
	}
	summary, err := r.GetSummary(ctx, learnerKey)
	if err != nil {
		return Report{}, fmt.Errorf("summary: %w", err)
	}
	due, err := r.CountDueReviews(ctx, learnerKey, now)
	if err != nil {
		return Report{}, fmt.Errorf("due reviews: %w", err)
	}
	return Report{
		LearnerKey:  learnerKey,
		Summary:     summary,
		Progress:    progressMap,
		Badges:      Badges(records, defs),
		Certified:   CertificationEligible(records, defs),
		DueReviews:  due,
		Definitions: defs,
		At:          now,
	}, nil
}

// Markdown renders the report for the terminal.
func (r Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Progress\n\n")
	fmt.Fprintf(&b, "- Completions: %s across %d of %d exercises\n",
		humanize.Comma(int64(r.Summary.Completions)), r.Summary.Definitions, len(r.Definitions))
	fmt.Fprintf(&b, "- Total score: %s\n", humanize.Comma(int64(r.Summary.TotalScore)))
	fmt.Fprintf(&b, "- Hints used: %d, failed attempts: %d\n", r.Summary.HintsUsed, r.Summary.Attempts)
	if r.DueReviews > 0 {
		fmt.Fprintf(&b, "- Reviews due: %d\n", r.DueReviews)
	}
	if r.Certified {
		b.WriteString("- Certification: eligible\n")
	}

	if len(r.Definitions) > 0 {
		b.WriteString("\n| Exercise | Done | Best | Last |\n|---|---|---|---|\n")
		for _, d := range r.Definitions {
			p, ok := r.Progress[d.ID]
			if !ok {
				fmt.Fprintf(&b, "| %s | - | - | - |\n", d.ID)
				continue
			}
			last := "-"
			if !p.LastCompletedTS.IsZero() {
				last = humanize.RelTime(p.LastCompletedTS, r.At, "ago", "from now")
			}
			fmt.Fprintf(&b, "| %s | %d | %d | %s |\n", d.ID, p.CompletedCount, p.BestScore, last)
		}
	}

	if len(r.Badges) > 0 {
		b.WriteString("\n## Badges\n\n")
		for _, badge := range r.Badges {
			fmt.Fprintf(&b, "- **%s**: %s\n", badge.Title, badge.Description)
		}
	}
	return b.String()
}
