package progress

import (
	"sort"

	"assistdojo/internal/catalog"
	"assistdojo/internal/state"
)

const (
	BadgeFirstSteps  = "first-steps"
	BadgeNoHints     = "no-hints"
	BadgeSpeedrunner = "speedrunner"

	categoryBadgePrefix = "category:"

	// CertificationPercent is the share of an assessment's points a learner must
	// reach on every assessment.
	CertificationPercent = 80
)

type Badge struct {
	ID          string
	Title       string
	Description string
}

// Badges derives the earned badges from completion records. The result is sorted
// by id and depends only on its inputs.
func Badges(records []state.CompletionRecord, defs []catalog.Definition) []Badge {
	if len(records) == 0 {
		return nil
	}
	var out []Badge
	out = append(out, Badge{ID: BadgeFirstSteps, Title: "First Steps", Description: "Completed a first exercise."})

	done := map[string]struct{}{}
	clean, fast := false, false
	for _, rec := range records {
		done[rec.DefinitionID] = struct{}{}
		if rec.HintsUsed == 0 && rec.Skipped == 0 {
			clean = true
		}
		if rec.EfficiencyBonus {
			fast = true
		}
	}
	if clean {
		out = append(out, Badge{ID: BadgeNoHints, Title: "No Hints Needed", Description: "Finished a run without hints or skips."})
	}
	if fast {
		out = append(out, Badge{ID: BadgeSpeedrunner, Title: "Speedrunner", Description: "Finished within the estimated time."})
	}

	byCategory := map[string][]string{}
	for _, d := range defs {
		byCategory[d.Category] = append(byCategory[d.Category], d.ID)
	}
	for category, ids := range byCategory {
		if category == "" || !allDone(ids, done) {
			continue
		}
		out = append(out, Badge{
			ID:          categoryBadgePrefix + category,
			Title:       "Category: " + category,
			Description: "Completed every " + category + " exercise.",
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func allDone(ids []string, done map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := done[id]; !ok {
			return false
		}
	}
	return true
}

// CertificationEligible reports whether every assessment in defs has a completion
// scoring at least CertificationPercent of its points total. A catalog without
// assessments never certifies.
func CertificationEligible(records []state.CompletionRecord, defs []catalog.Definition) bool {
	best := map[string]int{}
	for _, rec := range records {
		if rec.FinalScore > best[rec.DefinitionID] {
			best[rec.DefinitionID] = rec.FinalScore
		}
	}
	assessments := 0
	for _, d := range defs {
		if !d.IsAssessment() {
			continue
		}
		assessments++
		score, ok := best[d.ID]
		if !ok || score*100 < d.PointsTotal*CertificationPercent {
			return false
		}
	}
	return assessments > 0
}
