package grading

import "fmt"

const (
	efficiencyTenths = 12
	hintPenaltyTenth = 1
)

// FinalScore computes floor(base * efficiency * hintPenalty). Efficiency is 1.2 when
// the run finished within the estimate (a zero estimate never qualifies) and the hint
// penalty drops by 0.1 per hint down to zero. Factors are kept in tenths so the
// result is exact.
func FinalScore(in ScoreInput) Score {
	base := max(0, in.BasePoints)
	eff := 10
	if in.Estimated > 0 && in.Duration <= in.Estimated {
		eff = efficiencyTenths
	}
	hintTenths := max(0, 10-hintPenaltyTenth*max(0, in.HintsUsed))

	withEfficiency := base * eff / 10
	total := base * eff * hintTenths / 100

	return Score{
		BasePoints:       base,
		EfficiencyFactor: float64(eff) / 10,
		HintPenalty:      float64(hintTenths) / 10,
		EfficiencyBonus:  eff > 10,
		Total:            total,
		Breakdown: []ScoreDelta{
			{Kind: "base", Points: base, Description: "Points earned across steps"},
			{Kind: "efficiency", Points: withEfficiency - base, Description: fmt.Sprintf("Finished within the estimate (x%.1f)", float64(eff)/10)},
			{Kind: "hint", Points: total - withEfficiency, Description: fmt.Sprintf("%d hints used", max(0, in.HintsUsed))},
		},
	}
}
