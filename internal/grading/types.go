package grading

import "time"

const (
	ModeExact    = "exact"
	ModeFreeform = "freeform"
)

// Step is one gradable unit. An empty ExpectedCommand means any input is accepted as
// long as enough tokens match.
type Step struct {
	ID              string   `yaml:"id" json:"id"`
	ExpectedCommand string   `yaml:"expected_command,omitempty" json:"expected_command,omitempty"`
	ExpectedTokens  []string `yaml:"expected_tokens" json:"expected_tokens"`
	Points          int      `yaml:"points" json:"points"`
	Freeform        bool     `yaml:"freeform,omitempty" json:"freeform,omitempty"`
	Solution        string   `yaml:"solution,omitempty" json:"solution,omitempty"`
}

func (s Step) Mode() string {
	if s.Freeform {
		return ModeFreeform
	}
	return ModeExact
}

type Result struct {
	Passed         bool     `json:"passed"`
	PointsEarned   int      `json:"points_earned"`
	MatchedTokens  []string `json:"matched_tokens"`
	MissingTokens  []string `json:"missing_tokens,omitempty"`
	CommandMatched bool     `json:"command_matched"`
	Required       int      `json:"required"`
	Feedback       string   `json:"feedback"`
}

type ScoreInput struct {
	BasePoints int
	Duration   time.Duration
	Estimated  time.Duration
	HintsUsed  int
}

type Score struct {
	BasePoints       int          `json:"base_points"`
	EfficiencyFactor float64      `json:"efficiency_factor"`
	HintPenalty      float64      `json:"hint_penalty"`
	EfficiencyBonus  bool         `json:"efficiency_bonus"`
	Total            int          `json:"total"`
	Breakdown        []ScoreDelta `json:"breakdown,omitempty"`
}

type ScoreDelta struct {
	Kind        string `json:"kind"`
	Points      int    `json:"points"`
	Description string `json:"description"`
}
