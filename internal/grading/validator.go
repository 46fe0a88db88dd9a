package grading

import (
	"fmt"
	"strings"
)

// Pass thresholds, as a percentage of expected tokens that must match.
const (
	DefaultExactThreshold    = 70
	DefaultFreeformThreshold = 60
)

type evaluatorFunc func(v *Validator, step Step, input, output string) Result

type Validator struct {
	ExactThresholdPercent    int
	FreeformThresholdPercent int

	registry map[string]evaluatorFunc
}

func NewValidator() *Validator {
	return NewValidatorWithThresholds(DefaultExactThreshold, DefaultFreeformThreshold)
}

func NewValidatorWithThresholds(exact, freeform int) *Validator {
	v := &Validator{
		ExactThresholdPercent:    clampPercent(exact),
		FreeformThresholdPercent: clampPercent(freeform),
		registry:                 map[string]evaluatorFunc{},
	}
	v.registry[ModeExact] = evalExact
	v.registry[ModeFreeform] = evalFreeform
	return v
}

var defaultValidator = NewValidator()

// Validate grades input/output against step with the default thresholds.
func Validate(step Step, input, output string) Result {
	return defaultValidator.Validate(step, input, output)
}

func (v *Validator) Validate(step Step, input, output string) Result {
	if v == nil || v.registry == nil {
		return defaultValidator.Validate(step, input, output)
	}
	eval, ok := v.registry[step.Mode()]
	if !ok {
		eval = evalExact
	}
	return eval(v, step, input, output)
}

// RequiredMatches is ceil(n*percent/100) computed without floating point.
func RequiredMatches(n, percent int) int {
	if n <= 0 {
		return 0
	}
	return (n*clampPercent(percent) + 99) / 100
}

func evalExact(v *Validator, step Step, input, output string) Result {
	lowerIn := strings.ToLower(input)
	cmd := strings.ToLower(strings.TrimSpace(step.ExpectedCommand))
	commandMatched := cmd == "" || strings.Contains(lowerIn, cmd)

	matched, missing := matchTokens(step.ExpectedTokens, strings.ToLower(output))
	required := RequiredMatches(len(step.ExpectedTokens), v.ExactThresholdPercent)
	res := Result{
		Passed:         commandMatched && len(matched) >= required,
		MatchedTokens:  matched,
		MissingTokens:  missing,
		CommandMatched: commandMatched,
		Required:       required,
	}
	return finish(step, res)
}

func evalFreeform(v *Validator, step Step, input, output string) Result {
	haystack := strings.ToLower(input + "\n" + output)
	matched, missing := matchTokens(step.ExpectedTokens, haystack)
	required := RequiredMatches(len(step.ExpectedTokens), v.FreeformThresholdPercent)
	res := Result{
		Passed:         len(matched) >= required,
		MatchedTokens:  matched,
		MissingTokens:  missing,
		CommandMatched: true,
		Required:       required,
	}
	return finish(step, res)
}

func matchTokens(tokens []string, haystack string) (matched, missing []string) {
	matched = []string{}
	for _, tok := range tokens {
		if strings.Contains(haystack, strings.ToLower(tok)) {
			matched = append(matched, tok)
		} else {
			missing = append(missing, tok)
		}
	}
	return matched, missing
}

func finish(step Step, res Result) Result {
	if res.Passed {
		res.PointsEarned = step.Points
		res.Feedback = "Passed."
		if len(res.MatchedTokens) > 0 {
			res.Feedback += " Matched: " + strings.Join(res.MatchedTokens, ", ") + "."
		}
		return res
	}
	var parts []string
	if !res.CommandMatched {
		parts = append(parts, fmt.Sprintf("Use the `%s` command.", step.ExpectedCommand))
	}
	if len(res.MissingTokens) > 0 {
		parts = append(parts, "Missing: "+strings.Join(res.MissingTokens, ", ")+".")
	}
	if len(parts) == 0 {
		parts = append(parts, "Not quite. Try again.")
	}
	res.Feedback = strings.Join(parts, " ")
	return res
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
