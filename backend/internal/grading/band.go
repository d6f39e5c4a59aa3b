package grading

import (
	"fmt"
	"math"

	"schoolledger/backend/internal/shared"
)

// Policy names a grade banding table. Callers must always pick one explicitly;
// the two tables disagree and neither is treated as the default.
type Policy string

const (
	// PolicyEightBand: A+/A/B+/B/C+/C/D/F at 90/80/70/60/50/40/33
	PolicyEightBand Policy = "eight_band"
	// PolicySixBand: A+/A/B/C/D/F at 90/80/70/60/50
	PolicySixBand Policy = "six_band"
)

// percentEpsilon absorbs float error at the 0 and 100 boundaries
const percentEpsilon = 1e-9

type band struct {
	min   float64
	grade string
}

// tables are ordered highest bound first; the first bound met wins
var tables = map[Policy][]band{
	PolicyEightBand: {
		{90, "A+"}, {80, "A"}, {70, "B+"}, {60, "B"},
		{50, "C+"}, {40, "C"}, {33, "D"}, {0, "F"},
	},
	PolicySixBand: {
		{90, "A+"}, {80, "A"}, {70, "B"}, {60, "C"},
		{50, "D"}, {0, "F"},
	},
}

// Policies lists the supported policy names
func Policies() []Policy {
	return []Policy{PolicyEightBand, PolicySixBand}
}

// ParsePolicy resolves a policy name from input
func ParsePolicy(name string) (Policy, error) {
	p := Policy(name)
	if _, ok := tables[p]; !ok {
		return "", shared.NewValidationError("unknown grading policy",
			shared.FieldError{Field: "policy", Message: fmt.Sprintf("must be one of %v", Policies())})
	}
	return p, nil
}

// Grade maps a percentage in [0,100] to a letter grade under policy
func Grade(percentage float64, policy Policy) (string, error) {
	table, ok := tables[policy]
	if !ok {
		return "", shared.NewValidationError("unknown grading policy",
			shared.FieldError{Field: "policy", Message: string(policy)})
	}
	if math.IsNaN(percentage) || percentage < -percentEpsilon || percentage > 100+percentEpsilon {
		return "", shared.NewValidationError("percentage out of range",
			shared.FieldError{Field: "percentage", Message: fmt.Sprintf("%v is outside [0, 100]", percentage)})
	}

	for _, b := range table {
		if percentage+percentEpsilon >= b.min {
			return b.grade, nil
		}
	}
	// unreachable: every table ends at 0
	return table[len(table)-1].grade, nil
}
