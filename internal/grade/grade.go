// Package grade holds the single percentage-to-letter step table shared by
// the exam engine and the assignment grading surface. Keep one copy: the two
// subsystems must never diverge on letter boundaries.
package grade

type step struct {
	Min    float64
	Letter string
}

// Boundaries are inclusive on the lower end: 93.0 is an A, 92.999... is an A-.
var table = []step{
	{97, "A+"},
	{93, "A"},
	{90, "A-"},
	{87, "B+"},
	{83, "B"},
	{80, "B-"},
	{77, "C+"},
	{73, "C"},
	{70, "C-"},
	{67, "D+"},
	{63, "D"},
	{60, "D-"},
}

// Letter maps a 0-100 percentage to its letter grade. Anything below 60 is
// an F, including negative inputs from malformed callers.
func Letter(percentage float64) string {
	for _, s := range table {
		if percentage >= s.Min {
			return s.Letter
		}
	}
	return "F"
}
