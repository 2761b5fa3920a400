package grade

import "testing"

func TestLetter(t *testing.T) {
	tests := []struct {
		name string
		pct  float64
		want string
	}{
		{name: "perfect", pct: 100, want: "A+"},
		{name: "a plus lower bound", pct: 97, want: "A+"},
		{name: "just under a plus", pct: 96.99, want: "A"},
		{name: "a lower bound", pct: 93, want: "A"},
		{name: "a minus lower bound", pct: 90, want: "A-"},
		{name: "b plus lower bound", pct: 87, want: "B+"},
		{name: "b lower bound", pct: 83, want: "B"},
		{name: "b minus lower bound", pct: 80, want: "B-"},
		{name: "c plus lower bound", pct: 77, want: "C+"},
		{name: "c lower bound", pct: 73, want: "C"},
		{name: "c minus lower bound", pct: 70, want: "C-"},
		{name: "d plus lower bound", pct: 67, want: "D+"},
		{name: "d lower bound", pct: 63, want: "D"},
		{name: "d minus lower bound", pct: 60, want: "D-"},
		{name: "just under d minus", pct: 59.99, want: "F"},
		{name: "half credit", pct: 50, want: "F"},
		{name: "zero", pct: 0, want: "F"},
		{name: "negative clamps to f", pct: -10, want: "F"},
		{name: "over one hundred", pct: 105, want: "A+"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Letter(tc.pct); got != tc.want {
				t.Fatalf("Letter(%v) = %s, want %s", tc.pct, got, tc.want)
			}
		})
	}
}
