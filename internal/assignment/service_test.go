package assignment

import "testing"

func TestEvaluate(t *testing.T) {
	svc := NewService()

	tests := []struct {
		name       string
		earned     float64
		total      float64
		percentage float64
		letter     string
	}{
		{name: "full marks", earned: 100, total: 100, percentage: 100, letter: "A+"},
		{name: "a minus boundary", earned: 90, total: 100, percentage: 90, letter: "A-"},
		{name: "just below a minus", earned: 89, total: 100, percentage: 89, letter: "B+"},
		{name: "half marks", earned: 50, total: 100, percentage: 50, letter: "F"},
		{name: "lowest passing step", earned: 60, total: 100, percentage: 60, letter: "D-"},
		{name: "scaled total", earned: 21, total: 30, percentage: 70, letter: "C-"},
		{name: "zero total guarded", earned: 10, total: 0, percentage: 0, letter: "F"},
		{name: "negative total guarded", earned: 10, total: -5, percentage: 0, letter: "F"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev := svc.Evaluate(tc.earned, tc.total)
			if ev.Percentage != tc.percentage || ev.LetterGrade != tc.letter {
				t.Fatalf("expected %v%%/%s, got %v%%/%s", tc.percentage, tc.letter, ev.Percentage, ev.LetterGrade)
			}
			if ev.EarnedPoints != tc.earned || ev.TotalPoints != tc.total {
				t.Fatalf("inputs not echoed: %+v", ev)
			}
		})
	}
}
