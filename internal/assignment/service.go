// Package assignment is the grading surface for the assignment-evaluation
// subsystem. It shares the exam engine's letter table through
// internal/grade so the two surfaces cannot drift apart.
package assignment

import "examlms/internal/grade"

type Evaluation struct {
	EarnedPoints float64 `json:"earned_points"`
	TotalPoints  float64 `json:"total_points"`
	Percentage   float64 `json:"percentage"`
	LetterGrade  string  `json:"letter_grade"`
}

type Service struct{}

func NewService() *Service {
	return &Service{}
}

// Evaluate converts earned points into a percentage and letter grade.
// A zero or negative total yields a zero percentage, same as the exam
// engine's guard.
func (s *Service) Evaluate(earned, total float64) Evaluation {
	pct := 0.0
	if total > 0 {
		pct = 100 * earned / total
	}
	return Evaluation{
		EarnedPoints: earned,
		TotalPoints:  total,
		Percentage:   pct,
		LetterGrade:  grade.Letter(pct),
	}
}
