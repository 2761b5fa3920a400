package exam

import (
	"strings"

	"examlms/internal/grade"
)

// ScoreAnswer decides correctness for a single submitted answer and awards
// points. It is a pure function of (question, value): re-submitting an answer
// re-scores it identically, which is what makes answer upserts safe.
func ScoreAnswer(q Question, value string) (bool, float64, error) {
	weight := q.Points
	if weight < 0 {
		weight = 0
	}

	switch q.Type {
	case QuestionMultipleChoice:
		correct := correctOptionText(q.Options)
		if correct == "" {
			return false, 0, ErrUnsupportedQuestionType
		}
		if value == correct {
			return true, weight, nil
		}
		return false, 0, nil

	case QuestionTrueFalse:
		if value == q.CorrectAnswer {
			return true, weight, nil
		}
		return false, 0, nil

	case QuestionShortAnswer, QuestionFillBlank:
		if strings.EqualFold(strings.TrimSpace(value), strings.TrimSpace(q.CorrectAnswer)) {
			return true, weight, nil
		}
		return false, 0, nil

	default:
		return false, 0, ErrUnsupportedQuestionType
	}
}

func correctOptionText(options []Option) string {
	for _, o := range options {
		if o.IsCorrect {
			return o.Text
		}
	}
	return ""
}

// FinalizeScore turns a set of stored answers into the attempt-level totals.
// TotalPoints of zero yields a zero percentage rather than a division error.
func FinalizeScore(answers []Answer, totalPoints float64) (score, percentage float64, letter string) {
	for _, a := range answers {
		score += a.Points
	}
	if totalPoints > 0 {
		percentage = 100 * score / totalPoints
	}
	return score, percentage, grade.Letter(percentage)
}
