// Package report exports exam results and analytics as xlsx workbooks for
// teachers who want the numbers outside the API.
package report

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"examlms/internal/exam"
)

type examReader interface {
	GetExam(ctx context.Context, examID string, includeKeys bool) (*exam.Exam, error)
	ListResults(ctx context.Context, examID, studentID string) ([]exam.Attempt, error)
}

type Service struct {
	exams examReader
}

func NewService(exams examReader) *Service {
	return &Service{exams: exams}
}

// ExamWorkbook builds a two-sheet workbook: completed results per student
// and the exam's aggregate analytics snapshot.
func (s *Service) ExamWorkbook(ctx context.Context, examID string) (*excelize.File, *exam.Exam, error) {
	ex, err := s.exams.GetExam(ctx, examID, true)
	if err != nil {
		return nil, nil, err
	}
	results, err := s.exams.ListResults(ctx, examID, "")
	if err != nil {
		return nil, nil, err
	}

	f := excelize.NewFile()
	const resultsSheet = "Results"
	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, nil, fmt.Errorf("rename sheet: %w", err)
	}

	headers := []string{"Student", "Attempt", "Score", "Percentage", "Letter", "Time Spent (s)", "Completed At"}
	for i, hdr := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(resultsSheet, cell, hdr); err != nil {
			return nil, nil, fmt.Errorf("write header: %w", err)
		}
	}
	for row, res := range results {
		values := []interface{}{
			res.StudentID,
			res.AttemptNo,
			res.Score,
			res.Percentage,
			res.LetterGrade,
			res.TimeSpentSecs,
			"",
		}
		if res.CompletedAt != nil {
			values[6] = res.CompletedAt.Format("2006-01-02 15:04:05")
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(resultsSheet, cell, v); err != nil {
				return nil, nil, fmt.Errorf("write result row: %w", err)
			}
		}
	}

	const analyticsSheet = "Analytics"
	if _, err := f.NewSheet(analyticsSheet); err != nil {
		return nil, nil, fmt.Errorf("add analytics sheet: %w", err)
	}
	summary := [][2]interface{}{
		{"Exam", ex.Title},
		{"Status", ex.Status},
		{"Total Points", ex.TotalPoints},
		{"Total Attempts", ex.Analytics.TotalAttempts},
		{"Average Score (%)", ex.Analytics.AverageScore},
		{"Average Time (s)", ex.Analytics.AverageTimeSecs},
		{"Completion Rate (%)", ex.Analytics.CompletionRate},
	}
	for i, kv := range summary {
		keyCell, _ := excelize.CoordinatesToCellName(1, i+1)
		valCell, _ := excelize.CoordinatesToCellName(2, i+1)
		if err := f.SetCellValue(analyticsSheet, keyCell, kv[0]); err != nil {
			return nil, nil, fmt.Errorf("write summary key: %w", err)
		}
		if err := f.SetCellValue(analyticsSheet, valCell, kv[1]); err != nil {
			return nil, nil, fmt.Errorf("write summary value: %w", err)
		}
	}

	return f, ex, nil
}
