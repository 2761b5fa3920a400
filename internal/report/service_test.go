package report

import (
	"context"
	"testing"
	"time"

	"examlms/internal/exam"
)

type stubExamReader struct {
	exam    *exam.Exam
	results []exam.Attempt
	err     error
}

func (s *stubExamReader) GetExam(ctx context.Context, examID string, includeKeys bool) (*exam.Exam, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.exam, nil
}

func (s *stubExamReader) ListResults(ctx context.Context, examID, studentID string) ([]exam.Attempt, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func TestExamWorkbook(t *testing.T) {
	completedAt := time.Date(2026, 1, 10, 10, 30, 0, 0, time.UTC)
	reader := &stubExamReader{
		exam: &exam.Exam{
			ID:          "exam-1",
			OwnerID:     "teacher-1",
			Title:       "Algebra Midterm",
			Status:      exam.StatusArchived,
			TotalPoints: 100,
			Analytics: exam.Analytics{
				TotalAttempts:   2,
				AverageScore:    70,
				AverageTimeSecs: 900,
				CompletionRate:  100,
			},
		},
		results: []exam.Attempt{
			{
				StudentID:     "student-1",
				AttemptNo:     1,
				Score:         80,
				Percentage:    80,
				LetterGrade:   "B-",
				TimeSpentSecs: 600,
				CompletedAt:   &completedAt,
			},
			{
				StudentID:     "student-2",
				AttemptNo:     1,
				Score:         60,
				Percentage:    60,
				LetterGrade:   "D-",
				TimeSpentSecs: 1200,
				CompletedAt:   &completedAt,
			},
		},
	}

	svc := NewService(reader)
	f, ex, err := svc.ExamWorkbook(context.Background(), "exam-1")
	if err != nil {
		t.Fatalf("build workbook: %v", err)
	}
	if ex.ID != "exam-1" {
		t.Fatalf("expected exam echoed, got %q", ex.ID)
	}

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != "Results" || sheets[1] != "Analytics" {
		t.Fatalf("unexpected sheets: %v", sheets)
	}

	header, err := f.GetCellValue("Results", "A1")
	if err != nil || header != "Student" {
		t.Fatalf("expected Student header, got %q (%v)", header, err)
	}
	firstStudent, err := f.GetCellValue("Results", "A2")
	if err != nil || firstStudent != "student-1" {
		t.Fatalf("expected student-1 in first row, got %q (%v)", firstStudent, err)
	}
	letter, err := f.GetCellValue("Results", "E3")
	if err != nil || letter != "D-" {
		t.Fatalf("expected D- in second row, got %q (%v)", letter, err)
	}
	completed, err := f.GetCellValue("Results", "G2")
	if err != nil || completed != "2026-01-10 10:30:00" {
		t.Fatalf("expected formatted completion time, got %q (%v)", completed, err)
	}

	title, err := f.GetCellValue("Analytics", "B1")
	if err != nil || title != "Algebra Midterm" {
		t.Fatalf("expected exam title in analytics sheet, got %q (%v)", title, err)
	}
	avg, err := f.GetCellValue("Analytics", "B5")
	if err != nil || avg != "70" {
		t.Fatalf("expected average score 70, got %q (%v)", avg, err)
	}
}
