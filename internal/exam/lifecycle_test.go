package exam

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateExamValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*CreateExamInput)
		wantErr error
	}{
		{name: "empty title", mutate: func(in *CreateExamInput) { in.Title = "" }, wantErr: ErrInvalidInput},
		{name: "zero duration", mutate: func(in *CreateExamInput) { in.DurationMinutes = 0 }, wantErr: ErrInvalidInput},
		{name: "no questions", mutate: func(in *CreateExamInput) { in.Questions = nil }, wantErr: ErrInvalidInput},
		{
			name: "window start not before end",
			mutate: func(in *CreateExamInput) {
				in.Schedule.EndAt = in.Schedule.StartAt
			},
			wantErr: ErrInvalidInput,
		},
		{
			name: "multiple choice with no correct option",
			mutate: func(in *CreateExamInput) {
				in.Questions = []QuestionInput{{
					Type:    QuestionMultipleChoice,
					Prompt:  "pick one",
					Options: []Option{{Text: "A"}, {Text: "B"}},
					Points:  10,
				}}
			},
			wantErr: ErrInvalidInput,
		},
		{
			name: "multiple choice with two correct options",
			mutate: func(in *CreateExamInput) {
				in.Questions = []QuestionInput{{
					Type:    QuestionMultipleChoice,
					Prompt:  "pick one",
					Options: []Option{{Text: "A", IsCorrect: true}, {Text: "B", IsCorrect: true}},
					Points:  10,
				}}
			},
			wantErr: ErrInvalidInput,
		},
		{
			name: "true false with bad key",
			mutate: func(in *CreateExamInput) {
				in.Questions = []QuestionInput{{
					Type:          QuestionTrueFalse,
					Prompt:        "yes or no",
					CorrectAnswer: "yes",
					Points:        5,
				}}
			},
			wantErr: ErrInvalidInput,
		},
		{
			name: "short answer without key",
			mutate: func(in *CreateExamInput) {
				in.Questions = []QuestionInput{{
					Type:   QuestionShortAnswer,
					Prompt: "describe",
					Points: 5,
				}}
			},
			wantErr: ErrInvalidInput,
		},
		{
			name: "unknown question type",
			mutate: func(in *CreateExamInput) {
				in.Questions = []QuestionInput{{
					Type:          "essay",
					Prompt:        "write",
					CorrectAnswer: "n/a",
					Points:        5,
				}}
			},
			wantErr: ErrUnsupportedQuestionType,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := baseExamInput(shortAnswerQuestions(), 100)
			tc.mutate(&in)
			if _, err := svc.CreateExam(ctx, in); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateExamDefaults(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	in := baseExamInput(shortAnswerQuestions(), 100)
	in.Settings.MaxAttempts = 0
	ex, err := svc.CreateExam(ctx, in)
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	if ex.Status != StatusDraft {
		t.Fatalf("expected draft status, got %s", ex.Status)
	}
	if ex.Settings.MaxAttempts != 1 {
		t.Fatalf("expected max_attempts default 1, got %d", ex.Settings.MaxAttempts)
	}
	for i, q := range ex.Questions {
		if q.Position != i+1 {
			t.Fatalf("expected position %d, got %d", i+1, q.Position)
		}
		if q.ID == "" {
			t.Fatalf("expected generated question id at position %d", i+1)
		}
	}
	if ex.PointsMismatch {
		t.Fatalf("did not expect points mismatch for 60+20+20 vs 100")
	}
}

func TestCreateExamFlagsPointsMismatch(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	in := baseExamInput(shortAnswerQuestions(), 90)
	ex, err := svc.CreateExam(context.Background(), in)
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	if !ex.PointsMismatch {
		t.Fatalf("expected points mismatch flag for 100 question points vs 90 total")
	}
}

func TestUpdateExamGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("owner only", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		ex, err := svc.CreateExam(ctx, baseExamInput(shortAnswerQuestions(), 100))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		in := UpdateExamInput{ExamID: ex.ID, RequesterID: "intruder", CreateExamInput: baseExamInput(shortAnswerQuestions(), 100)}
		if _, err := svc.UpdateExam(ctx, in); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("draft only", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		ex := createPublishedExam(t, svc, baseExamInput(shortAnswerQuestions(), 100))
		in := UpdateExamInput{ExamID: ex.ID, RequesterID: "teacher-1", CreateExamInput: baseExamInput(shortAnswerQuestions(), 100)}
		if _, err := svc.UpdateExam(ctx, in); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("missing exam", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		in := UpdateExamInput{ExamID: "nope", RequesterID: "teacher-1", CreateExamInput: baseExamInput(shortAnswerQuestions(), 100)}
		if _, err := svc.UpdateExam(ctx, in); !errors.Is(err, ErrExamNotFound) {
			t.Fatalf("expected ErrExamNotFound, got %v", err)
		}
	})
}

func TestUpdateExamReplacesQuestions(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	ex, err := svc.CreateExam(ctx, baseExamInput(shortAnswerQuestions(), 100))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	in := UpdateExamInput{ExamID: ex.ID, RequesterID: "teacher-1", CreateExamInput: baseExamInput([]QuestionInput{
		{Type: QuestionTrueFalse, Prompt: "sky is blue", CorrectAnswer: "true", Points: 100},
	}, 100)}
	in.Title = "Algebra Midterm v2"

	updated, err := svc.UpdateExam(ctx, in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Algebra Midterm v2" {
		t.Fatalf("expected updated title, got %q", updated.Title)
	}
	if len(updated.Questions) != 1 || updated.Questions[0].Type != QuestionTrueFalse {
		t.Fatalf("expected single true/false question, got %+v", updated.Questions)
	}
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("publish requires draft", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		ex := createPublishedExam(t, svc, baseExamInput(shortAnswerQuestions(), 100))
		if err := svc.Publish(ctx, ex.ID, "teacher-1"); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState on double publish, got %v", err)
		}
	})

	t.Run("archive requires published", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		ex, err := svc.CreateExam(ctx, baseExamInput(shortAnswerQuestions(), 100))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := svc.Archive(ctx, ex.ID, "teacher-1"); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState archiving a draft, got %v", err)
		}
	})

	t.Run("cancel from any status once", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		ex, err := svc.CreateExam(ctx, baseExamInput(shortAnswerQuestions(), 100))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := svc.Cancel(ctx, ex.ID, "teacher-1"); err != nil {
			t.Fatalf("cancel draft: %v", err)
		}
		if err := svc.Cancel(ctx, ex.ID, "teacher-1"); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState on double cancel, got %v", err)
		}
	})

	t.Run("owner only", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		ex, err := svc.CreateExam(ctx, baseExamInput(shortAnswerQuestions(), 100))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := svc.Publish(ctx, ex.ID, "intruder"); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})
}

func TestUpdateExamLockedOnceAttemptsExist(t *testing.T) {
	ctx := context.Background()
	svc, conn, _, _ := newTestService(t)

	ex := createPublishedExam(t, svc, baseExamInput(shortAnswerQuestions(), 100))
	assignStudents(t, conn, ex.ID, "student-1")
	if _, err := svc.Start(ctx, ex.ID, "student-1", ""); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Even if the exam were somehow back in draft, attempt rows freeze the
	// question bank. Force the status to exercise that branch.
	if _, err := conn.ExecContext(ctx, `UPDATE exams SET status = 'draft' WHERE id = $1`, ex.ID); err != nil {
		t.Fatalf("force draft: %v", err)
	}
	in := UpdateExamInput{ExamID: ex.ID, RequesterID: "teacher-1", CreateExamInput: baseExamInput(shortAnswerQuestions(), 100)}
	if _, err := svc.UpdateExam(ctx, in); !errors.Is(err, ErrQuestionsLocked) {
		t.Fatalf("expected ErrQuestionsLocked, got %v", err)
	}
}

func TestGetExamStripsAnswerKeysForStudents(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	questions := append(shortAnswerQuestions(), QuestionInput{
		Type:   QuestionMultipleChoice,
		Prompt: "pick",
		Options: []Option{
			{Text: "right", IsCorrect: true},
			{Text: "wrong"},
		},
		Points: 10,
	})
	ex, err := svc.CreateExam(ctx, baseExamInput(questions, 110))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	full, err := svc.GetExam(ctx, ex.ID, true)
	if err != nil {
		t.Fatalf("get with keys: %v", err)
	}
	if full.Questions[0].CorrectAnswer == "" {
		t.Fatalf("expected answer key present for teacher view")
	}

	stripped, err := svc.GetExam(ctx, ex.ID, false)
	if err != nil {
		t.Fatalf("get without keys: %v", err)
	}
	for _, q := range stripped.Questions {
		if q.CorrectAnswer != "" {
			t.Fatalf("expected correct_answer stripped, got %q", q.CorrectAnswer)
		}
		for _, o := range q.Options {
			if o.IsCorrect {
				t.Fatalf("expected option correctness stripped")
			}
		}
	}
	if len(stripped.Questions) != len(full.Questions) {
		t.Fatalf("stripping must not drop questions")
	}
}

func TestExamScheduleRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newTestService(t)

	in := baseExamInput(shortAnswerQuestions(), 100)
	in.Schedule.Timezone = "Asia/Jakarta"
	in.Tags = []string{"midterm", "algebra"}
	ex, err := svc.CreateExam(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.GetExam(ctx, ex.ID, true)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Schedule.StartAt.Equal(testBase.Add(-time.Hour)) || !got.Schedule.EndAt.Equal(testBase.Add(2*time.Hour)) {
		t.Fatalf("schedule did not round-trip: %+v", got.Schedule)
	}
	if got.Schedule.Timezone != "Asia/Jakarta" {
		t.Fatalf("timezone did not round-trip: %q", got.Schedule.Timezone)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "midterm" {
		t.Fatalf("tags did not round-trip: %v", got.Tags)
	}
}
