package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type QuestionInput struct {
	Type          string   `json:"type" validate:"required,oneof=multiple_choice true_false short_answer fill_blank"`
	Prompt        string   `json:"prompt" validate:"required"`
	Options       []Option `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Points        float64  `json:"points" validate:"gt=0"`
}

type CreateExamInput struct {
	OwnerID         string
	Title           string          `json:"title" validate:"required"`
	Subject         string          `json:"subject"`
	GradeLevel      string          `json:"grade_level"`
	DurationMinutes int             `json:"duration_minutes" validate:"gt=0"`
	TotalPoints     float64         `json:"total_points" validate:"gte=0"`
	Schedule        Schedule        `json:"schedule"`
	Settings        Settings        `json:"settings"`
	Tags            []string        `json:"tags"`
	Questions       []QuestionInput `json:"questions" validate:"required,min=1,dive"`
}

type UpdateExamInput struct {
	ExamID      string
	RequesterID string
	CreateExamInput
}

// CreateExam stores a new draft exam owned by the requester. Question
// definitions are validated up front so the scorer never meets a malformed
// correctness spec at attempt time.
func (s *Service) CreateExam(ctx context.Context, in CreateExamInput) (*Exam, error) {
	if err := validateExamInput(in); err != nil {
		return nil, err
	}

	now := s.nowFn().UTC().Truncate(time.Second)
	ex := &Exam{
		ID:              uuid.NewString(),
		OwnerID:         in.OwnerID,
		Title:           in.Title,
		Subject:         in.Subject,
		GradeLevel:      in.GradeLevel,
		DurationMinutes: in.DurationMinutes,
		TotalPoints:     in.TotalPoints,
		Status:          StatusDraft,
		Schedule:        in.Schedule,
		Settings:        normalizeSettings(in.Settings),
		Tags:            in.Tags,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i, q := range in.Questions {
		ex.Questions = append(ex.Questions, Question{
			ID:            uuid.NewString(),
			Type:          q.Type,
			Prompt:        q.Prompt,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Points:        q.Points,
			Position:      i + 1,
		})
	}
	ex.PointsMismatch = pointsMismatch(ex.Questions, ex.TotalPoints)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	tagsJSON, _ := json.Marshal(ex.Tags)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO exams (
			id, owner_id, title, subject, grade_level, duration_minutes,
			total_points, status, start_at, end_at, timezone,
			shuffle_questions, shuffle_options, max_attempts, proctored,
			tags_json, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,'draft',$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, ex.ID, ex.OwnerID, ex.Title, ex.Subject, ex.GradeLevel, ex.DurationMinutes,
		ex.TotalPoints, ex.Schedule.StartAt.Unix(), ex.Schedule.EndAt.Unix(), ex.Schedule.Timezone,
		boolToInt(ex.Settings.ShuffleQuestions), boolToInt(ex.Settings.ShuffleOptions),
		ex.Settings.MaxAttempts, boolToInt(ex.Settings.Proctored),
		string(tagsJSON), now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert exam: %w", err)
	}

	if err := insertQuestions(ctx, tx, ex.ID, ex.Questions); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}
	return ex, nil
}

// UpdateExam replaces a draft exam's definition. Non-draft exams are
// read-only; and once any attempt row exists the question bank is frozen so
// stored scores can never be invalidated retroactively.
func (s *Service) UpdateExam(ctx context.Context, in UpdateExamInput) (*Exam, error) {
	if err := validateExamInput(in.CreateExamInput); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ownerID, status string
	err = tx.QueryRowContext(ctx, `
		SELECT owner_id, status FROM exams WHERE id = $1
	`+s.forUpdate(), in.ExamID).Scan(&ownerID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("load exam for update: %w", err)
	}
	if ownerID != in.RequesterID {
		return nil, ErrForbidden
	}
	if status != StatusDraft {
		return nil, ErrInvalidState
	}

	var attemptCount int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attempts WHERE exam_id = $1
	`, in.ExamID).Scan(&attemptCount); err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if attemptCount > 0 {
		return nil, ErrQuestionsLocked
	}

	now := s.nowFn().UTC().Truncate(time.Second)
	settings := normalizeSettings(in.Settings)
	tagsJSON, _ := json.Marshal(in.Tags)
	_, err = tx.ExecContext(ctx, `
		UPDATE exams
		SET title = $2, subject = $3, grade_level = $4, duration_minutes = $5,
			total_points = $6, start_at = $7, end_at = $8, timezone = $9,
			shuffle_questions = $10, shuffle_options = $11, max_attempts = $12,
			proctored = $13, tags_json = $14, updated_at = $15
		WHERE id = $1
	`, in.ExamID, in.Title, in.Subject, in.GradeLevel, in.DurationMinutes,
		in.TotalPoints, in.Schedule.StartAt.Unix(), in.Schedule.EndAt.Unix(), in.Schedule.Timezone,
		boolToInt(settings.ShuffleQuestions), boolToInt(settings.ShuffleOptions),
		settings.MaxAttempts, boolToInt(settings.Proctored), string(tagsJSON), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM exam_questions WHERE exam_id = $1`, in.ExamID); err != nil {
		return nil, fmt.Errorf("clear questions: %w", err)
	}

	questions := make([]Question, 0, len(in.Questions))
	for i, q := range in.Questions {
		questions = append(questions, Question{
			ID:            uuid.NewString(),
			Type:          q.Type,
			Prompt:        q.Prompt,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Points:        q.Points,
			Position:      i + 1,
		})
	}
	if err := insertQuestions(ctx, tx, in.ExamID, questions); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}

	return s.GetExam(ctx, in.ExamID, true)
}

// Publish makes a draft exam attemptable within its window.
func (s *Service) Publish(ctx context.Context, examID, requesterID string) error {
	return s.transition(ctx, examID, requesterID, StatusDraft, StatusPublished)
}

// Archive freezes a published exam: no new attempts, results retained.
// Open attempts are left as they are; once the window closes they become
// unscoreable rather than being force-completed.
func (s *Service) Archive(ctx context.Context, examID, requesterID string) error {
	return s.transition(ctx, examID, requesterID, StatusPublished, StatusArchived)
}

// Cancel is terminal and allowed from any non-cancelled status.
func (s *Service) Cancel(ctx context.Context, examID, requesterID string) error {
	return s.transition(ctx, examID, requesterID, "", StatusCancelled)
}

func (s *Service) transition(ctx context.Context, examID, requesterID, from, to string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ownerID, status string
	err = tx.QueryRowContext(ctx, `
		SELECT owner_id, status FROM exams WHERE id = $1
	`+s.forUpdate(), examID).Scan(&ownerID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrExamNotFound
		}
		return fmt.Errorf("load exam for transition: %w", err)
	}
	if ownerID != requesterID {
		return ErrForbidden
	}
	if from != "" && status != from {
		return ErrInvalidState
	}
	if from == "" && status == to {
		return ErrInvalidState
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE exams SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4
	`, examID, to, s.nowFn().Unix(), status)
	if err != nil {
		return fmt.Errorf("transition exam: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition result: %w", err)
	}
	if affected != 1 {
		return ErrInvalidState
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// GetExam loads the full exam including its analytics snapshot. With
// includeKeys false the correctness spec is stripped for student callers,
// mirroring what the attempt UI is allowed to see.
func (s *Service) GetExam(ctx context.Context, examID string, includeKeys bool) (*Exam, error) {
	ex, err := s.loadExamHeader(ctx, s.db, examID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, qtype, prompt, options_json, correct_answer, points, position
		FROM exam_questions
		WHERE exam_id = $1
		ORDER BY position
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			q           Question
			optionsJSON string
		)
		if err := rows.Scan(&q.ID, &q.Type, &q.Prompt, &optionsJSON, &q.CorrectAnswer, &q.Points, &q.Position); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		if err := decodeOptions(optionsJSON, &q.Options); err != nil {
			return nil, fmt.Errorf("decode question options: %w", err)
		}
		ex.Questions = append(ex.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}

	ex.PointsMismatch = pointsMismatch(ex.Questions, ex.TotalPoints)
	if !includeKeys {
		stripAnswerKeys(ex)
	}
	return ex, nil
}

func (s *Service) loadExamHeader(ctx context.Context, q queryable, examID string) (*Exam, error) {
	var (
		ex                                             Exam
		startAt, endAt, createdAt, updatedAt           int64
		shuffleQuestions, shuffleOptions, proctoredInt int
		tagsJSON                                       string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, owner_id, title, subject, grade_level, duration_minutes,
			total_points, status, start_at, end_at, timezone,
			shuffle_questions, shuffle_options, max_attempts, proctored,
			tags_json, total_attempts, average_score, average_time_secs,
			completion_rate, created_at, updated_at
		FROM exams
		WHERE id = $1
	`, examID).Scan(
		&ex.ID, &ex.OwnerID, &ex.Title, &ex.Subject, &ex.GradeLevel, &ex.DurationMinutes,
		&ex.TotalPoints, &ex.Status, &startAt, &endAt, &ex.Schedule.Timezone,
		&shuffleQuestions, &shuffleOptions, &ex.Settings.MaxAttempts, &proctoredInt,
		&tagsJSON, &ex.Analytics.TotalAttempts, &ex.Analytics.AverageScore,
		&ex.Analytics.AverageTimeSecs, &ex.Analytics.CompletionRate, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("load exam: %w", err)
	}

	ex.Schedule.StartAt = time.Unix(startAt, 0).UTC()
	ex.Schedule.EndAt = time.Unix(endAt, 0).UTC()
	ex.Settings.ShuffleQuestions = shuffleQuestions != 0
	ex.Settings.ShuffleOptions = shuffleOptions != 0
	ex.Settings.Proctored = proctoredInt != 0
	ex.CreatedAt = time.Unix(createdAt, 0).UTC()
	ex.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &ex.Tags); err != nil {
			return nil, fmt.Errorf("decode exam tags: %w", err)
		}
	}
	return &ex, nil
}

func insertQuestions(ctx context.Context, tx *sql.Tx, examID string, questions []Question) error {
	for _, q := range questions {
		optionsJSON, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("encode question options: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO exam_questions (exam_id, id, position, qtype, prompt, options_json, correct_answer, points)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, examID, q.ID, q.Position, q.Type, q.Prompt, string(optionsJSON), q.CorrectAnswer, q.Points); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
	}
	return nil
}

func validateExamInput(in CreateExamInput) error {
	if in.Title == "" || in.DurationMinutes <= 0 || len(in.Questions) == 0 {
		return ErrInvalidInput
	}
	if !in.Schedule.StartAt.Before(in.Schedule.EndAt) {
		return ErrInvalidInput
	}
	for _, q := range in.Questions {
		if err := validateQuestionInput(q); err != nil {
			return err
		}
	}
	return nil
}

func validateQuestionInput(q QuestionInput) error {
	if q.Prompt == "" || q.Points <= 0 {
		return ErrInvalidInput
	}
	switch q.Type {
	case QuestionMultipleChoice:
		if len(q.Options) < 2 {
			return ErrInvalidInput
		}
		correct := 0
		for _, o := range q.Options {
			if o.Text == "" {
				return ErrInvalidInput
			}
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return ErrInvalidInput
		}
	case QuestionTrueFalse:
		if q.CorrectAnswer != "true" && q.CorrectAnswer != "false" {
			return ErrInvalidInput
		}
	case QuestionShortAnswer, QuestionFillBlank:
		if q.CorrectAnswer == "" {
			return ErrInvalidInput
		}
	default:
		return ErrUnsupportedQuestionType
	}
	return nil
}

func normalizeSettings(s Settings) Settings {
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 1
	}
	return s
}

// pointsMismatch flags the soft invariant from the data model: question
// points should sum to total_points, but scoring divides by total_points
// either way, so a mismatch is surfaced rather than rejected.
func pointsMismatch(questions []Question, totalPoints float64) bool {
	if len(questions) == 0 {
		return false
	}
	sum := 0.0
	for _, q := range questions {
		sum += q.Points
	}
	return math.Abs(sum-totalPoints) > 1e-9
}

func stripAnswerKeys(ex *Exam) {
	for i := range ex.Questions {
		ex.Questions[i].CorrectAnswer = ""
		for j := range ex.Questions[i].Options {
			ex.Questions[i].Options[j].IsCorrect = false
		}
	}
}

func decodeOptions(raw string, out *[]Option) error {
	if raw == "" || raw == "[]" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}
