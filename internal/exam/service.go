package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"examlms/internal/db"
)

var (
	ErrExamNotFound            = errors.New("exam not found")
	ErrForbidden               = errors.New("student not assigned to exam")
	ErrNotAvailable            = errors.New("exam not available for attempts")
	ErrOutOfWindow             = errors.New("outside exam window")
	ErrAlreadyInProgress       = errors.New("attempt already in progress")
	ErrAttemptLimitReached     = errors.New("attempt limit reached")
	ErrNotStarted              = errors.New("no attempt in progress")
	ErrUnknownQuestion         = errors.New("question not in exam")
	ErrAlreadyCompleted        = errors.New("attempt already completed")
	ErrUnsupportedQuestionType = errors.New("unsupported question type")
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrInvalidState            = errors.New("operation not allowed in current exam state")
	ErrQuestionsLocked         = errors.New("questions are locked once attempts exist")
	ErrInvalidInput            = errors.New("invalid input")
	ErrTokenRequired           = errors.New("exam access token required")
	ErrTokenInvalid            = errors.New("exam access token invalid")
	ErrTokenExpired            = errors.New("exam access token expired")
)

// Roster is the narrow contract to the class/roster collaborator. The engine
// only ever asks membership questions; roster management itself lives
// elsewhere.
type Roster interface {
	IsAssigned(ctx context.Context, examID, studentID string) (bool, error)
}

// CompletionEvent is emitted after an attempt finalizes. Downstream
// notification delivery is out of scope; this is the whole contract.
type CompletionEvent struct {
	ExamID      string    `json:"exam_id"`
	StudentID   string    `json:"student_id"`
	AttemptNo   int       `json:"attempt_no"`
	Percentage  float64   `json:"percentage"`
	LetterGrade string    `json:"letter_grade"`
	CompletedAt time.Time `json:"completed_at"`
}

type CompletionPublisher interface {
	PublishCompleted(ctx context.Context, ev CompletionEvent) error
}

type Service struct {
	db     *sql.DB
	driver db.Driver
	roster Roster
	events CompletionPublisher

	nowFn func() time.Time
}

func NewService(conn *sql.DB, driver db.Driver, roster Roster, events CompletionPublisher) *Service {
	return &Service{
		db:     conn,
		driver: driver,
		roster: roster,
		events: events,
		nowFn:  time.Now,
	}
}

type attemptRow struct {
	ID            string
	ExamID        string
	StudentID     string
	AttemptNo     int
	Status        string
	StartedAt     int64
	CompletedAt   sql.NullInt64
	Score         float64
	Percentage    float64
	LetterGrade   string
	TimeSpentSecs int64
}

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Start opens a new attempt. Preconditions are checked in a fixed order and
// the first failure wins: assignment, exam status, schedule window, access
// token for proctored exams, no open attempt, attempt count below the limit.
// The open-attempt and count checks run inside the insert transaction; a
// concurrent duplicate start loses on the partial unique index and surfaces
// as ErrAlreadyInProgress rather than a second row.
func (s *Service) Start(ctx context.Context, examID, studentID, accessToken string) (*Attempt, error) {
	ex, err := s.loadExamHeader(ctx, s.db, examID)
	if err != nil {
		return nil, err
	}

	assigned, err := s.roster.IsAssigned(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check assignment: %w", err)
	}
	if !assigned {
		return nil, ErrForbidden
	}

	if ex.Status != StatusPublished {
		return nil, ErrNotAvailable
	}

	now := s.nowFn()
	if now.Before(ex.Schedule.StartAt) || now.After(ex.Schedule.EndAt) {
		return nil, ErrOutOfWindow
	}

	if ex.Settings.Proctored {
		if err := s.verifyAccessToken(ctx, examID, accessToken, now); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin start tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var open, completed, total int
	err = tx.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN status = 'in_progress' THEN 1 END),
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COUNT(*)
		FROM attempts
		WHERE exam_id = $1 AND student_id = $2
	`, examID, studentID).Scan(&open, &completed, &total)
	if err != nil {
		return nil, fmt.Errorf("count attempts: %w", err)
	}
	if open > 0 {
		return nil, ErrAlreadyInProgress
	}
	if ex.Settings.MaxAttempts > 0 && completed >= ex.Settings.MaxAttempts {
		return nil, ErrAttemptLimitReached
	}

	attempt := &Attempt{
		ID:        uuid.NewString(),
		ExamID:    examID,
		StudentID: studentID,
		AttemptNo: total + 1,
		Status:    AttemptInProgress,
		StartedAt: now.UTC().Truncate(time.Second),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attempts (id, exam_id, student_id, attempt_no, status, started_at)
		VALUES ($1, $2, $3, $4, 'in_progress', $5)
	`, attempt.ID, examID, studentID, attempt.AttemptNo, attempt.StartedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyInProgress
		}
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit start: %w", err)
	}
	return attempt, nil
}

// SubmitAnswer scores a single answer and upserts it on the open attempt.
// Re-submitting the same question replaces the prior answer; that makes the
// operation a safe client retry and a "change my mind" path in one.
func (s *Service) SubmitAnswer(ctx context.Context, examID, studentID, questionID, value string, timeSpentSecs int64) (*Attempt, error) {
	ex, err := s.loadExamHeader(ctx, s.db, examID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin answer tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := s.lockOpenAttempt(ctx, tx, examID, studentID)
	if err != nil {
		return nil, err
	}

	if err := s.checkAttemptWindow(ex, row); err != nil {
		return nil, err
	}

	q, err := s.loadQuestion(ctx, tx, examID, questionID)
	if err != nil {
		return nil, err
	}

	isCorrect, points, err := ScoreAnswer(*q, value)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attempt_answers (attempt_id, question_id, answer_value, is_correct, points, time_spent_secs, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (attempt_id, question_id)
		DO UPDATE SET
			answer_value = EXCLUDED.answer_value,
			is_correct = EXCLUDED.is_correct,
			points = EXCLUDED.points,
			time_spent_secs = EXCLUDED.time_spent_secs,
			updated_at = EXCLUDED.updated_at
	`, row.ID, questionID, value, boolToInt(isCorrect), points, timeSpentSecs, s.nowFn().Unix())
	if err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}

	answers, err := s.loadAnswers(ctx, tx, row.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit answer: %w", err)
	}

	attempt := attemptFromRow(row)
	attempt.Answers = answers
	return attempt, nil
}

// Complete finalizes the open attempt: sums stored answer points, derives
// percentage and letter grade, flips the status and applies the exam-level
// analytics update in the same transaction. A second Complete on the same
// attempt returns ErrAlreadyCompleted and leaves analytics untouched.
func (s *Service) Complete(ctx context.Context, examID, studentID string) (*Attempt, error) {
	ex, err := s.loadExamHeader(ctx, s.db, examID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin complete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := s.lockOpenAttempt(ctx, tx, examID, studentID)
	if err != nil {
		return nil, err
	}

	if err := s.checkAttemptWindow(ex, row); err != nil {
		return nil, err
	}

	answers, err := s.loadAnswers(ctx, tx, row.ID)
	if err != nil {
		return nil, err
	}

	score, percentage, letter := FinalizeScore(answers, ex.TotalPoints)
	now := s.nowFn().UTC().Truncate(time.Second)
	timeSpent := now.Unix() - row.StartedAt
	if timeSpent < 0 {
		timeSpent = 0
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE attempts
		SET status = 'completed',
			completed_at = $2,
			score = $3,
			percentage = $4,
			letter_grade = $5,
			time_spent_secs = $6
		WHERE id = $1 AND status = 'in_progress'
	`, row.ID, now.Unix(), score, percentage, letter, timeSpent)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("finalize attempt result: %w", err)
	}
	if affected != 1 {
		return nil, ErrAlreadyCompleted
	}

	// Analytics ride in the completion transaction so a completed attempt
	// and its aggregate update are one logical write. The running means use
	// the pre-update total_attempts; completion rate is recomputed fresh
	// because the assigned-student denominator can change over time.
	_, err = tx.ExecContext(ctx, `
		UPDATE exams
		SET total_attempts = total_attempts + 1,
			average_score = average_score + ($2 - average_score) / (total_attempts + 1),
			average_time_secs = average_time_secs + ($3 - average_time_secs) / (total_attempts + 1),
			completion_rate = (
				SELECT CASE WHEN a.assigned = 0 THEN 0
					ELSE c.completed * 100.0 / a.assigned END
				FROM (SELECT COUNT(*) AS assigned FROM exam_assignments WHERE exam_id = $1) a,
					(SELECT COUNT(DISTINCT student_id) AS completed FROM attempts WHERE exam_id = $1 AND status = 'completed') c
			),
			updated_at = $4
		WHERE id = $1
	`, examID, percentage, float64(timeSpent), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("update analytics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit complete: %w", err)
	}

	attempt := attemptFromRow(row)
	attempt.Status = AttemptCompleted
	attempt.Answers = answers
	attempt.Score = score
	attempt.Percentage = percentage
	attempt.LetterGrade = letter
	attempt.CompletedAt = &now
	attempt.TimeSpentSecs = timeSpent

	if s.events != nil {
		ev := CompletionEvent{
			ExamID:      examID,
			StudentID:   studentID,
			AttemptNo:   attempt.AttemptNo,
			Percentage:  percentage,
			LetterGrade: letter,
			CompletedAt: now,
		}
		if err := s.events.PublishCompleted(ctx, ev); err != nil {
			// Best effort; the attempt is already durable.
			log.Printf("publish completion event: %v", err)
		}
	}

	return attempt, nil
}

// CurrentAttempt returns the open attempt for the pair, answers included.
func (s *Service) CurrentAttempt(ctx context.Context, examID, studentID string) (*Attempt, error) {
	row, err := s.loadAttemptByStatus(ctx, s.db, examID, studentID, AttemptInProgress)
	if err != nil {
		if errors.Is(err, ErrAttemptNotFound) {
			return nil, ErrNotStarted
		}
		return nil, err
	}
	answers, err := s.loadAnswers(ctx, s.db, row.ID)
	if err != nil {
		return nil, err
	}
	attempt := attemptFromRow(row)
	attempt.Answers = answers
	return attempt, nil
}

// ListResults returns completed attempts for an exam, newest first. Student
// callers are restricted to their own rows by the handler.
func (s *Service) ListResults(ctx context.Context, examID, studentID string) ([]Attempt, error) {
	query := `
		SELECT id, exam_id, student_id, attempt_no, status, started_at,
			completed_at, score, percentage, letter_grade, time_spent_secs
		FROM attempts
		WHERE exam_id = $1 AND status = 'completed'`
	args := []interface{}{examID}
	if studentID != "" {
		query += ` AND student_id = $2`
		args = append(args, studentID)
	}
	query += ` ORDER BY completed_at DESC, attempt_no DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	out := make([]Attempt, 0)
	for rows.Next() {
		var r attemptRow
		if err := rows.Scan(&r.ID, &r.ExamID, &r.StudentID, &r.AttemptNo, &r.Status, &r.StartedAt,
			&r.CompletedAt, &r.Score, &r.Percentage, &r.LetterGrade, &r.TimeSpentSecs); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		out = append(out, *attemptFromRow(&r))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return out, nil
}

// checkAttemptWindow rejects mutations once the exam window has closed or
// the per-attempt duration has elapsed. There is no background sweep that
// force-completes expired attempts; they simply stop accepting writes.
func (s *Service) checkAttemptWindow(ex *Exam, row *attemptRow) error {
	now := s.nowFn()
	if now.After(ex.Schedule.EndAt) {
		return ErrOutOfWindow
	}
	if ex.DurationMinutes > 0 {
		deadline := time.Unix(row.StartedAt, 0).Add(time.Duration(ex.DurationMinutes) * time.Minute)
		if now.After(deadline) {
			return ErrOutOfWindow
		}
	}
	return nil
}

func (s *Service) lockOpenAttempt(ctx context.Context, tx *sql.Tx, examID, studentID string) (*attemptRow, error) {
	row := &attemptRow{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, exam_id, student_id, attempt_no, status, started_at,
			completed_at, score, percentage, letter_grade, time_spent_secs
		FROM attempts
		WHERE exam_id = $1 AND student_id = $2 AND status = 'in_progress'
	`+s.forUpdate(), examID, studentID).Scan(
		&row.ID, &row.ExamID, &row.StudentID, &row.AttemptNo, &row.Status, &row.StartedAt,
		&row.CompletedAt, &row.Score, &row.Percentage, &row.LetterGrade, &row.TimeSpentSecs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.classifyMissingOpenAttempt(ctx, tx, examID, studentID)
		}
		return nil, fmt.Errorf("lock attempt: %w", err)
	}
	return row, nil
}

// classifyMissingOpenAttempt distinguishes "never started" from "already
// completed" so a double-submit renders the right message.
func (s *Service) classifyMissingOpenAttempt(ctx context.Context, q queryable, examID, studentID string) error {
	var completed int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM attempts
		WHERE exam_id = $1 AND student_id = $2 AND status = 'completed'
	`, examID, studentID).Scan(&completed)
	if err != nil {
		return fmt.Errorf("classify attempt state: %w", err)
	}
	if completed > 0 {
		return ErrAlreadyCompleted
	}
	return ErrNotStarted
}

func (s *Service) loadAttemptByStatus(ctx context.Context, q queryable, examID, studentID, status string) (*attemptRow, error) {
	row := &attemptRow{}
	err := q.QueryRowContext(ctx, `
		SELECT id, exam_id, student_id, attempt_no, status, started_at,
			completed_at, score, percentage, letter_grade, time_spent_secs
		FROM attempts
		WHERE exam_id = $1 AND student_id = $2 AND status = $3
		ORDER BY attempt_no DESC
		LIMIT 1
	`, examID, studentID, status).Scan(
		&row.ID, &row.ExamID, &row.StudentID, &row.AttemptNo, &row.Status, &row.StartedAt,
		&row.CompletedAt, &row.Score, &row.Percentage, &row.LetterGrade, &row.TimeSpentSecs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	return row, nil
}

func (s *Service) loadQuestion(ctx context.Context, q queryable, examID, questionID string) (*Question, error) {
	var (
		question    Question
		optionsJSON string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, qtype, prompt, options_json, correct_answer, points, position
		FROM exam_questions
		WHERE exam_id = $1 AND id = $2
	`, examID, questionID).Scan(
		&question.ID, &question.Type, &question.Prompt, &optionsJSON,
		&question.CorrectAnswer, &question.Points, &question.Position,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnknownQuestion
		}
		return nil, fmt.Errorf("load question: %w", err)
	}
	if err := decodeOptions(optionsJSON, &question.Options); err != nil {
		return nil, fmt.Errorf("decode question options: %w", err)
	}
	return &question, nil
}

func (s *Service) loadAnswers(ctx context.Context, q queryable, attemptID string) ([]Answer, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT question_id, answer_value, is_correct, points, time_spent_secs, updated_at
		FROM attempt_answers
		WHERE attempt_id = $1
		ORDER BY question_id
	`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	out := make([]Answer, 0)
	for rows.Next() {
		var (
			a         Answer
			isCorrect int
			updatedAt int64
		)
		if err := rows.Scan(&a.QuestionID, &a.Value, &isCorrect, &a.Points, &a.TimeSpentSecs, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan answer row: %w", err)
		}
		a.IsCorrect = isCorrect != 0
		a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

func (s *Service) forUpdate() string {
	// SQLite has no row locks; its single-writer connection serializes
	// attempt mutations instead.
	if s.driver == db.DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func attemptFromRow(row *attemptRow) *Attempt {
	a := &Attempt{
		ID:            row.ID,
		ExamID:        row.ExamID,
		StudentID:     row.StudentID,
		AttemptNo:     row.AttemptNo,
		Status:        row.Status,
		Score:         row.Score,
		Percentage:    row.Percentage,
		LetterGrade:   row.LetterGrade,
		StartedAt:     time.Unix(row.StartedAt, 0).UTC(),
		TimeSpentSecs: row.TimeSpentSecs,
	}
	if row.CompletedAt.Valid {
		t := time.Unix(row.CompletedAt.Int64, 0).UTC()
		a.CompletedAt = &t
	}
	return a
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	// pgx surfaces SQLSTATE 23505, modernc sqlite a UNIQUE constraint message.
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
