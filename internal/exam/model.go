package exam

import "time"

// Exam statuses. Attempts may only be started against a published exam.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
	StatusCancelled = "cancelled"
)

// Attempt statuses. Transitions are forward only: in_progress -> completed.
const (
	AttemptInProgress = "in_progress"
	AttemptCompleted  = "completed"
)

// Question types supported by the scorer.
const (
	QuestionMultipleChoice = "multiple_choice"
	QuestionTrueFalse      = "true_false"
	QuestionShortAnswer    = "short_answer"
	QuestionFillBlank      = "fill_blank"
)

type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type Question struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	Prompt        string   `json:"prompt"`
	Options       []Option `json:"options,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
	Points        float64  `json:"points"`
	Position      int      `json:"position"`
}

type Schedule struct {
	StartAt  time.Time `json:"start_at"`
	EndAt    time.Time `json:"end_at"`
	Timezone string    `json:"timezone,omitempty"`
}

type Settings struct {
	ShuffleQuestions bool `json:"shuffle_questions"`
	ShuffleOptions   bool `json:"shuffle_options"`
	MaxAttempts      int  `json:"max_attempts"`
	Proctored        bool `json:"proctored"`
}

// Analytics is the per-exam running aggregate, stored on the exam row and
// updated inside the attempt-completion transaction.
type Analytics struct {
	TotalAttempts   int64   `json:"total_attempts"`
	AverageScore    float64 `json:"average_score"`
	AverageTimeSecs float64 `json:"average_time_secs"`
	CompletionRate  float64 `json:"completion_rate"`
}

type Exam struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Title           string     `json:"title"`
	Subject         string     `json:"subject"`
	GradeLevel      string     `json:"grade_level,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	TotalPoints     float64    `json:"total_points"`
	Status          string     `json:"status"`
	Schedule        Schedule   `json:"schedule"`
	Settings        Settings   `json:"settings"`
	Tags            []string   `json:"tags,omitempty"`
	Questions       []Question `json:"questions,omitempty"`
	Analytics       Analytics  `json:"analytics"`

	// PointsMismatch flags exams whose question points do not sum to
	// TotalPoints. Scoring still divides by TotalPoints.
	PointsMismatch bool `json:"points_mismatch,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Answer struct {
	QuestionID    string    `json:"question_id"`
	Value         string    `json:"value"`
	IsCorrect     bool      `json:"is_correct"`
	Points        float64   `json:"points"`
	TimeSpentSecs int64     `json:"time_spent_secs,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Attempt is one student's pass at an exam. Identity is the
// (exam, student, attempt_no) triple; attempt_no starts at 1.
type Attempt struct {
	ID            string     `json:"id"`
	ExamID        string     `json:"exam_id"`
	StudentID     string     `json:"student_id"`
	AttemptNo     int        `json:"attempt_no"`
	Status        string     `json:"status"`
	Answers       []Answer   `json:"answers,omitempty"`
	Score         float64    `json:"score"`
	Percentage    float64    `json:"percentage"`
	LetterGrade   string     `json:"letter_grade,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	TimeSpentSecs int64      `json:"time_spent_secs"`
}
