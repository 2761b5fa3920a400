package exam

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"examlms/internal/app/apiresp"
	"examlms/internal/auth"
)

type Handler struct {
	svc      examService
	validate *validator.Validate
}

type examService interface {
	CreateExam(ctx context.Context, in CreateExamInput) (*Exam, error)
	UpdateExam(ctx context.Context, in UpdateExamInput) (*Exam, error)
	GetExam(ctx context.Context, examID string, includeKeys bool) (*Exam, error)
	Publish(ctx context.Context, examID, requesterID string) error
	Archive(ctx context.Context, examID, requesterID string) error
	Cancel(ctx context.Context, examID, requesterID string) error
	GenerateAccessToken(ctx context.Context, examID, requesterID string, ttlMinutes int) (*AccessToken, error)
	Start(ctx context.Context, examID, studentID, accessToken string) (*Attempt, error)
	SubmitAnswer(ctx context.Context, examID, studentID, questionID, value string, timeSpentSecs int64) (*Attempt, error)
	Complete(ctx context.Context, examID, studentID string) (*Attempt, error)
	CurrentAttempt(ctx context.Context, examID, studentID string) (*Attempt, error)
	ListResults(ctx context.Context, examID, studentID string) ([]Attempt, error)
}

func NewHandler(svc examService) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

type scheduleRequest struct {
	StartAt  string `json:"start_at"`
	EndAt    string `json:"end_at"`
	Timezone string `json:"timezone"`
}

type examRequest struct {
	Title           string          `json:"title"`
	Subject         string          `json:"subject"`
	GradeLevel      string          `json:"grade_level"`
	DurationMinutes int             `json:"duration_minutes"`
	TotalPoints     float64         `json:"total_points"`
	Schedule        scheduleRequest `json:"schedule"`
	Settings        Settings        `json:"settings"`
	Tags            []string        `json:"tags"`
	Questions       []QuestionInput `json:"questions"`
}

type startAttemptRequest struct {
	AccessToken string `json:"access_token"`
}

type submitAnswerRequest struct {
	Answer        string `json:"answer"`
	TimeSpentSecs int64  `json:"time_spent_secs"`
}

type accessTokenRequest struct {
	TTLMinutes int `json:"ttl_minutes"`
}

func (h *Handler) CreateExam(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req examRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	in, err := h.buildExamInput(req, user.ID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.svc.CreateExam(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, item)
}

func (h *Handler) UpdateExam(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	examID := chi.URLParam(r, "id")

	var req examRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	in, err := h.buildExamInput(req, user.ID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.svc.UpdateExam(r.Context(), UpdateExamInput{
		ExamID:          examID,
		RequesterID:     user.ID,
		CreateExamInput: in,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) GetExam(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	examID := chi.URLParam(r, "id")

	includeKeys := user.Role == auth.RoleTeacher || user.Role == auth.RoleAdmin
	item, err := h.svc.GetExam(r.Context(), examID, includeKeys)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Publish)
}

func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Archive)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, examID, requesterID string) error) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	examID := chi.URLParam(r, "id")

	if err := op(r.Context(), examID, user.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	item, err := h.svc.GetExam(r.Context(), examID, true)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) GenerateAccessToken(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	examID := chi.URLParam(r, "id")

	var req accessTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = accessTokenRequest{}
	}

	token, err := h.svc.GenerateAccessToken(r.Context(), examID, user.ID, req.TTLMinutes)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, token)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	examID := chi.URLParam(r, "id")

	var req startAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = startAttemptRequest{}
	}

	attempt, err := h.svc.Start(r.Context(), examID, user.ID, req.AccessToken)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, attempt)
}

func (h *Handler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	examID := chi.URLParam(r, "id")
	questionID := chi.URLParam(r, "questionID")

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	attempt, err := h.svc.SubmitAnswer(r.Context(), examID, user.ID, questionID, req.Answer, req.TimeSpentSecs)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, attempt)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	examID := chi.URLParam(r, "id")

	attempt, err := h.svc.Complete(r.Context(), examID, user.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, attempt)
}

func (h *Handler) CurrentAttempt(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	examID := chi.URLParam(r, "id")

	attempt, err := h.svc.CurrentAttempt(r.Context(), examID, user.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, attempt)
}

func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	examID := chi.URLParam(r, "id")

	studentID := user.ID
	if user.Role == auth.RoleTeacher || user.Role == auth.RoleAdmin {
		studentID = strings.TrimSpace(r.URL.Query().Get("student_id"))
	}

	items, err := h.svc.ListResults(r.Context(), examID, studentID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) buildExamInput(req examRequest, ownerID string) (CreateExamInput, error) {
	startAt, err := parseScheduleTime(req.Schedule.StartAt)
	if err != nil {
		return CreateExamInput{}, errors.New("schedule.start_at must be RFC3339")
	}
	endAt, err := parseScheduleTime(req.Schedule.EndAt)
	if err != nil {
		return CreateExamInput{}, errors.New("schedule.end_at must be RFC3339")
	}
	if !startAt.Before(endAt) {
		return CreateExamInput{}, errors.New("schedule.start_at must be before schedule.end_at")
	}

	in := CreateExamInput{
		OwnerID:         ownerID,
		Title:           strings.TrimSpace(req.Title),
		Subject:         strings.TrimSpace(req.Subject),
		GradeLevel:      strings.TrimSpace(req.GradeLevel),
		DurationMinutes: req.DurationMinutes,
		TotalPoints:     req.TotalPoints,
		Schedule:        Schedule{StartAt: startAt, EndAt: endAt, Timezone: req.Schedule.Timezone},
		Settings:        req.Settings,
		Tags:            req.Tags,
		Questions:       req.Questions,
	}
	if err := h.validate.Struct(in); err != nil {
		return CreateExamInput{}, errors.New("invalid exam payload: " + err.Error())
	}
	return in, nil
}

func parseScheduleTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(raw))
}

// Policy violations map to stable 4xx responses the client can branch on;
// anything else is an internal failure and stays generic.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrExamNotFound), errors.Is(err, ErrAttemptNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		apiresp.WriteError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAlreadyInProgress),
		errors.Is(err, ErrAlreadyCompleted),
		errors.Is(err, ErrAttemptLimitReached),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrQuestionsLocked):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotAvailable),
		errors.Is(err, ErrOutOfWindow),
		errors.Is(err, ErrNotStarted),
		errors.Is(err, ErrUnknownQuestion),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrTokenRequired),
		errors.Is(err, ErrTokenInvalid),
		errors.Is(err, ErrTokenExpired):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
