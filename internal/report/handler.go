package report

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"examlms/internal/app/apiresp"
	"examlms/internal/auth"
	"examlms/internal/exam"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ExamReport(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	examID := chi.URLParam(r, "id")

	f, ex, err := h.svc.ExamWorkbook(r.Context(), examID)
	if err != nil {
		if errors.Is(err, exam.ErrExamNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if user.Role != auth.RoleAdmin && ex.OwnerID != user.ID {
		apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "exam-report-"+examID+".xlsx"))
	if err := f.Write(w); err != nil {
		// Headers are already gone; nothing left to do but log upstream.
		return
	}
}
