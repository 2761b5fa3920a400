package roster

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"examlms/internal/app/apiresp"
	"examlms/internal/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type replaceAssignmentsRequest struct {
	StudentIDs []string `json:"student_ids"`
}

func (h *Handler) ReplaceAssignments(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	examID := chi.URLParam(r, "id")

	var req replaceAssignmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	kept, err := h.svc.Replace(r.Context(), examID, req.StudentIDs, user.ID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{"student_ids": kept})
}

func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "id")
	items, err := h.svc.AssignedStudents(r.Context(), examID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]interface{}{"student_ids": items})
}
