package assignment

import (
	"encoding/json"
	"net/http"

	"examlms/internal/app/apiresp"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type gradeRequest struct {
	EarnedPoints float64 `json:"earned_points"`
	TotalPoints  float64 `json:"total_points"`
}

func (h *Handler) Grade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EarnedPoints < 0 || req.TotalPoints < 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "points must be non-negative")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, h.svc.Evaluate(req.EarnedPoints, req.TotalPoints))
}
