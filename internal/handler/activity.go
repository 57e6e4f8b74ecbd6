package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dukerupert/clubnotify/internal/activity"
)

type ActivityHandler struct {
	scorer *activity.Scorer
}

func NewActivityHandler(scorer *activity.Scorer) *ActivityHandler {
	return &ActivityHandler{scorer: scorer}
}

type activityResponse struct {
	UserID             string     `json:"user_id"`
	Score              float64    `json:"score"`
	RecentInteractions int        `json:"recent_interactions"`
	LastInteraction    *time.Time `json:"last_interaction,omitempty"`
}

func (h *ActivityHandler) snapshot(userID string) activityResponse {
	resp := activityResponse{
		UserID:             userID,
		Score:              h.scorer.GetScore(userID),
		RecentInteractions: h.scorer.RecentInteractions(userID),
	}
	if t, ok := h.scorer.LastInteraction(userID); ok {
		resp.LastInteraction = &t
	}
	return resp
}

type interactionRequest struct {
	Kind string `json:"kind"`
}

// RecordInteraction handles POST /api/activity/{user_id}/interactions
func (h *ActivityHandler) RecordInteraction(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	var req interactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	kind, err := activity.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.scorer.RecordInteraction(userID, kind)
	writeJSON(w, http.StatusOK, h.snapshot(userID))
}

// Get handles GET /api/activity/{user_id}
func (h *ActivityHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot(r.PathValue("user_id")))
}

// Reset handles DELETE /api/activity/{user_id}
func (h *ActivityHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.scorer.Reset(r.PathValue("user_id"))
	w.WriteHeader(http.StatusNoContent)
}
