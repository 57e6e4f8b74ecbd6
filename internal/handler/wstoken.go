package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/clubnotify/internal/websocket"
)

// WSTokenHandler issues connection tokens for the in-app websocket.
type WSTokenHandler struct {
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
}

// NewWSTokenHandler creates a WSTokenHandler. An empty secret disables issuing.
func NewWSTokenHandler(secret []byte, ttl time.Duration, logger *slog.Logger) *WSTokenHandler {
	return &WSTokenHandler{secret: secret, ttl: ttl, logger: logger}
}

type wsTokenRequest struct {
	UserID string `json:"user_id"`
}

// Issue handles POST /api/ws-tokens
func (h *WSTokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	if len(h.secret) == 0 {
		writeError(w, http.StatusNotFound, "websocket tokens are not configured")
		return
	}

	var req wsTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	token, expires, err := websocket.IssueToken(h.secret, req.UserID, h.ttl)
	if err != nil {
		h.logger.Error("issue websocket token", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token":      token,
		"expires_at": expires.UTC(),
	})
}
