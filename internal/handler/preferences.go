package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/clubnotify/internal/model"
	"github.com/dukerupert/clubnotify/internal/quiethours"
)

// PreferencesStore reads and writes notification preferences.
type PreferencesStore interface {
	GetPreferences(ctx context.Context, userID string) (model.NotificationPreferences, error)
	SavePreferences(ctx context.Context, p model.NotificationPreferences) (model.NotificationPreferences, error)
}

type PreferencesHandler struct {
	store  PreferencesStore
	logger *slog.Logger
}

func NewPreferencesHandler(store PreferencesStore, logger *slog.Logger) *PreferencesHandler {
	return &PreferencesHandler{store: store, logger: logger}
}

// Get handles GET /api/preferences/{user_id}
func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	prefs, err := h.store.GetPreferences(r.Context(), userID)
	if err != nil {
		h.logger.Error("get preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

// Update handles PUT /api/preferences/{user_id}. Fields omitted from the
// body keep their current values.
func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	prefs, err := h.store.GetPreferences(r.Context(), userID)
	if err != nil {
		h.logger.Error("get preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get preferences")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	prefs.UserID = userID

	if err := quiethours.Validate(prefs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	saved, err := h.store.SavePreferences(r.Context(), prefs)
	if err != nil {
		h.logger.Error("save preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}
