package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/clubnotify/internal/model"
	"github.com/dukerupert/clubnotify/internal/push"
	"github.com/dukerupert/clubnotify/internal/routing"
)

// Presence reports whether a user has the app open somewhere.
type Presence interface {
	IsOnline(userID string) bool
}

// Dispatcher delivers a routed notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, n push.Notification, res routing.Result) error
}

type RoutingHandler struct {
	router     *routing.Router
	dispatcher Dispatcher
	presence   Presence
	logger     *slog.Logger
}

func NewRoutingHandler(router *routing.Router, dispatcher Dispatcher, presence Presence, logger *slog.Logger) *RoutingHandler {
	return &RoutingHandler{router: router, dispatcher: dispatcher, presence: presence, logger: logger}
}

type decideRequest struct {
	UserID       string `json:"user_id"`
	Type         string `json:"type"`
	AppState     string `json:"app_state"`
	NetworkState string `json:"network_state"`
	BatteryLevel *int   `json:"battery_level"`
	IsCharging   *bool  `json:"is_charging"`
}

type notifyRequest struct {
	decideRequest
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// toRouting validates the request. A missing app state is taken from
// websocket presence when available.
func (h *RoutingHandler) toRouting(req decideRequest) (routing.Request, error) {
	if req.UserID == "" {
		return routing.Request{}, errors.New("user_id is required")
	}
	t, err := model.ParseNotificationType(req.Type)
	if err != nil {
		return routing.Request{}, err
	}
	appState, err := model.ParseAppState(req.AppState)
	if err != nil {
		return routing.Request{}, err
	}
	if req.AppState == "" && h.presence != nil {
		appState = model.AppStateBackground
		if h.presence.IsOnline(req.UserID) {
			appState = model.AppStateForeground
		}
	}
	network, err := model.ParseNetworkState(req.NetworkState)
	if err != nil {
		return routing.Request{}, err
	}
	if b := req.BatteryLevel; b != nil && (*b < 0 || *b > 100) {
		return routing.Request{}, fmt.Errorf("battery_level %d out of range 0-100", *b)
	}

	return routing.Request{
		UserID:       req.UserID,
		Type:         t,
		AppState:     appState,
		Network:      network,
		BatteryLevel: req.BatteryLevel,
		IsCharging:   req.IsCharging,
	}, nil
}

// Decide handles POST /api/decide
func (h *RoutingHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	rr, err := h.toRouting(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.router.Route(r.Context(), rr))
}

// Notify handles POST /api/notifications
func (h *RoutingHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	rr, err := h.toRouting(req.decideRequest)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.router.Route(r.Context(), rr)
	n := push.Notification{Title: req.Title, Body: req.Body, URL: req.URL}
	if err := h.dispatcher.Dispatch(r.Context(), n, res); err != nil {
		h.logger.Error("dispatch notification", "user_id", rr.UserID, "entry_id", res.EntryID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to dispatch notification")
		return
	}

	writeJSON(w, http.StatusAccepted, res)
}

// Metrics handles GET /api/metrics
func (h *RoutingHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	window, ok := queryInt(r, "window", routing.DefaultMetricsWindow)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid window")
		return
	}
	writeJSON(w, http.StatusOK, h.router.Ledger().Metrics(window))
}

// History handles GET /api/ledger
func (h *RoutingHandler) History(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 100)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	writeJSON(w, http.StatusOK, h.router.Ledger().Recent(limit))
}

// ClearHistory handles DELETE /api/ledger
func (h *RoutingHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.router.Ledger().Clear()
	h.logger.Info("routing history cleared")
	w.WriteHeader(http.StatusNoContent)
}

type outcomeRequest struct {
	Outcome string `json:"outcome"`
}

// SetOutcome handles PUT /api/ledger/{id}/outcome
func (h *RoutingHandler) SetOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	outcome, ok := model.ParseOutcome(req.Outcome)
	if !ok {
		writeError(w, http.StatusBadRequest, "outcome must be success, failed or ignored")
		return
	}

	if err := h.router.Ledger().SetOutcome(r.PathValue("id"), outcome); err != nil {
		if errors.Is(err, routing.ErrEntryNotFound) {
			writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to set outcome")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
