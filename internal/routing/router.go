// Package routing decides, per notification, which channels to deliver on,
// with what delay, and whether it may be batched.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/clubnotify/internal/model"
)

// PreferencesGateway loads a user's notification preferences.
type PreferencesGateway interface {
	GetPreferences(ctx context.Context, userID string) (model.NotificationPreferences, error)
}

// ActivitySource supplies engagement signals for a user.
type ActivitySource interface {
	GetScore(userID string) float64
	RecentInteractions(userID string) int
}

// Request describes one notification to route.
type Request struct {
	UserID       string
	Type         model.NotificationType
	AppState     model.AppState
	Network      model.NetworkState
	BatteryLevel *int
	IsCharging   *bool
}

// Result is a routing decision along with everything that produced it.
type Result struct {
	EntryID     string                        `json:"entry_id"`
	Context     model.DeliveryContext         `json:"context"`
	Preferences model.NotificationPreferences `json:"-"`
	Strategy    model.DeliveryStrategy        `json:"strategy"`
	Decision    model.DeliveryDecision        `json:"decision"`
}

// Router builds delivery contexts, selects a strategy, and records it.
type Router struct {
	prefs    PreferencesGateway
	activity ActivitySource
	selector *Selector
	ledger   *Ledger
	logger   *slog.Logger
	now      func() time.Time
}

// NewRouter creates a Router. A nil selector uses the default rule table.
func NewRouter(prefs PreferencesGateway, activity ActivitySource, selector *Selector, ledger *Ledger, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if selector == nil {
		selector = NewSelector(LogSink{Logger: logger})
	}
	return &Router{
		prefs:    prefs,
		activity: activity,
		selector: selector,
		ledger:   ledger,
		logger:   logger,
		now:      time.Now,
	}
}

// Ledger returns the router's decision history.
func (r *Router) Ledger() *Ledger {
	return r.ledger
}

// Decide routes a notification on a connected network with no battery
// information and returns the channel decision.
func (r *Router) Decide(ctx context.Context, userID string, t model.NotificationType, appState model.AppState) model.DeliveryDecision {
	return r.Route(ctx, Request{
		UserID:   userID,
		Type:     t,
		AppState: appState,
		Network:  model.NetworkConnected,
	}).Decision
}

// Route routes a notification. It always returns a usable result.
func (r *Router) Route(ctx context.Context, req Request) Result {
	prefs := r.preferences(ctx, req.UserID)
	dc := r.buildContext(req)

	strategy := r.selector.SelectStrategy(dc, prefs)
	entry := r.ledger.Record(dc, strategy)
	decision := ToDecision(strategy)

	r.logger.Debug("notification routed",
		"user_id", req.UserID,
		"type", req.Type,
		"strategy", strategy.Name,
		"method", decision.DeliveryMethod,
	)

	return Result{
		EntryID:     entry.ID,
		Context:     dc,
		Preferences: prefs,
		Strategy:    strategy,
		Decision:    decision,
	}
}

func (r *Router) preferences(ctx context.Context, userID string) model.NotificationPreferences {
	if r.prefs == nil {
		return model.DefaultPreferences(userID)
	}
	prefs, err := r.prefs.GetPreferences(ctx, userID)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrPreferencesUnavailable, err)
		r.logger.Warn("using default preferences", "user_id", userID, "error", err)
		return model.DefaultPreferences(userID)
	}
	return prefs
}

func (r *Router) buildContext(req Request) model.DeliveryContext {
	appState := req.AppState
	if appState == "" {
		appState = model.AppStateUnknown
	}
	network := req.Network
	if network == "" {
		network = model.NetworkConnected
	}

	dc := model.DeliveryContext{
		UserID:           req.UserID,
		NotificationType: req.Type,
		Priority:         model.PriorityFor(req.Type),
		AppState:         appState,
		DeviceState:      model.DeviceStateFor(appState),
		NetworkState:     network,
		BatteryLevel:     req.BatteryLevel,
		IsCharging:       req.IsCharging,
		CurrentTime:      r.now(),
	}
	if r.activity != nil {
		dc.UserActivityScore = r.activity.GetScore(req.UserID)
		dc.RecentInteractions = r.activity.RecentInteractions(req.UserID)
	}
	return dc
}
