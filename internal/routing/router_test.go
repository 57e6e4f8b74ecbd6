package routing

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/clubnotify/internal/activity"
	"github.com/dukerupert/clubnotify/internal/model"
)

type stubGateway struct {
	prefs map[string]model.NotificationPreferences
	err   error
	calls int
	mu    sync.Mutex
}

func (g *stubGateway) GetPreferences(ctx context.Context, userID string) (model.NotificationPreferences, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return model.NotificationPreferences{}, g.err
	}
	if p, ok := g.prefs[userID]; ok {
		return p, nil
	}
	return model.DefaultPreferences(userID), nil
}

func setupRouter(t *testing.T, gw PreferencesGateway) (*Router, *activity.Scorer) {
	t.Helper()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	scorer := activity.NewScorerWithClock(clock)
	ledger := NewLedger(DefaultLedgerCapacity, scorer)
	r := NewRouter(gw, scorer, nil, ledger, slog.Default())
	r.now = clock
	return r, scorer
}

func raiseScore(s *activity.Scorer, userID string, target float64) {
	for s.GetScore(userID) < target {
		s.RecordInteraction(userID, activity.KindType)
	}
}

func TestDecideActiveForegroundClubMessage(t *testing.T) {
	r, scorer := setupRouter(t, &stubGateway{})
	raiseScore(scorer, "u1", 85)

	res := r.Route(context.Background(), Request{
		UserID:   "u1",
		Type:     model.NotifTypeClubMessage,
		AppState: model.AppStateForeground,
	})

	if res.Strategy.Name != model.StrategyActiveForeground {
		t.Errorf("strategy = %q, want %q", res.Strategy.Name, model.StrategyActiveForeground)
	}
	if res.Decision.DeliveryMethod != model.DeliveryInApp {
		t.Errorf("method = %q, want in_app", res.Decision.DeliveryMethod)
	}
	if res.Context.UserActivityScore != 86 {
		t.Errorf("activity score = %v, want 86", res.Context.UserActivityScore)
	}
	if res.Context.RecentInteractions != 1 {
		t.Errorf("recent interactions = %d, want 1", res.Context.RecentInteractions)
	}
}

func TestDecideInactiveDirectMessage(t *testing.T) {
	r, scorer := setupRouter(t, &stubGateway{})
	raiseScore(scorer, "u1", 10)

	res := r.Route(context.Background(), Request{
		UserID:   "u1",
		Type:     model.NotifTypeDirectMessage,
		AppState: model.AppStateBackground,
	})

	// Strategy is inactive_background, not away_message: the inactive-background
	// rule is evaluated before the direct-message rules. Both deliver by push.
	// Keep the rule order; away_message is covered by TestDecideAwayDirectMessage.
	if res.Strategy.Name != model.StrategyInactiveBackground {
		t.Errorf("strategy = %q, want %q", res.Strategy.Name, model.StrategyInactiveBackground)
	}
	if res.Decision.DeliveryMethod != model.DeliveryPush {
		t.Errorf("method = %q, want push", res.Decision.DeliveryMethod)
	}
}

func TestDecideAwayDirectMessage(t *testing.T) {
	r, scorer := setupRouter(t, &stubGateway{})
	raiseScore(scorer, "u1", 40)

	res := r.Route(context.Background(), Request{
		UserID:   "u1",
		Type:     model.NotifTypeDirectMessage,
		AppState: model.AppStateBackground,
	})

	if res.Strategy.Name != model.StrategyAwayMessage {
		t.Errorf("strategy = %q, want %q", res.Strategy.Name, model.StrategyAwayMessage)
	}
	if res.Decision.DeliveryMethod != model.DeliveryPush {
		t.Errorf("method = %q, want push", res.Decision.DeliveryMethod)
	}
}

func TestDecideReturnsDecision(t *testing.T) {
	r, _ := setupRouter(t, &stubGateway{})

	got := r.Decide(context.Background(), "u1", model.NotifTypeEmergencyRequest, model.AppStateForeground)
	if got.DeliveryMethod != model.DeliveryBoth {
		t.Errorf("method = %q, want both", got.DeliveryMethod)
	}
	if r.Ledger().Len() != 1 {
		t.Errorf("ledger len = %d, want 1", r.Ledger().Len())
	}
}

func TestDecideUsesStoredPreferences(t *testing.T) {
	prefs := model.DefaultPreferences("u1")
	prefs.EmergencyOnlyMode = true
	r, _ := setupRouter(t, &stubGateway{prefs: map[string]model.NotificationPreferences{"u1": prefs}})

	got := r.Decide(context.Background(), "u1", model.NotifTypeClubEvent, model.AppStateBackground)
	if got.DeliveryMethod != model.DeliverySkipped {
		t.Errorf("method = %q, want skipped", got.DeliveryMethod)
	}

	got = r.Decide(context.Background(), "u2", model.NotifTypeClubEvent, model.AppStateBackground)
	if got.DeliveryMethod == model.DeliverySkipped {
		t.Error("other users should not inherit emergency-only mode")
	}
}

func TestDecidePreferencesUnavailable(t *testing.T) {
	gw := &stubGateway{err: errors.New("connection refused")}
	r, scorer := setupRouter(t, gw)
	raiseScore(scorer, "u1", 50)

	res := r.Route(context.Background(), Request{
		UserID:   "u1",
		Type:     model.NotifTypeEventReminder,
		AppState: model.AppStateBackground,
	})

	if res.Strategy.Name != model.StrategyDefault {
		t.Errorf("strategy = %q, want %q", res.Strategy.Name, model.StrategyDefault)
	}
	if res.Decision.DeliveryMethod != model.DeliveryBoth {
		t.Errorf("method = %q, want both", res.Decision.DeliveryMethod)
	}
	if !res.Preferences.PushEnabled || !res.Preferences.InAppEnabled || res.Preferences.QuietHoursEnabled {
		t.Errorf("expected default preferences, got %+v", res.Preferences)
	}
	if gw.calls != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.calls)
	}
}

func TestRouteDefaultsMissingStates(t *testing.T) {
	r, _ := setupRouter(t, nil)

	res := r.Route(context.Background(), Request{UserID: "u1", Type: model.NotifTypeSystemUpdate})
	if res.Context.AppState != model.AppStateUnknown {
		t.Errorf("app state = %q, want unknown", res.Context.AppState)
	}
	if res.Context.DeviceState != model.DeviceStateInactive {
		t.Errorf("device state = %q, want inactive", res.Context.DeviceState)
	}
	if res.Context.NetworkState != model.NetworkConnected {
		t.Errorf("network = %q, want connected", res.Context.NetworkState)
	}
	if res.Context.Priority != model.PriorityLow {
		t.Errorf("priority = %q, want low", res.Context.Priority)
	}
}

func TestRouteRecordsLedgerEntry(t *testing.T) {
	r, _ := setupRouter(t, &stubGateway{})

	res := r.Route(context.Background(), Request{UserID: "u1", Type: model.NotifTypeJoinRequest, AppState: model.AppStateBackground})

	entries := r.Ledger().Recent(1)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.ID != res.EntryID {
		t.Errorf("entry id = %s, want %s", e.ID, res.EntryID)
	}
	if e.Strategy.Name != res.Strategy.Name {
		t.Errorf("entry strategy = %q, want %q", e.Strategy.Name, res.Strategy.Name)
	}
	if e.Outcome != model.OutcomeSuccess {
		t.Errorf("outcome = %q, want success", e.Outcome)
	}
}

func TestQuietHoursThroughRouter(t *testing.T) {
	prefs := model.DefaultPreferences("u1")
	prefs.QuietHoursEnabled = true
	prefs.QuietHoursStart = "22:00"
	prefs.QuietHoursEnd = "06:00"
	r, _ := setupRouter(t, &stubGateway{prefs: map[string]model.NotificationPreferences{"u1": prefs}})
	r.now = func() time.Time { return time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC) }

	res := r.Route(context.Background(), Request{UserID: "u1", Type: model.NotifTypeDirectMessage, AppState: model.AppStateBackground})
	if res.Strategy.Name != model.StrategyQuietHours {
		t.Errorf("strategy = %q, want %q", res.Strategy.Name, model.StrategyQuietHours)
	}
	if res.Decision.DeliveryMethod != model.DeliveryInApp {
		t.Errorf("method = %q, want in_app", res.Decision.DeliveryMethod)
	}
}

func TestConcurrentDecide(t *testing.T) {
	r, scorer := setupRouter(t, &stubGateway{})
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				scorer.RecordInteraction("shared", activity.KindTap)
				r.Decide(context.Background(), "shared", model.NotifTypeDirectMessage, model.AppStateForeground)
			}
		}()
	}
	wg.Wait()

	if got := r.Ledger().Len(); got != 200 {
		t.Errorf("ledger len = %d, want 200", got)
	}
	if m := r.Ledger().Metrics(0); m.TotalDecisions != 100 {
		t.Errorf("windowed total = %d, want 100", m.TotalDecisions)
	}
}
