package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/clubnotify/internal/model"
	"github.com/dukerupert/clubnotify/internal/routing"
	"github.com/dukerupert/clubnotify/internal/websocket"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []Payload
	errs map[string]error
}

func (f *fakeSender) Send(sub *model.PushSubscription, payload Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[sub.Endpoint]; err != nil {
		return err
	}
	f.sent = append(f.sent, payload)
	return nil
}

type fakeSubs struct {
	subs    map[string][]model.PushSubscription
	deleted []string
}

func (f *fakeSubs) ListByUser(userID string) ([]model.PushSubscription, error) {
	return f.subs[userID], nil
}

func (f *fakeSubs) DeleteByEndpoint(endpoint string) error {
	f.deleted = append(f.deleted, endpoint)
	return nil
}

type fakeInApp struct {
	online map[string]bool
	msgs   []websocket.Message
}

func (f *fakeInApp) SendToUser(userID string, msg websocket.Message) int {
	if !f.online[userID] {
		return 0
	}
	f.msgs = append(f.msgs, msg)
	return 1
}

type fixture struct {
	d      *Dispatcher
	ledger *routing.Ledger
	sender *fakeSender
	subs   *fakeSubs
	inApp  *fakeInApp
	now    time.Time
}

func setupDispatcher(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ledger: routing.NewLedger(100, nil),
		sender: &fakeSender{errs: map[string]error{}},
		subs: &fakeSubs{subs: map[string][]model.PushSubscription{
			"u1": {{ID: 1, UserID: "u1", Endpoint: "https://push.example.com/u1"}},
		}},
		inApp: &fakeInApp{online: map[string]bool{}},
		now:   time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	f.d = NewDispatcher(f.sender, f.subs, f.inApp, f.ledger, slog.Default())
	f.d.now = func() time.Time { return f.now }
	return f
}

// route records a decision in the ledger and returns the matching result.
func (f *fixture) route(userID string, t model.NotificationType, s model.DeliveryStrategy) routing.Result {
	dc := model.DeliveryContext{UserID: userID, NotificationType: t, Priority: model.PriorityFor(t)}
	e := f.ledger.Record(dc, s)
	return routing.Result{
		EntryID:     e.ID,
		Context:     dc,
		Preferences: model.DefaultPreferences(userID),
		Strategy:    s,
		Decision:    routing.ToDecision(s),
	}
}

func (f *fixture) outcome(t *testing.T, id string) model.Outcome {
	t.Helper()
	for _, e := range f.ledger.Recent(0) {
		if e.ID == id {
			return e.Outcome
		}
	}
	t.Fatalf("entry %s not in ledger", id)
	return ""
}

func TestDispatchImmediatePush(t *testing.T) {
	f := setupDispatcher(t)
	res := f.route("u1", model.NotifTypeDirectMessage, model.DeliveryStrategy{Name: model.StrategyAwayMessage, ShouldSendPush: true})

	if err := f.d.Dispatch(context.Background(), Notification{Title: "Ana", Body: "hi"}, res); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(f.sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(f.sender.sent))
	}
	p := f.sender.sent[0]
	if p.Title != "Ana" || p.Type != string(model.NotifTypeDirectMessage) || p.Priority != model.PriorityHigh {
		t.Errorf("payload = %+v", p)
	}
	if got := f.outcome(t, res.EntryID); got != model.OutcomeSuccess {
		t.Errorf("outcome = %q, want success", got)
	}
	if f.d.Pending() != 0 {
		t.Error("immediate delivery should not queue")
	}
}

func TestDispatchSkipped(t *testing.T) {
	f := setupDispatcher(t)
	res := f.route("u1", model.NotifTypeClubEvent, model.DeliveryStrategy{Name: model.StrategyDisabled})

	f.d.Dispatch(context.Background(), Notification{Title: "x"}, res)

	if len(f.sender.sent) != 0 || len(f.inApp.msgs) != 0 || f.d.Pending() != 0 {
		t.Error("skipped decision should deliver nothing")
	}
}

func TestDispatchCategoryDisabled(t *testing.T) {
	f := setupDispatcher(t)
	res := f.route("u1", model.NotifTypeClubEvent, model.DeliveryStrategy{Name: model.StrategyDefault, ShouldSendPush: true})
	res.Preferences.ClubEvents = false

	f.d.Dispatch(context.Background(), Notification{Title: "x"}, res)

	if len(f.sender.sent) != 0 {
		t.Error("disabled category should not be sent")
	}
	if got := f.outcome(t, res.EntryID); got != model.OutcomeIgnored {
		t.Errorf("outcome = %q, want ignored", got)
	}
}

func TestDispatchInAppOffline(t *testing.T) {
	f := setupDispatcher(t)
	res := f.route("u1", model.NotifTypeClubMessage, model.DeliveryStrategy{Name: model.StrategyActiveForeground, ShouldSendInApp: true})

	f.d.Dispatch(context.Background(), Notification{Title: "x"}, res)

	if got := f.outcome(t, res.EntryID); got != model.OutcomeIgnored {
		t.Errorf("outcome = %q, want ignored", got)
	}
}

func TestDispatchInAppOnline(t *testing.T) {
	f := setupDispatcher(t)
	f.inApp.online["u1"] = true
	res := f.route("u1", model.NotifTypeClubMessage, model.DeliveryStrategy{Name: model.StrategyActiveForeground, ShouldSendInApp: true})

	f.d.Dispatch(context.Background(), Notification{Title: "x", URL: "/clubs/1"}, res)

	if len(f.inApp.msgs) != 1 {
		t.Fatalf("in-app messages = %d, want 1", len(f.inApp.msgs))
	}
	m := f.inApp.msgs[0]
	if m.ID != res.EntryID || m.URL != "/clubs/1" || m.Type != websocket.MessageNotification {
		t.Errorf("message = %+v", m)
	}
	if got := f.outcome(t, res.EntryID); got != model.OutcomeSuccess {
		t.Errorf("outcome = %q, want success", got)
	}
}

func TestDispatchPushFailed(t *testing.T) {
	f := setupDispatcher(t)
	f.sender.errs["https://push.example.com/u1"] = errors.New("push service returned 500")
	res := f.route("u1", model.NotifTypeDirectMessage, model.DeliveryStrategy{Name: model.StrategyAwayMessage, ShouldSendPush: true})

	f.d.Dispatch(context.Background(), Notification{Title: "x"}, res)

	if got := f.outcome(t, res.EntryID); got != model.OutcomeFailed {
		t.Errorf("outcome = %q, want failed", got)
	}
}

func TestDispatchPushFailedButShownInApp(t *testing.T) {
	f := setupDispatcher(t)
	f.inApp.online["u1"] = true
	f.sender.errs["https://push.example.com/u1"] = errors.New("timeout")
	res := f.route("u1", model.NotifTypeEmergencyRequest, model.DeliveryStrategy{Name: model.StrategyUrgentForeground, ShouldSendPush: true, ShouldSendInApp: true})

	f.d.Dispatch(context.Background(), Notification{Title: "x"}, res)

	if got := f.outcome(t, res.EntryID); got != model.OutcomeSuccess {
		t.Errorf("outcome = %q, want success", got)
	}
}

func TestDispatchExpiredSubscription(t *testing.T) {
	f := setupDispatcher(t)
	f.sender.errs["https://push.example.com/u1"] = ErrExpired
	res := f.route("u1", model.NotifTypeDirectMessage, model.DeliveryStrategy{Name: model.StrategyAwayMessage, ShouldSendPush: true})

	f.d.Dispatch(context.Background(), Notification{Title: "x"}, res)

	if len(f.subs.deleted) != 1 || f.subs.deleted[0] != "https://push.example.com/u1" {
		t.Errorf("deleted = %v", f.subs.deleted)
	}
}

func TestDispatchNoSender(t *testing.T) {
	f := setupDispatcher(t)
	f.d.sender = nil
	res := f.route("u1", model.NotifTypeDirectMessage, model.DeliveryStrategy{Name: model.StrategyAwayMessage, ShouldSendPush: true})

	f.d.Dispatch(context.Background(), Notification{Title: "x"}, res)

	if got := f.outcome(t, res.EntryID); got != model.OutcomeFailed {
		t.Errorf("outcome = %q, want failed", got)
	}
}

func TestDispatchDelayed(t *testing.T) {
	f := setupDispatcher(t)
	res := f.route("u1", model.NotifTypeSocialInteraction, model.DeliveryStrategy{Name: model.StrategyDelayedLow, ShouldSendPush: true, DelayMinutes: 15})

	f.d.Dispatch(context.Background(), Notification{Title: "liked"}, res)
	if f.d.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", f.d.Pending())
	}

	f.now = f.now.Add(14 * time.Minute)
	f.d.Flush(context.Background())
	if len(f.sender.sent) != 0 {
		t.Fatal("delivered before due")
	}

	f.now = f.now.Add(time.Minute)
	f.d.Flush(context.Background())
	if len(f.sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(f.sender.sent))
	}
	if f.sender.sent[0].Title != "liked" {
		t.Errorf("title = %q, want liked", f.sender.sent[0].Title)
	}
	if f.d.Pending() != 0 {
		t.Errorf("pending = %d, want 0", f.d.Pending())
	}
}

func TestFlushCancelledKeepsQueue(t *testing.T) {
	f := setupDispatcher(t)
	res := f.route("u1", model.NotifTypeSocialInteraction, model.DeliveryStrategy{Name: model.StrategyDelayedLow, ShouldSendPush: true, DelayMinutes: 15})
	f.d.Dispatch(context.Background(), Notification{Title: "liked"}, res)
	f.now = f.now.Add(20 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.d.Flush(ctx)

	if f.d.Pending() != 1 {
		t.Fatalf("pending after cancelled flush = %d, want 1", f.d.Pending())
	}
	if len(f.sender.sent) != 0 {
		t.Fatalf("sent = %d, want 0", len(f.sender.sent))
	}

	f.d.Flush(context.Background())
	if len(f.sender.sent) != 1 {
		t.Fatalf("sent after retry = %d, want 1", len(f.sender.sent))
	}
	if f.d.Pending() != 0 {
		t.Errorf("pending = %d, want 0", f.d.Pending())
	}
	if got := f.outcome(t, res.EntryID); got != model.OutcomeSuccess {
		t.Errorf("outcome = %q, want success", got)
	}
}

// cancellingSender cancels the flush context after its first send.
type cancellingSender struct {
	fakeSender
	cancel context.CancelFunc
}

func (c *cancellingSender) Send(sub *model.PushSubscription, payload Payload) error {
	err := c.fakeSender.Send(sub, payload)
	c.cancel()
	return err
}

func TestFlushInterruptedRequeuesRest(t *testing.T) {
	f := setupDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &cancellingSender{fakeSender: fakeSender{errs: map[string]error{}}, cancel: cancel}
	f.d.sender = sender

	s := model.DeliveryStrategy{Name: model.StrategyDelayedLow, ShouldSendPush: true, DelayMinutes: 15}
	first := f.route("u1", model.NotifTypeSocialInteraction, s)
	second := f.route("u1", model.NotifTypeSystemUpdate, s)
	f.d.Dispatch(context.Background(), Notification{Title: "first"}, first)
	f.d.Dispatch(context.Background(), Notification{Title: "second"}, second)
	f.now = f.now.Add(20 * time.Minute)

	f.d.Flush(ctx)
	if len(sender.sent) != 1 || sender.sent[0].Title != "first" {
		t.Fatalf("sent = %+v, want only first", sender.sent)
	}
	if f.d.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", f.d.Pending())
	}

	sender.cancel = func() {}
	f.d.Flush(context.Background())
	if len(sender.sent) != 2 || sender.sent[1].Title != "second" {
		t.Errorf("sent = %+v, want second delivered on retry", sender.sent)
	}
	if got := f.outcome(t, second.EntryID); got != model.OutcomeSuccess {
		t.Errorf("outcome = %q, want success", got)
	}
}

func TestFlushMergesBatchPerUser(t *testing.T) {
	f := setupDispatcher(t)
	f.subs.subs["u2"] = []model.PushSubscription{{ID: 2, UserID: "u2", Endpoint: "https://push.example.com/u2"}}
	batch := model.DeliveryStrategy{Name: model.StrategyClubMessageBatch, ShouldSendPush: true, DelayMinutes: 3, BatchWithOthers: true}

	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		res := f.route("u1", model.NotifTypeClubMessage, batch)
		ids = append(ids, res.EntryID)
		f.d.Dispatch(context.Background(), Notification{Title: title}, res)
	}
	f.d.Dispatch(context.Background(), Notification{Title: "solo"}, f.route("u2", model.NotifTypeClubMessage, batch))

	f.now = f.now.Add(3 * time.Minute)
	f.d.Flush(context.Background())

	if len(f.sender.sent) != 2 {
		t.Fatalf("sent = %d, want 2 (one summary, one single)", len(f.sender.sent))
	}
	var summary, single Payload
	for _, p := range f.sender.sent {
		if p.Count > 0 {
			summary = p
		} else {
			single = p
		}
	}
	if summary.Title != "3 new notifications" || summary.Count != 3 || summary.Body != "a, b, c" {
		t.Errorf("summary = %+v", summary)
	}
	if single.Title != "solo" {
		t.Errorf("single = %+v", single)
	}
	for _, id := range ids {
		if got := f.outcome(t, id); got != model.OutcomeSuccess {
			t.Errorf("outcome %s = %q, want success", id, got)
		}
	}
}

func TestFlushBatchFailureMarksEveryEntry(t *testing.T) {
	f := setupDispatcher(t)
	f.subs.subs["u1"] = nil
	batch := model.DeliveryStrategy{Name: model.StrategyBatchMedium, ShouldSendPush: true, DelayMinutes: 5, BatchWithOthers: true}

	r1 := f.route("u1", model.NotifTypeClubEvent, batch)
	r2 := f.route("u1", model.NotifTypeJoinRequest, batch)
	f.d.Dispatch(context.Background(), Notification{Title: "a"}, r1)
	f.d.Dispatch(context.Background(), Notification{Title: "b"}, r2)

	f.now = f.now.Add(5 * time.Minute)
	f.d.Flush(context.Background())

	for _, id := range []string{r1.EntryID, r2.EntryID} {
		if got := f.outcome(t, id); got != model.OutcomeFailed {
			t.Errorf("outcome %s = %q, want failed", id, got)
		}
	}
}

func TestMergeKeepsHighestPriority(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	got, ids := merge([]pending{
		{entryID: "1", userID: "u1", ntype: model.NotifTypeClubEvent, priority: model.PriorityMedium, inApp: true, due: base.Add(time.Minute), content: Notification{Title: "second"}},
		{entryID: "2", userID: "u1", ntype: model.NotifTypeClubMessage, priority: model.PriorityHigh, push: true, due: base, content: Notification{Title: "first"}},
	})

	if len(ids) != 2 {
		t.Fatalf("ids = %v", ids)
	}
	if got.priority != model.PriorityHigh {
		t.Errorf("priority = %q, want high", got.priority)
	}
	if !got.push || !got.inApp {
		t.Errorf("channels push=%v in_app=%v, want both", got.push, got.inApp)
	}
	if got.ntype != "" {
		t.Errorf("mixed batch type = %q, want empty", got.ntype)
	}
	if got.content.Body != "first, second" {
		t.Errorf("body = %q, want oldest first", got.content.Body)
	}
}

func TestSchedulerStopFlushesDue(t *testing.T) {
	f := setupDispatcher(t)
	res := f.route("u1", model.NotifTypeSocialInteraction, model.DeliveryStrategy{Name: model.StrategyDelayedLow, ShouldSendPush: true, DelayMinutes: 15})
	f.d.Dispatch(context.Background(), Notification{Title: "x"}, res)

	s := NewScheduler(f.d, time.Hour)
	s.Start(context.Background())
	f.now = f.now.Add(15 * time.Minute)
	s.Stop()

	if len(f.sender.sent) != 1 {
		t.Errorf("sent = %d, want 1", len(f.sender.sent))
	}
}

func TestUrgencyFor(t *testing.T) {
	tests := []struct {
		p    model.Priority
		want string
	}{
		{model.PriorityUrgent, "high"},
		{model.PriorityHigh, "normal"},
		{model.PriorityMedium, "normal"},
		{model.PriorityLow, "low"},
	}
	for _, tt := range tests {
		if got := string(urgencyFor(tt.p)); got != tt.want {
			t.Errorf("urgencyFor(%q) = %q, want %q", tt.p, got, tt.want)
		}
	}
}
