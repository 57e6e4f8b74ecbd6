package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/clubnotify/internal/model"
	"github.com/dukerupert/clubnotify/internal/routing"
	"github.com/dukerupert/clubnotify/internal/websocket"
)

// Sender delivers one payload to one device subscription.
type Sender interface {
	Send(sub *model.PushSubscription, payload Payload) error
}

// Subscriptions lists and prunes a user's push subscriptions.
type Subscriptions interface {
	ListByUser(userID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// InApp delivers messages to a user's connected app surfaces.
type InApp interface {
	SendToUser(userID string, msg websocket.Message) int
}

// OutcomeRecorder records how a routed notification ended up.
type OutcomeRecorder interface {
	SetOutcome(id string, outcome model.Outcome) error
}

// Notification is the content to deliver once routing has decided how.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// pending is a routed notification waiting for its due time.
type pending struct {
	entryID  string
	userID   string
	ntype    model.NotificationType
	priority model.Priority
	content  Notification
	push     bool
	inApp    bool
	batch    bool
	due      time.Time
}

// Dispatcher carries out routing decisions: it delivers immediately, or
// holds delayed and batchable notifications until Flush finds them due.
type Dispatcher struct {
	mu       sync.Mutex
	queue    []pending
	sender   Sender
	subs     Subscriptions
	inApp    InApp
	outcomes OutcomeRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher. A nil sender disables the push leg:
// push deliveries are logged and count as failed.
func NewDispatcher(sender Sender, subs Subscriptions, inApp InApp, outcomes OutcomeRecorder, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender:   sender,
		subs:     subs,
		inApp:    inApp,
		outcomes: outcomes,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch acts on a routing result. Skipped decisions and disabled
// categories deliver nothing; delayed or batchable ones are queued.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification, res routing.Result) error {
	if res.Decision.DeliveryMethod == model.DeliverySkipped {
		return nil
	}

	userID := res.Context.UserID
	ntype := res.Context.NotificationType
	if !res.Preferences.CategoryEnabled(ntype) {
		d.logger.Info("category disabled, dropping notification", "user_id", userID, "type", ntype)
		d.setOutcome(res.EntryID, model.OutcomeIgnored)
		return nil
	}

	priority := res.Context.Priority
	if res.Strategy.PriorityOverride != nil {
		priority = *res.Strategy.PriorityOverride
	}

	p := pending{
		entryID:  res.EntryID,
		userID:   userID,
		ntype:    ntype,
		priority: priority,
		content:  n,
		push:     res.Decision.ShouldSendPush,
		inApp:    res.Decision.ShouldSendInApp,
		batch:    res.Strategy.BatchWithOthers,
		due:      d.now().Add(time.Duration(res.Strategy.DelayMinutes) * time.Minute),
	}

	if res.Strategy.DelayMinutes == 0 && !p.batch {
		return d.deliver(ctx, p, []string{p.entryID})
	}

	d.mu.Lock()
	d.queue = append(d.queue, p)
	d.mu.Unlock()
	d.logger.Debug("notification queued", "user_id", userID, "type", ntype, "due", p.due, "batch", p.batch)
	return nil
}

// Pending returns the number of queued notifications.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Flush delivers every queued notification that is due. Due batchable
// notifications for the same user go out as one summary. Items not attempted
// before ctx is done stay queued for the next Flush.
func (d *Dispatcher) Flush(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := d.now()

	d.mu.Lock()
	var due []pending
	keep := d.queue[:0]
	for _, p := range d.queue {
		if p.due.After(now) {
			keep = append(keep, p)
		} else {
			due = append(due, p)
		}
	}
	d.queue = keep
	d.mu.Unlock()

	if len(due) == 0 {
		return
	}

	// Each unit is delivered as one message.
	var units [][]pending
	batchAt := make(map[string]int)
	for _, p := range due {
		if !p.batch {
			units = append(units, []pending{p})
			continue
		}
		i, ok := batchAt[p.userID]
		if !ok {
			i = len(units)
			batchAt[p.userID] = i
			units = append(units, nil)
		}
		units[i] = append(units[i], p)
	}

	for i, group := range units {
		if ctx.Err() != nil {
			d.requeue(units[i:])
			return
		}
		p, ids := merge(group)
		err := d.deliver(ctx, p, ids)
		if err != nil && ctx.Err() != nil {
			d.requeue(units[i:])
			return
		}
		if err != nil {
			d.logger.Error("deliver queued notification", "user_id", p.userID, "size", len(group), "error", err)
		}
	}
}

// requeue puts unattempted units back on the queue.
func (d *Dispatcher) requeue(units [][]pending) {
	n := 0
	d.mu.Lock()
	for _, group := range units {
		d.queue = append(d.queue, group...)
		n += len(group)
	}
	d.mu.Unlock()
	d.logger.Debug("flush interrupted, notifications requeued", "count", n)
}

var priorityRank = map[model.Priority]int{
	model.PriorityLow:    0,
	model.PriorityMedium: 1,
	model.PriorityHigh:   2,
	model.PriorityUrgent: 3,
}

// merge folds a user's due batch into one delivery. A single item is
// delivered as-is.
func merge(group []pending) (pending, []string) {
	ids := make([]string, len(group))
	for i, p := range group {
		ids[i] = p.entryID
	}
	if len(group) == 1 {
		return group[0], ids
	}

	sort.SliceStable(group, func(i, j int) bool { return group[i].due.Before(group[j].due) })

	out := pending{
		userID:   group[0].userID,
		ntype:    group[0].ntype,
		priority: group[0].priority,
		batch:    true,
	}
	titles := make([]string, 0, len(group))
	for _, p := range group {
		out.push = out.push || p.push
		out.inApp = out.inApp || p.inApp
		if priorityRank[p.priority] > priorityRank[out.priority] {
			out.priority = p.priority
		}
		if p.ntype != out.ntype {
			out.ntype = ""
		}
		if p.content.Title != "" {
			titles = append(titles, p.content.Title)
		}
	}
	out.content = Notification{
		Title: fmt.Sprintf("%d new notifications", len(group)),
		Body:  strings.Join(titles, ", "),
	}
	return out, ids
}

// deliver sends p on its decided channels and records a non-success outcome
// on every entry in ids when nothing reached the user.
func (d *Dispatcher) deliver(ctx context.Context, p pending, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	count := 0
	if len(ids) > 1 {
		count = len(ids)
	}

	pushed := false
	if p.push {
		pushed = d.sendPush(p, count)
	}

	shown := false
	if p.inApp && d.inApp != nil {
		msgID := p.entryID
		if msgID == "" {
			msgID = uuid.NewString()
		}
		shown = d.inApp.SendToUser(p.userID, websocket.Message{
			Type:             websocket.MessageNotification,
			ID:               msgID,
			NotificationType: p.ntype,
			Priority:         p.priority,
			Title:            p.content.Title,
			Body:             p.content.Body,
			URL:              p.content.URL,
			Count:            count,
		}) > 0
	}

	var outcome model.Outcome
	switch {
	case pushed || shown:
		return nil
	case p.push:
		outcome = model.OutcomeFailed
	default:
		outcome = model.OutcomeIgnored
	}
	for _, id := range ids {
		d.setOutcome(id, outcome)
	}
	d.logger.Info("notification not delivered", "user_id", p.userID, "type", p.ntype, "outcome", outcome)
	return nil
}

// sendPush sends to every subscription of the user and reports whether at
// least one send succeeded. Expired subscriptions are removed.
func (d *Dispatcher) sendPush(p pending, count int) bool {
	if d.sender == nil || d.subs == nil {
		d.logger.Warn("push transport not configured", "user_id", p.userID)
		return false
	}

	subs, err := d.subs.ListByUser(p.userID)
	if err != nil {
		d.logger.Error("list push subscriptions", "user_id", p.userID, "error", err)
		return false
	}

	payload := Payload{
		Title:    p.content.Title,
		Body:     p.content.Body,
		URL:      p.content.URL,
		Tag:      string(p.ntype),
		Type:     string(p.ntype),
		Priority: p.priority,
		Count:    count,
	}

	ok := false
	for i := range subs {
		sub := &subs[i]
		err := d.sender.Send(sub, payload)
		switch {
		case err == nil:
			ok = true
		case errors.Is(err, ErrExpired):
			if err := d.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
				d.logger.Error("delete expired subscription", "endpoint", sub.Endpoint, "error", err)
			}
		default:
			d.logger.Warn("send push", "user_id", p.userID, "device", sub.DeviceName, "error", err)
		}
	}
	return ok
}

func (d *Dispatcher) setOutcome(id string, outcome model.Outcome) {
	if id == "" || d.outcomes == nil {
		return
	}
	if err := d.outcomes.SetOutcome(id, outcome); err != nil && !errors.Is(err, routing.ErrEntryNotFound) {
		d.logger.Error("set outcome", "entry_id", id, "error", err)
	}
}
