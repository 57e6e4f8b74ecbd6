package routing

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/clubnotify/internal/model"
)

const (
	// DefaultLedgerCapacity is how many decisions the ledger keeps.
	DefaultLedgerCapacity = 1000
	// DefaultMetricsWindow is how many recent decisions Metrics looks at.
	DefaultMetricsWindow = 100
)

// EngagementSource supplies the engagement figures reported in metrics.
type EngagementSource interface {
	AverageScore() float64
	ResetAll()
}

// Ledger is a bounded, in-memory history of routing decisions. Once full,
// the oldest entry is evicted for each new one.
type Ledger struct {
	mu     sync.Mutex
	buf    []model.RoutingHistoryEntry
	head   int
	size   int
	scores EngagementSource
	now    func() time.Time
}

// NewLedger creates a Ledger holding up to capacity entries.
func NewLedger(capacity int, scores EngagementSource) *Ledger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &Ledger{
		buf:    make([]model.RoutingHistoryEntry, capacity),
		scores: scores,
		now:    time.Now,
	}
}

// Capacity returns the maximum number of retained entries.
func (l *Ledger) Capacity() int {
	return len(l.buf)
}

// Len returns the number of retained entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Record appends a decision with outcome success and returns the entry.
func (l *Ledger) Record(dc model.DeliveryContext, s model.DeliveryStrategy) model.RoutingHistoryEntry {
	entry := cloneEntry(model.RoutingHistoryEntry{
		ID:        uuid.NewString(),
		Context:   dc,
		Strategy:  s,
		DecidedAt: l.now(),
		Outcome:   model.OutcomeSuccess,
	})

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size < len(l.buf) {
		l.buf[(l.head+l.size)%len(l.buf)] = entry
		l.size++
	} else {
		l.buf[l.head] = entry
		l.head = (l.head + 1) % len(l.buf)
	}
	return cloneEntry(entry)
}

// cloneEntry deep-copies the pointer fields of e so retained entries never
// share memory with callers.
func cloneEntry(e model.RoutingHistoryEntry) model.RoutingHistoryEntry {
	e.Context.BatteryLevel = clonePtr(e.Context.BatteryLevel)
	e.Context.IsCharging = clonePtr(e.Context.IsCharging)
	e.Strategy.PriorityOverride = clonePtr(e.Strategy.PriorityOverride)
	return e
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// at returns the i-th retained entry, oldest first. Caller holds mu.
func (l *Ledger) at(i int) *model.RoutingHistoryEntry {
	return &l.buf[(l.head+i)%len(l.buf)]
}

// Recent returns up to n of the newest entries, oldest first. n <= 0 returns all.
func (l *Ledger) Recent(n int) []model.RoutingHistoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]model.RoutingHistoryEntry, 0, n)
	for i := l.size - n; i < l.size; i++ {
		out = append(out, cloneEntry(*l.at(i)))
	}
	return out
}

// SetOutcome updates the outcome of a retained entry.
func (l *Ledger) SetOutcome(id string, outcome model.Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := l.size - 1; i >= 0; i-- {
		if e := l.at(i); e.ID == id {
			e.Outcome = outcome
			return nil
		}
	}
	return ErrEntryNotFound
}

// Metrics aggregates the newest window entries. window <= 0 uses
// DefaultMetricsWindow. The engagement average covers every tracked user.
func (l *Ledger) Metrics(window int) model.RouterMetrics {
	if window <= 0 {
		window = DefaultMetricsWindow
	}

	var m model.RouterMetrics
	l.mu.Lock()
	m.LedgerSize = l.size
	n := min(window, l.size)
	successes := 0
	for i := l.size - n; i < l.size; i++ {
		e := l.at(i)
		switch ToDecision(e.Strategy).DeliveryMethod {
		case model.DeliveryPush:
			m.PushSentCount++
		case model.DeliveryInApp:
			m.InAppSentCount++
		case model.DeliveryBoth:
			m.BothSentCount++
		default:
			m.SkippedCount++
		}
		if e.Outcome == model.OutcomeSuccess {
			successes++
		}
	}
	l.mu.Unlock()

	m.TotalDecisions = n
	if n > 0 {
		m.SuccessRate = float64(successes) / float64(n)
	}
	if l.scores != nil {
		m.AverageEngagementScore = l.scores.AverageScore()
	}
	return m
}

// Clear empties the ledger and resets all engagement scores.
func (l *Ledger) Clear() {
	l.mu.Lock()
	for i := range l.buf {
		l.buf[i] = model.RoutingHistoryEntry{}
	}
	l.head = 0
	l.size = 0
	l.mu.Unlock()

	if l.scores != nil {
		l.scores.ResetAll()
	}
}
