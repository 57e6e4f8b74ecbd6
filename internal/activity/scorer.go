// Package activity tracks a decaying per-user engagement score.
package activity

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	// MaxScore caps a user's engagement score.
	MaxScore = 100.0
	// DecayPerMinute is subtracted for every full minute without interaction.
	DecayPerMinute = 1.0
	// RecentWindow is how far back an interaction still counts as recent.
	RecentWindow = 10 * time.Minute
)

// Kind is a type of user interaction.
type Kind string

const (
	KindTap      Kind = "tap"
	KindScroll   Kind = "scroll"
	KindType     Kind = "type"
	KindNavigate Kind = "navigate"
)

var weights = map[Kind]float64{
	KindTap:      1,
	KindScroll:   0.5,
	KindType:     2,
	KindNavigate: 1.5,
}

// ParseKind validates s as an interaction kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := weights[k]; !ok {
		return "", fmt.Errorf("unknown interaction kind %q", s)
	}
	return k, nil
}

// Weight returns the score increment for k, or 0 for an unknown kind.
func Weight(k Kind) float64 {
	return weights[k]
}

type record struct {
	score           float64
	lastInteraction time.Time
}

// Scorer holds engagement records for every user seen since start or reset.
type Scorer struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time
}

// NewScorer creates an empty Scorer using the wall clock.
func NewScorer() *Scorer {
	return NewScorerWithClock(time.Now)
}

// NewScorerWithClock creates an empty Scorer reading time from now.
func NewScorerWithClock(now func() time.Time) *Scorer {
	return &Scorer{
		records: make(map[string]*record),
		now:     now,
	}
}

// decayed is the score of r as seen at t. It never mutates r.
func decayed(r *record, t time.Time) float64 {
	minutes := math.Floor(t.Sub(r.lastInteraction).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	return math.Max(0, r.score-minutes*DecayPerMinute)
}

// RecordInteraction adds the weight of kind to userID's score and moves the
// decay anchor to now. Unknown kinds are ignored.
func (s *Scorer) RecordInteraction(userID string, kind Kind) {
	w, ok := weights[kind]
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	r, ok := s.records[userID]
	if !ok {
		s.records[userID] = &record{score: math.Min(w, MaxScore), lastInteraction: now}
		return
	}
	// Fold the decay accrued so far into the stored score before re-anchoring.
	r.score = math.Min(decayed(r, now)+w, MaxScore)
	r.lastInteraction = now
}

// GetScore returns userID's score with decay applied, or 0 for an unknown user.
func (s *Scorer) GetScore(userID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[userID]
	if !ok {
		return 0
	}
	return decayed(r, s.now())
}

// LastInteraction returns when userID last interacted.
func (s *Scorer) LastInteraction(userID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[userID]
	if !ok {
		return time.Time{}, false
	}
	return r.lastInteraction, true
}

// RecentInteractions is 1 if userID interacted within RecentWindow, else 0.
func (s *Scorer) RecentInteractions(userID string) int {
	last, ok := s.LastInteraction(userID)
	if !ok {
		return 0
	}
	if s.now().Sub(last) < RecentWindow {
		return 1
	}
	return 0
}

// Reset forgets userID entirely.
func (s *Scorer) Reset(userID string) {
	s.mu.Lock()
	delete(s.records, userID)
	s.mu.Unlock()
}

// ResetAll forgets every user.
func (s *Scorer) ResetAll() {
	s.mu.Lock()
	s.records = make(map[string]*record)
	s.mu.Unlock()
}

// AverageScore is the mean decayed score over all tracked users, 0 when none.
func (s *Scorer) AverageScore() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) == 0 {
		return 0
	}
	now := s.now()
	var total float64
	for _, r := range s.records {
		total += decayed(r, now)
	}
	return total / float64(len(s.records))
}

// Tracked returns the number of users with a record.
func (s *Scorer) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
