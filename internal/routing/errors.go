package routing

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/clubnotify/internal/model"
)

var (
	// ErrPreferencesUnavailable wraps any failure to load a user's preferences.
	ErrPreferencesUnavailable = errors.New("preferences unavailable")
	// ErrEntryNotFound is returned when a ledger entry is unknown or evicted.
	ErrEntryNotFound = errors.New("routing entry not found")
)

// StrategyEvaluationError is raised when a rule fails while being evaluated.
type StrategyEvaluationError struct {
	Rule string
	Err  error
}

func (e *StrategyEvaluationError) Error() string {
	return fmt.Sprintf("evaluate rule %s: %v", e.Rule, e.Err)
}

func (e *StrategyEvaluationError) Unwrap() error {
	return e.Err
}

// ErrorSink receives evaluation errors the selector recovered from.
type ErrorSink interface {
	Report(err error, dc model.DeliveryContext)
}

// SinkFunc adapts a function to ErrorSink.
type SinkFunc func(err error, dc model.DeliveryContext)

func (f SinkFunc) Report(err error, dc model.DeliveryContext) {
	f(err, dc)
}

// LogSink reports errors to a slog logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Report(err error, dc model.DeliveryContext) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("strategy evaluation failed",
		"error", err,
		"user_id", dc.UserID,
		"type", dc.NotificationType,
	)
}
