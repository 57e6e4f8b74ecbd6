// Package quiethours decides whether an instant falls inside a user's
// configured quiet window.
package quiethours

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/dukerupert/clubnotify/internal/model"
)

var (
	// ErrInvalidTimeFormat is returned for quiet-hours bounds that are not HH:MM.
	ErrInvalidTimeFormat = errors.New("invalid time format")
	// ErrInvalidTimezone is returned for an unknown IANA zone name.
	ErrInvalidTimezone = errors.New("invalid timezone")
)

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || !isClockPart(hh) || len(mm) != 2 || !isClockPart(mm) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	if h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return h*60 + m, nil
}

func isClockPart(s string) bool {
	if len(s) == 0 || len(s) > 2 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Window is a parsed quiet-hours range in minutes since midnight.
// Both bounds are inclusive.
type Window struct {
	Start int
	End   int
}

// Contains reports whether minute falls inside w, handling windows that
// cross midnight.
func (w Window) Contains(minute int) bool {
	if w.Start <= w.End {
		return minute >= w.Start && minute <= w.End
	}
	return minute >= w.Start || minute <= w.End
}

// ParseWindow parses the start and end bounds.
func ParseWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("quiet hours start: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("quiet hours end: %w", err)
	}
	return Window{Start: s, End: e}, nil
}

func location(name string) (*time.Location, error) {
	if name == "" {
		return nil, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

// IsQuietNow reports whether now falls inside prefs' quiet window. It returns
// false without parsing anything when quiet hours are disabled.
func IsQuietNow(prefs model.NotificationPreferences, now time.Time) (bool, error) {
	if !prefs.QuietHoursEnabled {
		return false, nil
	}

	w, err := ParseWindow(prefs.QuietHoursStart, prefs.QuietHoursEnd)
	if err != nil {
		return false, err
	}
	loc, err := location(prefs.Timezone)
	if err != nil {
		return false, err
	}
	if loc != nil {
		now = now.In(loc)
	}

	return w.Contains(now.Hour()*60 + now.Minute()), nil
}

// Validate checks the quiet-hours fields of prefs. Bounds are checked even
// when quiet hours are disabled so a later toggle cannot enable a broken window.
func Validate(prefs model.NotificationPreferences) error {
	if _, err := ParseWindow(prefs.QuietHoursStart, prefs.QuietHoursEnd); err != nil {
		return err
	}
	if _, err := location(prefs.Timezone); err != nil {
		return err
	}
	return nil
}
