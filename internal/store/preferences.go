package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/clubnotify/internal/model"
)

const preferencesCols = `user_id, push_enabled, in_app_enabled, emergency_only_mode, batch_notifications,
	direct_messages, club_messages, club_announcements, club_events, join_requests,
	social_interactions, system_updates, quiet_hours_enabled, quiet_hours_start, quiet_hours_end,
	timezone, updated_at`

type PreferencesStore struct {
	db *sql.DB
}

func NewPreferencesStore(db *sql.DB) *PreferencesStore {
	return &PreferencesStore{db: db}
}

func scanPreferences(scanner interface{ Scan(...any) error }) (model.NotificationPreferences, error) {
	var p model.NotificationPreferences
	err := scanner.Scan(
		&p.UserID, &p.PushEnabled, &p.InAppEnabled, &p.EmergencyOnlyMode, &p.BatchNotifications,
		&p.DirectMessages, &p.ClubMessages, &p.ClubAnnouncements, &p.ClubEvents, &p.JoinRequests,
		&p.SocialInteractions, &p.SystemUpdates, &p.QuietHoursEnabled, &p.QuietHoursStart, &p.QuietHoursEnd,
		&p.Timezone, &p.UpdatedAt,
	)
	return p, err
}

// GetPreferences returns the stored preferences for a user, or the defaults
// if the user has never saved any.
func (s *PreferencesStore) GetPreferences(ctx context.Context, userID string) (model.NotificationPreferences, error) {
	p, err := scanPreferences(s.db.QueryRowContext(ctx,
		`SELECT `+preferencesCols+` FROM notification_preferences WHERE user_id = ?`, userID,
	))
	if err == sql.ErrNoRows {
		return model.DefaultPreferences(userID), nil
	}
	if err != nil {
		return model.NotificationPreferences{}, fmt.Errorf("get preferences: %w", err)
	}
	return p, nil
}

// SavePreferences upserts a user's preferences and returns the stored row.
func (s *PreferencesStore) SavePreferences(ctx context.Context, p model.NotificationPreferences) (model.NotificationPreferences, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_preferences (`+preferencesCols+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			push_enabled = excluded.push_enabled,
			in_app_enabled = excluded.in_app_enabled,
			emergency_only_mode = excluded.emergency_only_mode,
			batch_notifications = excluded.batch_notifications,
			direct_messages = excluded.direct_messages,
			club_messages = excluded.club_messages,
			club_announcements = excluded.club_announcements,
			club_events = excluded.club_events,
			join_requests = excluded.join_requests,
			social_interactions = excluded.social_interactions,
			system_updates = excluded.system_updates,
			quiet_hours_enabled = excluded.quiet_hours_enabled,
			quiet_hours_start = excluded.quiet_hours_start,
			quiet_hours_end = excluded.quiet_hours_end,
			timezone = excluded.timezone,
			updated_at = excluded.updated_at`,
		p.UserID, p.PushEnabled, p.InAppEnabled, p.EmergencyOnlyMode, p.BatchNotifications,
		p.DirectMessages, p.ClubMessages, p.ClubAnnouncements, p.ClubEvents, p.JoinRequests,
		p.SocialInteractions, p.SystemUpdates, p.QuietHoursEnabled, p.QuietHoursStart, p.QuietHoursEnd,
		p.Timezone, time.Now().UTC(),
	)
	if err != nil {
		return model.NotificationPreferences{}, fmt.Errorf("save preferences: %w", err)
	}
	return s.GetPreferences(ctx, p.UserID)
}

// DeletePreferences removes a user's stored preferences, reverting them to defaults.
func (s *PreferencesStore) DeletePreferences(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notification_preferences WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete preferences: %w", err)
	}
	return nil
}
