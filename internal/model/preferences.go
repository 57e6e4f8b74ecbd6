package model

import "time"

// NotificationPreferences are a user's delivery settings.
type NotificationPreferences struct {
	UserID             string `json:"user_id"`
	PushEnabled        bool   `json:"push_enabled"`
	InAppEnabled       bool   `json:"in_app_enabled"`
	EmergencyOnlyMode  bool   `json:"emergency_only_mode"`
	BatchNotifications bool   `json:"batch_notifications"`

	DirectMessages     bool `json:"direct_messages"`
	ClubMessages       bool `json:"club_messages"`
	ClubAnnouncements  bool `json:"club_announcements"`
	ClubEvents         bool `json:"club_events"`
	JoinRequests       bool `json:"join_requests"`
	SocialInteractions bool `json:"social_interactions"`
	SystemUpdates      bool `json:"system_updates"`

	QuietHoursEnabled bool   `json:"quiet_hours_enabled"`
	QuietHoursStart   string `json:"quiet_hours_start"`
	QuietHoursEnd     string `json:"quiet_hours_end"`
	// Timezone is an IANA zone name for the quiet-hours window. Empty means
	// the zone of the instant being evaluated.
	Timezone string `json:"timezone,omitempty"`

	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// DefaultPreferences is what a user gets before saving anything, and what the
// router falls back to when the preferences store is unreachable.
func DefaultPreferences(userID string) NotificationPreferences {
	return NotificationPreferences{
		UserID:             userID,
		PushEnabled:        true,
		InAppEnabled:       true,
		DirectMessages:     true,
		ClubMessages:       true,
		ClubAnnouncements:  true,
		ClubEvents:         true,
		JoinRequests:       true,
		SocialInteractions: true,
		SystemUpdates:      true,
		QuietHoursStart:    "22:00",
		QuietHoursEnd:      "07:00",
	}
}

// CategoryEnabled reports whether the per-category toggle for t is on.
// Emergency requests have no toggle.
func (p NotificationPreferences) CategoryEnabled(t NotificationType) bool {
	switch t {
	case NotifTypeDirectMessage:
		return p.DirectMessages
	case NotifTypeClubMessage:
		return p.ClubMessages
	case NotifTypeClubAnnouncement, NotifTypeClubAnnouncementUrgent:
		return p.ClubAnnouncements
	case NotifTypeClubEvent, NotifTypeEventReminder:
		return p.ClubEvents
	case NotifTypeJoinRequest, NotifTypeJoinRequestApproved:
		return p.JoinRequests
	case NotifTypeSocialInteraction:
		return p.SocialInteractions
	case NotifTypeSystemUpdate:
		return p.SystemUpdates
	default:
		return true
	}
}
