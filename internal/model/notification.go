package model

import (
	"fmt"
	"strings"
	"time"
)

// NotificationType is the category of a notification event.
type NotificationType string

const (
	NotifTypeEmergencyRequest       NotificationType = "emergency_request"
	NotifTypeDirectMessage          NotificationType = "direct_message"
	NotifTypeClubMessage            NotificationType = "club_message"
	NotifTypeClubAnnouncement       NotificationType = "club_announcement"
	NotifTypeClubAnnouncementUrgent NotificationType = "club_announcement_urgent"
	NotifTypeClubEvent              NotificationType = "club_event"
	NotifTypeEventReminder          NotificationType = "event_reminder"
	NotifTypeJoinRequest            NotificationType = "join_request"
	NotifTypeJoinRequestApproved    NotificationType = "join_request_approved"
	NotifTypeSocialInteraction      NotificationType = "social_interaction"
	NotifTypeSystemUpdate           NotificationType = "system_update"
)

const clubFamilyPrefix = "club_"

// NotificationTypes lists every known notification type.
var NotificationTypes = []NotificationType{
	NotifTypeEmergencyRequest,
	NotifTypeDirectMessage,
	NotifTypeClubMessage,
	NotifTypeClubAnnouncement,
	NotifTypeClubAnnouncementUrgent,
	NotifTypeClubEvent,
	NotifTypeEventReminder,
	NotifTypeJoinRequest,
	NotifTypeJoinRequestApproved,
	NotifTypeSocialInteraction,
	NotifTypeSystemUpdate,
}

// ParseNotificationType validates s against the known notification types.
func ParseNotificationType(s string) (NotificationType, error) {
	for _, t := range NotificationTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown notification type %q", s)
}

// IsClubFamily reports whether t belongs to the club notification family.
func (t NotificationType) IsClubFamily() bool {
	return strings.HasPrefix(string(t), clubFamilyPrefix)
}

// IsClubAnnouncement reports whether t is a regular or urgent club announcement.
func (t NotificationType) IsClubAnnouncement() bool {
	return t == NotifTypeClubAnnouncement || t == NotifTypeClubAnnouncementUrgent
}

// Priority is the delivery priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// PriorityFor returns the fixed priority for a notification type.
// Unknown types are treated as low priority.
func PriorityFor(t NotificationType) Priority {
	switch t {
	case NotifTypeEmergencyRequest, NotifTypeClubAnnouncementUrgent:
		return PriorityUrgent
	case NotifTypeDirectMessage, NotifTypeClubMessage:
		return PriorityHigh
	case NotifTypeClubAnnouncement, NotifTypeClubEvent, NotifTypeEventReminder,
		NotifTypeJoinRequest, NotifTypeJoinRequestApproved:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// AppState is the foreground/background state of the client app.
type AppState string

const (
	AppStateForeground AppState = "foreground"
	AppStateBackground AppState = "background"
	AppStateUnknown    AppState = "unknown"
)

// ParseAppState parses s, mapping the empty string to AppStateUnknown.
func ParseAppState(s string) (AppState, error) {
	switch AppState(s) {
	case AppStateForeground, AppStateBackground, AppStateUnknown:
		return AppState(s), nil
	case "":
		return AppStateUnknown, nil
	}
	return "", fmt.Errorf("unknown app state %q", s)
}

// DeviceState is derived from AppState.
type DeviceState string

const (
	DeviceStateActive     DeviceState = "active"
	DeviceStateInactive   DeviceState = "inactive"
	DeviceStateBackground DeviceState = "background"
)

// DeviceStateFor derives the device state from the app state.
func DeviceStateFor(s AppState) DeviceState {
	switch s {
	case AppStateForeground:
		return DeviceStateActive
	case AppStateBackground:
		return DeviceStateBackground
	default:
		return DeviceStateInactive
	}
}

// NetworkState is the connectivity of the device.
type NetworkState string

const (
	NetworkConnected    NetworkState = "connected"
	NetworkDisconnected NetworkState = "disconnected"
	NetworkPoor         NetworkState = "poor"
)

// ParseNetworkState parses s, mapping the empty string to NetworkConnected.
func ParseNetworkState(s string) (NetworkState, error) {
	switch NetworkState(s) {
	case NetworkConnected, NetworkDisconnected, NetworkPoor:
		return NetworkState(s), nil
	case "":
		return NetworkConnected, nil
	}
	return "", fmt.Errorf("unknown network state %q", s)
}

// DeliveryContext is everything the strategy selector looks at for one decision.
type DeliveryContext struct {
	UserID             string           `json:"user_id"`
	NotificationType   NotificationType `json:"notification_type"`
	Priority           Priority         `json:"priority"`
	AppState           AppState         `json:"app_state"`
	DeviceState        DeviceState      `json:"device_state"`
	NetworkState       NetworkState     `json:"network_state"`
	BatteryLevel       *int             `json:"battery_level,omitempty"`
	IsCharging         *bool            `json:"is_charging,omitempty"`
	CurrentTime        time.Time        `json:"current_time"`
	UserActivityScore  float64          `json:"user_activity_score"`
	RecentInteractions int              `json:"recent_interactions"`
}
