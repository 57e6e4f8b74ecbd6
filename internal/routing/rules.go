package routing

import (
	"time"

	"github.com/dukerupert/clubnotify/internal/model"
)

const (
	activeScoreThreshold    = 70
	inactiveScoreThreshold  = 30
	activeChatThreshold     = 80
	awayChatThreshold       = 20
	lowBatteryThreshold     = 20
	batchMediumDelayMinutes = 5
	delayedLowDelayMinutes  = 15
	clubEventDelayMinutes   = 10
	clubMessageDelayMinutes = 3
)

// QuietFunc reports whether now is inside prefs' quiet hours.
type QuietFunc func(prefs model.NotificationPreferences, now time.Time) (bool, error)

// Evaluation is the input every rule sees.
type Evaluation struct {
	Context model.DeliveryContext
	Prefs   model.NotificationPreferences
	quiet   QuietFunc
}

func (e *Evaluation) urgent() bool {
	return e.Context.Priority == model.PriorityUrgent
}

func (e *Evaluation) foreground() bool {
	return e.Context.AppState == model.AppStateForeground
}

func (e *Evaluation) background() bool {
	return e.Context.AppState == model.AppStateBackground
}

// Rule is one predicate and the strategy it produces when it matches.
// Rules are evaluated in order and the first match wins.
type Rule struct {
	Name  string
	Match func(e *Evaluation) (bool, error)
	Build func(e *Evaluation) model.DeliveryStrategy
}

func always(*Evaluation) (bool, error) { return true, nil }

func when(pred func(e *Evaluation) bool) func(*Evaluation) (bool, error) {
	return func(e *Evaluation) (bool, error) { return pred(e), nil }
}

// DefaultRules returns the routing rules in precedence order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: string(model.StrategyDisabled),
			Match: when(func(e *Evaluation) bool {
				return !e.Prefs.PushEnabled && !e.Prefs.InAppEnabled
			}),
			Build: func(e *Evaluation) model.DeliveryStrategy {
				return model.DeliveryStrategy{
					Name:      model.StrategyDisabled,
					Reasoning: "push and in-app notifications are both disabled",
				}
			},
		},
		{
			Name: string(model.StrategyEmergencyOnly),
			Match: when(func(e *Evaluation) bool {
				return e.Prefs.EmergencyOnlyMode && !e.urgent()
			}),
			Build: func(e *Evaluation) model.DeliveryStrategy {
				return model.DeliveryStrategy{
					Name:      model.StrategyEmergencyOnly,
					Reasoning: "emergency-only mode suppresses non-urgent notifications",
				}
			},
		},
		{
			Name: string(model.StrategyQuietHours),
			Match: func(e *Evaluation) (bool, error) {
				if e.urgent() {
					return false, nil
				}
				return e.quiet(e.Prefs, e.Context.CurrentTime)
			},
			Build: func(e *Evaluation) model.DeliveryStrategy {
				return model.DeliveryStrategy{
					Name:            model.StrategyQuietHours,
					ShouldSendInApp: true,
					Reasoning:       "inside quiet hours, holding push and showing in-app only",
				}
			},
		},
		{
			Name: string(model.StrategyUrgentBackground),
			Match: when(func(e *Evaluation) bool {
				return e.urgent() && e.background()
			}),
			Build: func(e *Evaluation) model.DeliveryStrategy {
				return model.DeliveryStrategy{
					Name:           model.StrategyUrgentBackground,
					ShouldSendPush: true,
					Reasoning:      "urgent notification while the app is in the background",
				}
			},
		},
		{
			Name: string(model.StrategyUrgentForeground),
			Match: when(func(e *Evaluation) bool {
				return e.urgent() && e.foreground()
			}),
			Build: func(e *Evaluation) model.DeliveryStrategy {
				return model.DeliveryStrategy{
					Name:            model.StrategyUrgentForeground,
					ShouldSendPush:  true,
					ShouldSendInApp: true,
					Reasoning:       "urgent notification for a user with the app open, using every channel",
				}
			},
		},
		{
			Name: string(model.StrategyActiveForeground),
			Match: when(func(e *Evaluation) bool {
				return e.foreground() && e.Context.UserActivityScore > activeScoreThreshold
			}),
			Build: func(e *Evaluation) model.DeliveryStrategy {
				return model.DeliveryStrategy{
					Name:            model.StrategyActiveForeground,
					ShouldSendInApp: true,
					Reasoning:       "user is actively using the app, avoiding a push interruption",
				}
			},
		},
		{
			Name: string(model.StrategyInactiveBackground),
			Match: when(func(e *Evaluation) bool {
				return e.background() && e.Context.UserActivityScore < inactiveScoreThreshold
			}),
			Build: func(e *Evaluation) model.DeliveryStrategy {
				return model.DeliveryStrategy{
					Name:           model.StrategyInactiveBackground,
					ShouldSendPush: e.Prefs.PushEnabled,
					Reasoning:      "user has been inactive, reaching them by push",
				}
			},
		},
		{
			Name: string(model.StrategyBatchMedium),
			Match: when(func(e *Evaluation) bool {
				return e.Context.Priority == model.PriorityMedium && e.Prefs.BatchNotifications
			}),
			Build: func(e *Evaluation) model.DeliveryStrategy {
				return model.DeliveryStrategy{
					Name:            model.StrategyBatchMedium,
					ShouldSendPush:  e.Prefs.PushEnabled,
					ShouldSendInApp: e.Prefs.InAppEnabled,
					DelayMinutes:    batchMediumDelayMinutes,
					BatchWithOthers: true,
					Reasoning:       "medium priority notification batched per user preference",
				}
			},
		},
		{
			Name: string(model.StrategyDelayedLow),
			Match: when(func(e *Evaluation) bool {
				return e.Context.Priority == model.PriorityLow && e.background()
			}),
			Build: func(e *Evaluation) model.DeliveryStrategy {
				return model.DeliveryStrategy{
					Name:            model.StrategyDelayedLow,
					ShouldSendPush:  e.Prefs.PushEnabled,
					DelayMinutes:    delayedLowDelayMinutes,
					BatchWithOthers: true,
					Reasoning:       "low priority notification delayed for batching",
				}
			},
		},
		{
			Name: string(model.StrategyPoorNetworkUrgent),
			Match: when(func(e *Evaluation) bool {
				return e.Context.NetworkState == model.NetworkPoor && e.urgent()
			}),
			Build: func(e *Evaluation) model.DeliveryStrategy {
				return model.DeliveryStrategy{
					Name:            model.StrategyPoorNetworkUrgent,
					ShouldSendPush:  true,
					ShouldSendInApp: true,
					Reasoning:       "urgent notification on a poor connection, using every channel",
				}
			},
		},
		{
			Name: string(model.StrategyLowBatteryConserve),
			Match: when(func(e *Evaluation) bool {
				b := e.Context.BatteryLevel
				return b != nil && *b < lowBatteryThreshold && !e.urgent()
			}),
			Build: func(e *Evaluation) model.DeliveryStrategy {
				return model.DeliveryStrategy{
					Name:            model.StrategyLowBatteryConserve,
					ShouldSendInApp: e.Prefs.InAppEnabled,
					Reasoning:       "battery is low, skipping push to conserve power",
				}
			},
		},
		{
			Name: "direct_message",
			Match: when(func(e *Evaluation) bool {
				return e.Context.NotificationType == model.NotifTypeDirectMessage
			}),
			Build: directMessageStrategy,
		},
		{
			Name: "club",
			Match: when(func(e *Evaluation) bool {
				return e.Context.NotificationType.IsClubFamily()
			}),
			Build: clubStrategy,
		},
		{
			Name:  string(model.StrategyDefault),
			Match: always,
			Build: func(e *Evaluation) model.DeliveryStrategy {
				return model.DeliveryStrategy{
					Name:            model.StrategyDefault,
					ShouldSendPush:  e.Prefs.PushEnabled && e.background(),
					ShouldSendInApp: e.Prefs.InAppEnabled,
					Reasoning:       "no specific rule applied",
				}
			},
		},
	}
}

func directMessageStrategy(e *Evaluation) model.DeliveryStrategy {
	score := e.Context.UserActivityScore
	switch {
	case e.foreground() && score > activeChatThreshold:
		return model.DeliveryStrategy{
			Name:            model.StrategyActiveChat,
			ShouldSendInApp: true,
			Reasoning:       "user is actively chatting, showing the message in-app",
		}
	case e.background() || score < awayChatThreshold:
		return model.DeliveryStrategy{
			Name:           model.StrategyAwayMessage,
			ShouldSendPush: e.Prefs.PushEnabled,
			Reasoning:      "user is away, delivering the message by push",
		}
	default:
		return model.DeliveryStrategy{
			Name:            model.StrategyDirectMessageDefault,
			ShouldSendPush:  e.Prefs.PushEnabled,
			ShouldSendInApp: e.Prefs.InAppEnabled,
			Reasoning:       "direct message delivered on every enabled channel",
		}
	}
}

func clubStrategy(e *Evaluation) model.DeliveryStrategy {
	t := e.Context.NotificationType
	switch {
	case t.IsClubAnnouncement():
		return model.DeliveryStrategy{
			Name:            model.StrategyClubAnnouncement,
			ShouldSendPush:  e.Prefs.PushEnabled,
			ShouldSendInApp: e.Prefs.InAppEnabled,
			Reasoning:       "club announcement delivered immediately",
		}
	case t == model.NotifTypeClubEvent && !e.urgent():
		return model.DeliveryStrategy{
			Name:            model.StrategyClubEventBatch,
			ShouldSendPush:  e.Prefs.PushEnabled,
			ShouldSendInApp: e.Prefs.InAppEnabled,
			DelayMinutes:    clubEventDelayMinutes,
			BatchWithOthers: true,
			Reasoning:       "club event batched with other club activity",
		}
	case t == model.NotifTypeClubMessage && e.background():
		return model.DeliveryStrategy{
			Name:            model.StrategyClubMessageBatch,
			ShouldSendPush:  e.Prefs.PushEnabled,
			DelayMinutes:    clubMessageDelayMinutes,
			BatchWithOthers: true,
			Reasoning:       "club message batched while the app is in the background",
		}
	default:
		return model.DeliveryStrategy{
			Name:            model.StrategyClubDefault,
			ShouldSendPush:  e.Prefs.PushEnabled && e.background(),
			ShouldSendInApp: e.Prefs.InAppEnabled,
			Reasoning:       "club notification delivered on the enabled channels",
		}
	}
}
