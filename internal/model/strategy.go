package model

import "time"

// StrategyName identifies which routing rule produced a strategy.
type StrategyName string

const (
	StrategyDisabled             StrategyName = "disabled"
	StrategyEmergencyOnly        StrategyName = "emergency_only"
	StrategyQuietHours           StrategyName = "quiet_hours"
	StrategyUrgentBackground     StrategyName = "urgent_background"
	StrategyUrgentForeground     StrategyName = "urgent_foreground"
	StrategyActiveForeground     StrategyName = "active_foreground"
	StrategyInactiveBackground   StrategyName = "inactive_background"
	StrategyBatchMedium          StrategyName = "batch_medium"
	StrategyDelayedLow           StrategyName = "delayed_low"
	StrategyPoorNetworkUrgent    StrategyName = "poor_network_urgent"
	StrategyLowBatteryConserve   StrategyName = "low_battery_conserve"
	StrategyActiveChat           StrategyName = "active_chat"
	StrategyAwayMessage          StrategyName = "away_message"
	StrategyDirectMessageDefault StrategyName = "direct_message_default"
	StrategyClubAnnouncement     StrategyName = "club_announcement"
	StrategyClubEventBatch       StrategyName = "club_event_batch"
	StrategyClubMessageBatch     StrategyName = "club_message_batch"
	StrategyClubDefault          StrategyName = "club_default"
	StrategyDefault              StrategyName = "default"
	StrategyFallback             StrategyName = "fallback"
)

// DeliveryStrategy is the outcome of strategy selection.
type DeliveryStrategy struct {
	Name             StrategyName `json:"strategy_name"`
	ShouldSendPush   bool         `json:"should_send_push"`
	ShouldSendInApp  bool         `json:"should_send_in_app"`
	DelayMinutes     int          `json:"delay_minutes"`
	BatchWithOthers  bool         `json:"batch_with_others"`
	PriorityOverride *Priority    `json:"priority_override,omitempty"`
	Reasoning        string       `json:"reasoning"`
}

// DeliveryMethod is the canonical channel summary of a decision.
type DeliveryMethod string

const (
	DeliveryPush    DeliveryMethod = "push"
	DeliveryInApp   DeliveryMethod = "in_app"
	DeliveryBoth    DeliveryMethod = "both"
	DeliverySkipped DeliveryMethod = "skipped"
)

// DeliveryDecision is what transport layers consume.
type DeliveryDecision struct {
	ShouldSendPush  bool           `json:"should_send_push"`
	ShouldSendInApp bool           `json:"should_send_in_app"`
	DeliveryMethod  DeliveryMethod `json:"delivery_method"`
}

// Outcome records what happened to a routed notification.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeIgnored Outcome = "ignored"
)

// ParseOutcome validates s as an Outcome.
func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(s) {
	case OutcomeSuccess, OutcomeFailed, OutcomeIgnored:
		return Outcome(s), true
	}
	return "", false
}

// RoutingHistoryEntry is one recorded routing decision.
type RoutingHistoryEntry struct {
	ID        string           `json:"id"`
	Context   DeliveryContext  `json:"context"`
	Strategy  DeliveryStrategy `json:"strategy"`
	DecidedAt time.Time        `json:"decided_at"`
	Outcome   Outcome          `json:"outcome"`
}

// RouterMetrics aggregates recent routing history.
type RouterMetrics struct {
	TotalDecisions         int     `json:"total_decisions"`
	PushSentCount          int     `json:"push_sent_count"`
	InAppSentCount         int     `json:"in_app_sent_count"`
	BothSentCount          int     `json:"both_sent_count"`
	SkippedCount           int     `json:"skipped_count"`
	SuccessRate            float64 `json:"success_rate"`
	AverageEngagementScore float64 `json:"average_engagement_score"`
	LedgerSize             int     `json:"ledger_size"`
}
