package routing

import "github.com/dukerupert/clubnotify/internal/model"

// ToDecision maps a strategy onto the channel summary transports consume.
func ToDecision(s model.DeliveryStrategy) model.DeliveryDecision {
	d := model.DeliveryDecision{
		ShouldSendPush:  s.ShouldSendPush,
		ShouldSendInApp: s.ShouldSendInApp,
	}
	switch {
	case s.ShouldSendPush && s.ShouldSendInApp:
		d.DeliveryMethod = model.DeliveryBoth
	case s.ShouldSendPush:
		d.DeliveryMethod = model.DeliveryPush
	case s.ShouldSendInApp:
		d.DeliveryMethod = model.DeliveryInApp
	default:
		d.DeliveryMethod = model.DeliverySkipped
	}
	return d
}
