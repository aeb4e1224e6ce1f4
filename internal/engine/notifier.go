package engine

import "time"

// Event names a notification kind emitted by the router.
type Event string

const (
	EventOrderAccepted     Event = "ORDER_ACCEPTED"
	EventOrderFilled       Event = "ORDER_FILLED"
	EventOrderRejected     Event = "ORDER_REJECTED"
	EventSessionAuthFailed Event = "SESSION_AUTH_FAILED"
)

// Notification carries the context of one event. Err is set for rejection
// and auth events.
type Notification struct {
	Event   Event
	OrderID string
	Symbol  string
	Err     error
	At      time.Time
}

// Notifier receives router events. Delivery is fire-and-forget: a slow,
// failing, or panicking notifier never affects order handling.
type Notifier interface {
	Notify(notification Notification)
}
