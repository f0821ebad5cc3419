package core

// PushService delivers best-effort real-time events to connected users.
// Delivery is fire-and-forget: events for users without an open connection
// are dropped; durable state (tasks, messages) remains the source of truth.
type PushService interface {
	Dispatch(userID, event string, data interface{})
	IsConnected(userID string) bool
}
