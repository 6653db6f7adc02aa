// Package services implements the voucher lifecycle use cases on top of the
// store, the code generator, and the enforcement-device client.
package services

// Event names broadcast to connected operator UIs.
const (
	EventBatchCreated      = "voucher:batch"
	EventSessionTerminated = "session:terminated"
	EventSessionsRefreshed = "sessions:refresh"
)

// EventBroadcaster pushes lifecycle events to subscribed clients. A nil
// broadcaster is valid and drops events.
type EventBroadcaster interface {
	Broadcast(event string, payload any)
}

func broadcast(b EventBroadcaster, event string, payload any) {
	if b != nil {
		b.Broadcast(event, payload)
	}
}
