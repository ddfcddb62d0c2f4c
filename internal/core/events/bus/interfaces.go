package bus

import "time"

// EventBus is a thread-safe, in-process pub/sub bus for script host notifications.
//
// Delivery is synchronous in the publisher's goroutine. Handlers subscribed to
// Wildcard receive every event after the type-specific handlers.
type EventBus interface {
	// Publish delivers the event to all active subscribers of event.Type() and
	// to wildcard subscribers. Handler errors are joined and returned.
	Publish(event Event) error
	// Subscribe registers a handler for an event type, or Wildcard for all types.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. It is safe to call with nil.
	Unsubscribe(Subscription) error
	// GetMetrics returns a snapshot of delivery counters.
	GetMetrics() EventBusMetrics
}

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"

// Event types published by the script system.
const (
	EventScriptLoaded     = "script.loaded"
	EventScriptCreated    = "script.created"
	EventScriptDestroyed  = "script.destroyed"
	EventScriptAttributes = "script.attributes"
	EventScriptError      = "script.error"
)

// Event is an immutable message transported by the EventBus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
	Metadata() map[string]any
}

type (
	// EventHandler is invoked per delivered event.
	EventHandler func(event Event) error
)

// Subscription represents a registered handler bound to an event type.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}

// EventBusMetrics is a minimal set of delivery counters.
type EventBusMetrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	SubscribersActive uint64
}
