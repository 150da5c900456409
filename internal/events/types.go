// Package events provides an asynchronous event bus that decouples the
// session engine from its consumers (MQTT publisher, metrics, telemetry).
// Publishing never blocks: the dispatch goroutine must not stall behind a
// slow broker.
package events

import (
	"time"

	"github.com/tphakala/audiosessions/internal/errors"
)

// Event type names
const (
	TypeCollectionChanged = "collection_changed"
	TypeStateChanged      = "state_changed"
	TypeErrorReported     = "error_reported"
)

// Event is a unit of work delivered to consumers
type Event interface {
	// EventType returns one of the Type* constants
	EventType() string

	// GetDeviceID returns the device the event relates to, or "" for process-wide events
	GetDeviceID() string

	// GetTimestamp returns when the event occurred
	GetTimestamp() time.Time
}

// CollectionChanged is published from the dispatch goroutine after every
// mutation of a device's session tree.
type CollectionChanged struct {
	DeviceID  string
	Reason    string
	Timestamp time.Time
}

func (e CollectionChanged) EventType() string       { return TypeCollectionChanged }
func (e CollectionChanged) GetDeviceID() string     { return e.DeviceID }
func (e CollectionChanged) GetTimestamp() time.Time { return e.Timestamp }

// StateChanged is published when a collection's state flips, which in
// practice means the device was invalidated.
type StateChanged struct {
	DeviceID  string
	State     string
	Timestamp time.Time
}

func (e StateChanged) EventType() string       { return TypeStateChanged }
func (e StateChanged) GetDeviceID() string     { return e.DeviceID }
func (e StateChanged) GetTimestamp() time.Time { return e.Timestamp }

// ErrorReported carries an enhanced error from the errors package to the
// telemetry consumer.
type ErrorReported struct {
	Err *errors.EnhancedError
}

func (e ErrorReported) EventType() string { return TypeErrorReported }

func (e ErrorReported) GetDeviceID() string {
	if id, ok := e.Err.GetContext()["device_id"].(string); ok {
		return id
	}
	return ""
}

func (e ErrorReported) GetTimestamp() time.Time { return e.Err.GetTimestamp() }

// EventConsumer processes events delivered by the bus
type EventConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// Accepts reports whether the consumer wants events of this type
	Accepts(eventType string) bool

	// ProcessEvent processes a single event
	ProcessEvent(event Event) error
}

// EventBusStats contains runtime statistics for monitoring
type EventBusStats struct {
	EventsReceived   uint64
	EventsSuppressed uint64
	EventsProcessed  uint64
	EventsDropped    uint64
	ConsumerErrors   uint64
}
