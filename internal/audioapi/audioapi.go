// Package audioapi defines the capability surface the session engine needs
// from the operating system audio layer. Bindings to a real audio stack live
// outside this module; package memory provides an in-process implementation.
package audioapi

import (
	"github.com/tphakala/audiosessions/internal/errors"
)

var (
	// ErrActivation is returned when a session manager cannot be obtained for a device.
	ErrActivation = errors.NewStd("session manager activation failed")

	// ErrDeviceInvalidated is returned once the device has been removed or disabled.
	ErrDeviceInvalidated = errors.NewStd("device invalidated")
)

// SystemSoundsAppID is the app id reported for the system sounds session.
const SystemSoundsAppID = "*SystemSounds"

// RawState is the lifecycle state reported by the OS for one stream.
type RawState int

const (
	RawStateInactive RawState = iota
	RawStateActive
	RawStateExpired
)

func (s RawState) String() string {
	switch s {
	case RawStateInactive:
		return "inactive"
	case RawStateActive:
		return "active"
	case RawStateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Device is an audio endpoint that can hand out a session manager.
type Device interface {
	ID() string
	Activate() (SessionManager, error)
}

// NotificationSink receives session-created callbacks. Calls arrive on an
// arbitrary goroutine but never concurrently for one sink.
type NotificationSink interface {
	OnSessionCreated(control SessionControl)
}

// SessionManager enumerates a device's sessions and delivers creations.
type SessionManager interface {
	RegisterNotifications(sink NotificationSink) error
	UnregisterNotifications(sink NotificationSink) error
	Enumerate() ([]SessionControl, error)
}

// SessionControl is one OS-level audio stream.
type SessionControl interface {
	// ID returns the stable session instance identifier. It fails with
	// ErrDeviceInvalidated when the owning device is gone.
	ID() (string, error)

	ProcessID() uint32
	AppID() string
	GroupingKey() string
	ExeName() string
	DisplayName() string
	IsSystemSounds() bool

	Muted() bool
	SetMuted(muted bool) error

	RawState() RawState
	// EndpointID is the device the stream currently renders to.
	EndpointID() string

	// Subscribe registers fn to be called after any change of RawState or
	// EndpointID. fn may be called on any goroutine.
	Subscribe(fn func()) (cancel func())

	// MoveToDevice asks the OS to route the stream's app to another endpoint.
	MoveToDevice(deviceID string) error

	// Release drops the OS reference. Safe to call more than once.
	Release()
}
