// Package memory is an in-process implementation of the audioapi surface.
// It backs the tests and the demo commands: sessions are created, expired and
// moved by calling methods on Device and Session, and notifications are
// delivered synchronously on the calling goroutine, the way an OS thread
// would call into the engine.
package memory

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tphakala/audiosessions/internal/audioapi"
	"github.com/tphakala/audiosessions/internal/errors"
)

// ErrUnknownDevice is returned when a move targets a device the backend does not know.
var ErrUnknownDevice = errors.NewStd("unknown device")

// Backend is a set of simulated endpoints.
type Backend struct {
	mu      sync.RWMutex
	devices map[string]*Device
	order   []string
}

// NewBackend creates an empty backend.
func NewBackend() *Backend {
	return &Backend{devices: make(map[string]*Device)}
}

// AddDevice creates and registers an endpoint. Adding an existing id returns the existing device.
func (b *Backend) AddDevice(id, name string) *Device {
	b.mu.Lock()
	defer b.mu.Unlock()

	if d, ok := b.devices[id]; ok {
		return d
	}
	d := &Device{backend: b, id: id, name: name}
	b.devices[id] = d
	b.order = append(b.order, id)
	return d
}

// Device returns the endpoint with id.
func (b *Backend) Device(id string) (*Device, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.devices[id]
	return d, ok
}

// Devices returns endpoints in the order they were added.
func (b *Backend) Devices() []*Device {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Device, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.devices[id])
	}
	return out
}

// RemoveDevice invalidates the endpoint and forgets it.
func (b *Backend) RemoveDevice(id string) {
	b.mu.Lock()
	d, ok := b.devices[id]
	delete(b.devices, id)
	b.order = slices.DeleteFunc(b.order, func(s string) bool { return s == id })
	b.mu.Unlock()

	if ok {
		d.Invalidate()
	}
}

// Device is a simulated endpoint.
type Device struct {
	backend *Backend
	id      string
	name    string

	mu          sync.Mutex
	sinks       []audioapi.NotificationSink
	sessions    []*Session
	activateErr error
	registerErr error

	invalidated atomic.Bool
}

func (d *Device) ID() string   { return d.id }
func (d *Device) Name() string { return d.name }

// FailActivation makes the next Activate calls fail with err wrapped in ErrActivation.
func (d *Device) FailActivation(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activateErr = err
}

// FailRegistration makes RegisterNotifications fail with err.
func (d *Device) FailRegistration(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registerErr = err
}

// Invalidate simulates the endpoint being unplugged or disabled. Session id
// probes and new registrations fail with ErrDeviceInvalidated afterwards.
func (d *Device) Invalidate() {
	d.invalidated.Store(true)
}

// Invalidated reports whether Invalidate has been called.
func (d *Device) Invalidated() bool {
	return d.invalidated.Load()
}

// Activate implements audioapi.Device.
func (d *Device) Activate() (audioapi.SessionManager, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.activateErr != nil {
		return nil, fmt.Errorf("%w: %w", audioapi.ErrActivation, d.activateErr)
	}
	if d.invalidated.Load() {
		return nil, fmt.Errorf("%w: %w", audioapi.ErrActivation, audioapi.ErrDeviceInvalidated)
	}
	return &sessionManager{device: d}, nil
}

// Sinks returns the number of registered notification sinks.
func (d *Device) Sinks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sinks)
}

// SessionSpec describes a stream to create.
type SessionSpec struct {
	ProcessID    uint32
	AppID        string
	GroupingKey  string
	ExeName      string
	DisplayName  string
	Muted        bool
	SystemSounds bool
	State        audioapi.RawState
	// EndpointID defaults to the creating device.
	EndpointID string
}

// Seed adds a session without notifying sinks, as if it existed before
// anyone registered. It is returned by Enumerate.
func (d *Device) Seed(spec SessionSpec) *Session {
	s := d.newSession(spec)
	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	d.mu.Unlock()
	return s
}

// CreateSession adds a session and notifies every registered sink on the
// calling goroutine.
func (d *Device) CreateSession(spec SessionSpec) *Session {
	s := d.newSession(spec)

	d.mu.Lock()
	d.sessions = append(d.sessions, s)
	sinks := slices.Clone(d.sinks)
	d.mu.Unlock()

	for _, sink := range sinks {
		sink.OnSessionCreated(s)
	}
	return s
}

// Sessions returns every session created on the device.
func (d *Device) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.sessions)
}

func (d *Device) newSession(spec SessionSpec) *Session {
	endpoint := spec.EndpointID
	if endpoint == "" {
		endpoint = d.id
	}
	if spec.SystemSounds {
		spec.AppID = audioapi.SystemSoundsAppID
		if spec.ExeName == "" {
			spec.ExeName = "System Sounds"
		}
	}
	if spec.ExeName == "" {
		spec.ExeName = spec.AppID
	}
	if spec.GroupingKey == "" {
		spec.GroupingKey = uuid.NewString()
	}
	return &Session{
		id:       uuid.NewString(),
		device:   d,
		spec:     spec,
		muted:    spec.Muted,
		state:    spec.State,
		endpoint: endpoint,
		subs:     make(map[int]func()),
	}
}

type sessionManager struct {
	device *Device
}

func (m *sessionManager) RegisterNotifications(sink audioapi.NotificationSink) error {
	d := m.device
	if d.invalidated.Load() {
		return audioapi.ErrDeviceInvalidated
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.registerErr != nil {
		return d.registerErr
	}
	d.sinks = append(d.sinks, sink)
	return nil
}

func (m *sessionManager) UnregisterNotifications(sink audioapi.NotificationSink) error {
	d := m.device
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := slices.Index(d.sinks, sink)
	if idx < 0 {
		return fmt.Errorf("sink not registered on device %s", d.id)
	}
	d.sinks = slices.Delete(d.sinks, idx, idx+1)
	return nil
}

func (m *sessionManager) Enumerate() ([]audioapi.SessionControl, error) {
	d := m.device
	if d.invalidated.Load() {
		return nil, audioapi.ErrDeviceInvalidated
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]audioapi.SessionControl, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s)
	}
	return out, nil
}

// Session is a simulated stream.
type Session struct {
	id     string
	device *Device
	spec   SessionSpec

	mu       sync.Mutex
	muted    bool
	state    audioapi.RawState
	endpoint string
	subs     map[int]func()
	nextSub  int

	releases atomic.Int32
}

// ID implements audioapi.SessionControl.
func (s *Session) ID() (string, error) {
	if s.device.invalidated.Load() {
		return "", audioapi.ErrDeviceInvalidated
	}
	return s.id, nil
}

// InstanceID returns the id without the invalidation probe.
func (s *Session) InstanceID() string { return s.id }

func (s *Session) ProcessID() uint32    { return s.spec.ProcessID }
func (s *Session) AppID() string        { return s.spec.AppID }
func (s *Session) GroupingKey() string  { return s.spec.GroupingKey }
func (s *Session) ExeName() string      { return s.spec.ExeName }
func (s *Session) DisplayName() string  { return s.spec.DisplayName }
func (s *Session) IsSystemSounds() bool { return s.spec.SystemSounds }

func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *Session) SetMuted(muted bool) error {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
	return nil
}

func (s *Session) RawState() audioapi.RawState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) EndpointID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// SetState changes the raw state and notifies subscribers.
func (s *Session) SetState(state audioapi.RawState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
	s.notify()
}

// Expire is SetState(RawStateExpired).
func (s *Session) Expire() {
	s.SetState(audioapi.RawStateExpired)
}

// SetEndpoint reroutes the stream without validation and notifies subscribers.
func (s *Session) SetEndpoint(deviceID string) {
	s.mu.Lock()
	s.endpoint = deviceID
	s.mu.Unlock()
	s.notify()
}

// MoveToDevice implements audioapi.SessionControl.
func (s *Session) MoveToDevice(deviceID string) error {
	if _, ok := s.device.backend.Device(deviceID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	s.SetEndpoint(deviceID)
	return nil
}

func (s *Session) Subscribe(fn func()) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Release drops every subscription. The simulated stream itself lives on
// and is returned again by Enumerate, like a real OS session would be.
func (s *Session) Release() {
	s.releases.Add(1)
	s.mu.Lock()
	clear(s.subs)
	s.mu.Unlock()
}

// Released reports whether Release has been called at least once.
func (s *Session) Released() bool {
	return s.releases.Load() > 0
}

func (s *Session) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
