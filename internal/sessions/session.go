// Package sessions groups the audio streams of one device by application.
//
// A Collection receives session-created callbacks from the OS layer on any
// goroutine, validates them cheaply and posts the real work to a
// dispatch.Queue. The live tree (AppGroup → ProcessGroup → Session) and the
// moved side-table are only touched on that queue, so consumers that read
// them must do so from a queued task or through Snapshot.
package sessions

import (
	"sync"
	"sync/atomic"

	"github.com/tphakala/audiosessions/internal/audioapi"
	"github.com/tphakala/audiosessions/internal/dispatch"
)

// State is the derived lifecycle of a Session, and the state of a Collection
// (which only uses StateActive and StateInvalid).
type State int32

const (
	StateActive State = iota
	StateMoved
	StateExpired
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateMoved:
		return "moved"
	case StateExpired:
		return "expired"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Session wraps one OS stream and tracks whether it still renders to the
// device its collection represents.
type Session struct {
	control  audioapi.SessionControl
	id       string
	deviceID string
	queue    *dispatch.Queue

	state atomic.Int32

	mu           sync.Mutex
	unhidden     string
	listeners    map[int]func(old, new State)
	nextListener int

	unsubscribe func()
	closeOnce   sync.Once
}

func newSession(control audioapi.SessionControl, id, deviceID string, queue *dispatch.Queue) *Session {
	s := &Session{
		control:   control,
		id:        id,
		deviceID:  deviceID,
		queue:     queue,
		listeners: make(map[int]func(old, new State)),
	}
	s.state.Store(int32(s.classify()))
	s.unsubscribe = control.Subscribe(func() {
		queue.Post(s.refresh)
	})
	return s
}

// ID returns the OS session id probed at creation.
func (s *Session) ID() string { return s.id }

// DeviceID returns the id of the device whose collection owns the session.
func (s *Session) DeviceID() string { return s.deviceID }

// ProcessID returns the owning process id.
func (s *Session) ProcessID() uint32 { return s.control.ProcessID() }

// AppID returns the owning application id, the first grouping level.
func (s *Session) AppID() string { return s.control.AppID() }

// GroupingKey returns the key that places the session in a ProcessGroup.
func (s *Session) GroupingKey() string { return s.control.GroupingKey() }

func (s *Session) ExeName() string      { return s.control.ExeName() }
func (s *Session) DisplayName() string  { return s.control.DisplayName() }
func (s *Session) IsSystemSounds() bool { return s.control.IsSystemSounds() }

// EndpointID returns the device the OS currently renders the stream to.
func (s *Session) EndpointID() string { return s.control.EndpointID() }

// State returns the last classified lifecycle state. It is safe from any
// goroutine, but transitions are only applied on the dispatch queue.
func (s *Session) State() State { return State(s.state.Load()) }

// Muted reads the mute flag from the OS control, so it can change under
// the caller when another client toggles it.
func (s *Session) Muted() bool { return s.control.Muted() }

// SetMuted writes through to the OS control. The owning groups derive their
// mute from members, so callers mutating the tree should do it on the
// dispatch queue.
func (s *Session) SetMuted(m bool) error { return s.control.SetMuted(m) }

// MoveToDevice asks the OS to route the stream to another endpoint. Local
// state follows once the OS reports the new endpoint.
func (s *Session) MoveToDevice(deviceID string) error {
	return s.control.MoveToDevice(deviceID)
}

// Unhide treats the stream's current endpoint as this device, forcing the
// session out of StateMoved. Must run on the dispatch queue.
func (s *Session) Unhide() State {
	s.mu.Lock()
	s.unhidden = s.control.EndpointID()
	s.mu.Unlock()

	s.refresh()
	return s.State()
}

func (s *Session) classify() State {
	if s.control.RawState() == audioapi.RawStateExpired {
		return StateExpired
	}

	endpoint := s.control.EndpointID()
	s.mu.Lock()
	unhidden := s.unhidden
	s.mu.Unlock()

	if endpoint != s.deviceID && endpoint != unhidden {
		return StateMoved
	}
	return StateActive
}

// refresh reclassifies the stream and fires listeners on a transition.
// Runs on the dispatch queue.
func (s *Session) refresh() {
	old := s.State()
	if old == StateInvalid {
		return
	}
	next := s.classify()
	if next == old || !s.state.CompareAndSwap(int32(old), int32(next)) {
		return
	}

	s.mu.Lock()
	fns := make([]func(old, new State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(old, next)
	}
}

// listen registers fn for lifecycle transitions. fn runs on the dispatch queue.
func (s *Session) listen(fn func(old, new State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// OnStateChanged registers fn for lifecycle transitions of this session.
func (s *Session) OnStateChanged(fn func(old, new State)) (cancel func()) {
	return s.listen(fn)
}

// Close detaches from the OS stream and drops every listener. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.unsubscribe()
		s.mu.Lock()
		clear(s.listeners)
		s.mu.Unlock()
		s.state.Store(int32(StateInvalid))
		s.control.Release()
	})
}
