package sessions

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/audiosessions/internal/audioapi"
	"github.com/tphakala/audiosessions/internal/dispatch"
	"github.com/tphakala/audiosessions/internal/errors"
	"github.com/tphakala/audiosessions/internal/events"
	"github.com/tphakala/audiosessions/internal/logger"
)

// Notification kinds passed to MetricsRecorder.RecordNotification.
const (
	KindCreated  = "created"
	KindExpired  = "expired"
	KindMoved    = "moved"
	KindReturned = "returned"
	KindUnhidden = "unhidden"
)

// Parent is the device object that owns a collection.
type Parent interface {
	ID() string
}

// ParentResolver looks a parent up by id. The collection keeps only the id,
// so it never keeps a removed device alive.
type ParentResolver interface {
	Resolve(id string) (Parent, bool)
}

// MetricsRecorder receives tree statistics. Calls arrive on the dispatch
// goroutine except RecordInvalidation, which comes from the OS goroutine.
type MetricsRecorder interface {
	RecordNotification(deviceID, kind string)
	RecordInvalidation(deviceID string)
	ObserveTree(deviceID string, apps, groups, sessions, moved int)
}

// EventPublisher is satisfied by *events.EventBus.
type EventPublisher interface {
	TryPublish(event events.Event) bool
}

type noopMetrics struct{}

func (noopMetrics) RecordNotification(string, string)      {}
func (noopMetrics) RecordInvalidation(string)              {}
func (noopMetrics) ObserveTree(string, int, int, int, int) {}

// Options configures a Collection.
type Options struct {
	// ParentID identifies the owning device for Resolver. Defaults to Device.ID().
	ParentID string
	// Resolver is optional; without it the parent is assumed to outlive the collection.
	Resolver ParentResolver
	Device   audioapi.Device
	Queue    *dispatch.Queue
	Logger   logger.Logger
	Metrics  MetricsRecorder
	Events   EventPublisher
}

// Collection is the live session tree of one device.
type Collection struct {
	id       string
	parentID string
	deviceID string
	resolver ParentResolver
	device   audioapi.Device
	queue    *dispatch.Queue
	logger   logger.Logger
	metrics  MetricsRecorder
	events   EventPublisher

	state   atomic.Int32
	closing atomic.Bool

	manager        audioapi.SessionManager
	registered     atomic.Bool
	unregisterOnce sync.Once

	// dispatch goroutine only
	apps   []*AppGroup
	moved  []*Session
	detach map[*Session]func()

	stateMu        sync.Mutex
	stateListeners map[int]func(State)
	nextListener   int

	closeOnce sync.Once
}

// New activates a session manager on opts.Device, registers for
// notifications and enumerates existing sessions. It never fails: activation
// or registration errors are logged and leave the collection Invalid.
func New(opts Options) *Collection {
	c := &Collection{
		id:             uuid.NewString(),
		parentID:       opts.ParentID,
		resolver:       opts.Resolver,
		device:         opts.Device,
		queue:          opts.Queue,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		events:         opts.Events,
		detach:         make(map[*Session]func()),
		stateListeners: make(map[int]func(State)),
	}
	c.state.Store(int32(StateInvalid))

	if c.logger == nil {
		c.logger = logger.Global().Module("sessions")
	}
	if c.metrics == nil {
		c.metrics = noopMetrics{}
	}
	if c.device == nil || c.queue == nil {
		err := errors.Newf("collection requires a device and a dispatch queue").
			Component("sessions").
			Category(errors.CategoryValidation).
			Build()
		c.logger.With(logger.String("collection_id", c.id)).Error("cannot create session collection", logger.Error(err))
		return c
	}

	c.deviceID = c.device.ID()
	if c.parentID == "" {
		c.parentID = c.deviceID
	}
	c.logger = c.logger.With(
		logger.String("collection_id", c.id),
		logger.String("device_id", c.deviceID))

	mgr, err := c.device.Activate()
	if err != nil {
		c.logger.Error("session manager activation failed",
			logger.Error(c.deviceError(err, "activate")))
		return c
	}
	c.manager = mgr

	if err := mgr.RegisterNotifications(c); err != nil {
		c.logger.Error("session notification registration failed",
			logger.Error(c.deviceError(err, "register")))
		return c
	}
	c.registered.Store(true)
	c.state.Store(int32(StateActive))

	controls, err := mgr.Enumerate()
	if err != nil {
		c.logger.Warn("session enumeration failed",
			logger.Error(c.deviceError(err, "enumerate")))
	}
	for _, control := range controls {
		c.OnSessionCreated(control)
	}

	c.logger.Debug("session collection created", logger.Int("enumerated", len(controls)))
	return c
}

// ID returns the collection's instance id used in logs.
func (c *Collection) ID() string { return c.id }

// DeviceID returns the id of the device the collection represents.
func (c *Collection) DeviceID() string { return c.deviceID }

// State returns StateActive or StateInvalid.
func (c *Collection) State() State { return State(c.state.Load()) }

// OnStateChanged registers fn to be called on the dispatch goroutine when
// the collection becomes Invalid.
func (c *Collection) OnStateChanged(fn func(State)) (cancel func()) {
	c.stateMu.Lock()
	id := c.nextListener
	c.nextListener++
	c.stateListeners[id] = fn
	c.stateMu.Unlock()

	return func() {
		c.stateMu.Lock()
		delete(c.stateListeners, id)
		c.stateMu.Unlock()
	}
}

// OnSessionCreated implements audioapi.NotificationSink. It runs on the OS
// goroutine and only validates before posting.
func (c *Collection) OnSessionCreated(control audioapi.SessionControl) {
	if c.State() != StateActive {
		control.Release()
		return
	}

	id, err := control.ID()
	if err != nil {
		control.Release()
		if errors.Is(err, audioapi.ErrDeviceInvalidated) {
			c.invalidate()
			return
		}
		c.logger.Warn("session id probe failed",
			logger.Error(c.deviceError(err, "probe_session")),
			logger.Uint32("process_id", control.ProcessID()))
		return
	}

	c.createAndAdd(control, id)
}

func (c *Collection) createAndAdd(control audioapi.SessionControl, id string) {
	deviceID := c.deviceID
	if c.resolver != nil {
		parent, ok := c.resolver.Resolve(c.parentID)
		if !ok {
			c.logger.Warn("device session parent is gone but device is still notifying",
				logger.String("session_id", id))
			control.Release()
			return
		}
		deviceID = parent.ID()
	}

	s := newSession(control, id, deviceID, c.queue)
	if !c.queue.Post(func() { c.admit(s) }) {
		s.Close()
	}
}

func (c *Collection) invalidate() {
	if !c.state.CompareAndSwap(int32(StateActive), int32(StateInvalid)) {
		return
	}
	c.metrics.RecordInvalidation(c.deviceID)
	c.logger.Warn("device invalidated while registered")

	notify := func() {
		c.unregister()
		c.fireState(StateInvalid)
		c.publish(events.StateChanged{
			DeviceID:  c.deviceID,
			State:     StateInvalid.String(),
			Timestamp: time.Now(),
		})
	}
	if !c.queue.Post(notify) {
		c.unregister()
	}
}

func (c *Collection) unregister() {
	c.unregisterOnce.Do(func() {
		if !c.registered.Swap(false) {
			return
		}
		if err := c.manager.UnregisterNotifications(c); err != nil {
			c.logger.Warn("session notification unregistration failed",
				logger.Error(c.deviceError(err, "unregister")))
		}
	})
}

func (c *Collection) fireState(state State) {
	c.stateMu.Lock()
	fns := make([]func(State), 0, len(c.stateListeners))
	for _, fn := range c.stateListeners {
		fns = append(fns, fn)
	}
	c.stateMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// admit places a freshly created session. Runs on the dispatch queue.
func (c *Collection) admit(s *Session) {
	if c.closing.Load() {
		s.Close()
		return
	}
	c.metrics.RecordNotification(c.deviceID, KindCreated)

	switch s.State() {
	case StateMoved:
		c.addMoved(s)
	case StateExpired, StateInvalid:
		c.logger.Debug("discarding expired session", logger.String("session_id", s.ID()))
		s.Close()
		return
	default:
		c.addSession(s)
	}
	c.changed("session_created")
}

// addSession runs the grouping algorithm: sessions are keyed by app id, then
// grouping key. A new session inherits mute from its destination, never the
// other way round.
func (c *Collection) addSession(s *Session) {
	appID, key := s.AppID(), s.GroupingKey()

	idx := slices.IndexFunc(c.apps, func(a *AppGroup) bool { return a.appID == appID })
	if idx < 0 {
		c.apps = append(c.apps, newAppGroup(s))
	} else {
		app := c.apps[idx]
		if pg := app.find(key); pg != nil {
			c.inheritMute(s, pg.Muted())
			pg.add(s)
		} else {
			c.inheritMute(s, app.Muted())
			app.add(newProcessGroup(key, s))
		}
	}

	c.detach[s] = s.listen(func(_, next State) { c.onLiveTransition(s, next) })
}

func (c *Collection) inheritMute(s *Session, groupMuted bool) {
	if !groupMuted || s.Muted() {
		return
	}
	if err := s.SetMuted(true); err != nil {
		c.logger.Warn("failed to inherit group mute",
			logger.Error(errors.New(err).
				Component("sessions").
				Category(errors.CategoryAudioSession).
				SessionContext(s.ID(), s.ProcessID()).
				Build()),
			logger.String("app_id", s.AppID()))
	}
}

func (c *Collection) addMoved(s *Session) {
	c.moved = append(c.moved, s)
	c.detach[s] = s.listen(func(_, next State) { c.onMovedTransition(s, next) })
}

func (c *Collection) onLiveTransition(s *Session, next State) {
	switch next {
	case StateExpired:
		c.removeLive(s)
		s.Close()
		c.metrics.RecordNotification(c.deviceID, KindExpired)
		c.changed("session_expired")
	case StateMoved:
		c.removeLive(s)
		c.addMoved(s)
		c.metrics.RecordNotification(c.deviceID, KindMoved)
		c.changed("session_moved")
	}
}

func (c *Collection) onMovedTransition(s *Session, next State) {
	switch next {
	case StateActive:
		c.removeMoved(s)
		c.addSession(s)
		c.metrics.RecordNotification(c.deviceID, KindReturned)
		c.changed("session_returned")
	case StateExpired:
		c.removeMoved(s)
		s.Close()
		c.metrics.RecordNotification(c.deviceID, KindExpired)
		c.changed("session_expired")
	}
}

func (c *Collection) stopListening(s *Session) {
	if cancel, ok := c.detach[s]; ok {
		cancel()
		delete(c.detach, s)
	}
}

// removeLive removes s from the tree, dropping groups that become empty.
func (c *Collection) removeLive(s *Session) {
	c.stopListening(s)
	for i, app := range c.apps {
		found, empty := app.remove(s)
		if !found {
			continue
		}
		if empty {
			c.apps = slices.Delete(c.apps, i, i+1)
		}
		return
	}
}

func (c *Collection) removeMoved(s *Session) {
	c.stopListening(s)
	c.moved = slices.DeleteFunc(c.moved, func(m *Session) bool { return m == s })
}

// UnhideSessionsForProcess brings every moved session of pid back into the
// live tree, whatever endpoint the OS reports for it. The work is posted;
// the return value reports whether the queue accepted it.
func (c *Collection) UnhideSessionsForProcess(pid uint32) bool {
	return c.post(func() {
		if c.closing.Load() {
			return
		}

		unhidden := 0
		for _, s := range slices.Clone(c.moved) {
			if s.ProcessID() != pid {
				continue
			}
			c.removeMoved(s)
			if s.Unhide() != StateActive {
				s.Close()
				continue
			}
			c.addSession(s)
			c.metrics.RecordNotification(c.deviceID, KindUnhidden)
			unhidden++
		}

		if unhidden > 0 {
			c.logger.Debug("unhid sessions",
				logger.Uint32("process_id", pid),
				logger.Int("count", unhidden))
			c.changed("sessions_unhidden")
		}
	})
}

// MoveHiddenAppsToDevice asks the OS to route every moved session of appID
// to targetDeviceID. The tree is updated by the notifications that follow.
func (c *Collection) MoveHiddenAppsToDevice(appID, targetDeviceID string) bool {
	return c.post(func() {
		if c.closing.Load() {
			return
		}

		for _, s := range slices.Clone(c.moved) {
			if s.AppID() != appID {
				continue
			}
			if err := s.MoveToDevice(targetDeviceID); err != nil {
				c.logger.Warn("failed to move hidden session",
					logger.Error(errors.New(err).
						Component("sessions").
						Category(errors.CategoryAudioSession).
						SessionContext(s.ID(), s.ProcessID()).
						Context("target_device_id", targetDeviceID).
						Build()),
					logger.String("app_id", appID))
			}
		}
	})
}

// Apps returns the live tree. Call it on the dispatch queue.
func (c *Collection) Apps() []*AppGroup { return slices.Clone(c.apps) }

// Moved returns the sessions hidden from this device. Call it on the dispatch queue.
func (c *Collection) Moved() []*Session { return slices.Clone(c.moved) }

// SetAppMuted mutes or unmutes every session of appID and waits for the
// write to complete.
func (c *Collection) SetAppMuted(ctx context.Context, appID string, muted bool) error {
	if c.queue == nil {
		return dispatch.ErrClosed
	}
	var result error
	err := c.queue.Invoke(ctx, func() {
		idx := slices.IndexFunc(c.apps, func(a *AppGroup) bool { return a.appID == appID })
		if idx < 0 {
			result = errors.Newf("app %s not found on device %s", appID, c.deviceID).
				Component("sessions").
				Category(errors.CategoryNotFound).
				DeviceContext(c.deviceID).
				Build()
			return
		}
		result = c.apps[idx].SetMuted(muted)
	})
	if err != nil {
		return err
	}
	return result
}

// Close unregisters from the OS, then detaches and closes every session on
// the dispatch queue. It never waits for the queue, so it is safe to call
// from a queued task, including one run while the queue drains on Close.
// Idempotent.
func (c *Collection) Close() {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		prev := State(c.state.Swap(int32(StateInvalid)))
		c.unregister()

		teardown := func() {
			for s, cancel := range c.detach {
				cancel()
				delete(c.detach, s)
			}
			for _, app := range c.apps {
				for _, s := range app.Sessions() {
					s.Close()
				}
			}
			for _, s := range c.moved {
				s.Close()
			}
			c.apps = nil
			c.moved = nil

			if prev == StateActive {
				c.fireState(StateInvalid)
			}
			c.stateMu.Lock()
			clear(c.stateListeners)
			c.stateMu.Unlock()
		}

		if c.queue == nil {
			teardown()
			return
		}
		if !c.queue.Post(teardown) {
			// The queue is draining and may be running this very call, so
			// tear down once its goroutine has exited without waiting here.
			select {
			case <-c.queue.Done():
				teardown()
			default:
				go func() {
					<-c.queue.Done()
					teardown()
				}()
			}
		}
		c.logger.Debug("session collection closed")
	})
}

func (c *Collection) post(task dispatch.Task) bool {
	return c.queue != nil && c.queue.Post(task)
}

func (c *Collection) changed(reason string) {
	groups, sessions := 0, 0
	for _, app := range c.apps {
		groups += len(app.groups)
		for _, g := range app.groups {
			sessions += len(g.sessions)
		}
	}
	c.metrics.ObserveTree(c.deviceID, len(c.apps), groups, sessions, len(c.moved))

	c.publish(events.CollectionChanged{
		DeviceID:  c.deviceID,
		Reason:    reason,
		Timestamp: time.Now(),
	})
}

func (c *Collection) publish(event events.Event) {
	if c.events == nil {
		return
	}
	if !c.events.TryPublish(event) {
		c.logger.Trace("event not accepted", logger.String("type", event.EventType()))
	}
}

func (c *Collection) deviceError(err error, operation string) *errors.EnhancedError {
	return errors.New(err).
		Component("sessions").
		Category(errors.CategoryAudioDevice).
		DeviceContext(c.deviceID).
		Context("operation", operation).
		Build()
}
