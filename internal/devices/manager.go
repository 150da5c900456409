// Package devices owns the set of active audio devices and the session
// collection of each one.
package devices

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/tphakala/audiosessions/internal/audioapi"
	"github.com/tphakala/audiosessions/internal/dispatch"
	"github.com/tphakala/audiosessions/internal/errors"
	"github.com/tphakala/audiosessions/internal/logger"
	"github.com/tphakala/audiosessions/internal/sessions"
)

// Named is implemented by audio devices that carry a friendly name.
type Named interface {
	Name() string
}

// Device is one active endpoint and its session collection.
type Device struct {
	id         string
	name       string
	collection atomic.Pointer[sessions.Collection]
}

func (d *Device) ID() string   { return d.id }
func (d *Device) Name() string { return d.name }

// Collection returns the device's session collection, or nil while Add is
// still constructing it.
func (d *Device) Collection() *sessions.Collection { return d.collection.Load() }

// Config holds the shared collaborators handed to every collection.
type Config struct {
	Queue   *dispatch.Queue
	Logger  logger.Logger
	Metrics sessions.MetricsRecorder
	Events  sessions.EventPublisher
}

// Manager tracks active devices by id. It is the parent resolver for every
// collection it creates, so a collection never holds its device directly.
type Manager struct {
	config Config
	logger logger.Logger

	mu      sync.RWMutex
	devices map[string]*Device
	order   []string
	closed  bool
}

// NewManager creates an empty manager.
func NewManager(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = logger.Global().Module("devices")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global().Module("sessions")
	}
	return &Manager{
		config:  cfg,
		logger:  log,
		devices: make(map[string]*Device),
	}
}

// Add creates the collection for endpoint and starts tracking it. A device
// whose collection is Invalid once built (activation, registration or an
// invalidation seen during enumeration) is returned but not tracked.
func (m *Manager) Add(ctx context.Context, endpoint audioapi.Device) (*Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := endpoint.ID()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.Newf("device manager is closed").
			Component("devices").
			Category(errors.CategoryState).
			DeviceContext(id).
			Build()
	}
	if _, exists := m.devices[id]; exists {
		m.mu.Unlock()
		return nil, errors.Newf("device %s already added", id).
			Component("devices").
			Category(errors.CategoryConflict).
			DeviceContext(id).
			Build()
	}
	d := &Device{id: id, name: id}
	if n, ok := endpoint.(Named); ok && n.Name() != "" {
		d.name = n.Name()
	}
	// Registered before the collection exists so the enumeration inside
	// sessions.New can resolve its parent.
	m.devices[id] = d
	m.order = append(m.order, id)
	m.mu.Unlock()

	c := sessions.New(sessions.Options{
		ParentID: id,
		Resolver: m,
		Device:   endpoint,
		Queue:    m.config.Queue,
		Logger:   m.config.Logger,
		Metrics:  m.config.Metrics,
		Events:   m.config.Events,
	})
	d.collection.Store(c)

	c.OnStateChanged(func(state sessions.State) {
		if state == sessions.StateInvalid {
			m.drop(id, "device collection became invalid, dropping device")
		}
	})
	// The collection may have gone Invalid before the listener existed,
	// during activation or enumeration.
	if c.State() == sessions.StateInvalid {
		m.drop(id, "device collection is invalid after construction, dropping device")
		return d, nil
	}

	m.logger.Info("device added",
		logger.String("device_id", id),
		logger.String("name", d.name),
		logger.String("state", c.State().String()))
	return d, nil
}

func (m *Manager) drop(id, reason string) {
	m.logger.Warn(reason, logger.String("device_id", id))
	if err := m.Remove(id); err != nil && !errors.IsNotFound(err) {
		m.logger.Warn("failed to drop invalid device", logger.Error(err))
	}
}

// Remove closes the device's collection and forgets the device.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	d, ok := m.devices[id]
	if ok {
		delete(m.devices, id)
		m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	}
	m.mu.Unlock()

	if !ok {
		return notFound(id)
	}
	if c := d.Collection(); c != nil {
		c.Close()
	}
	m.logger.Info("device removed", logger.String("device_id", id))
	return nil
}

// Resolve implements sessions.ParentResolver.
func (m *Manager) Resolve(id string) (sessions.Parent, bool) {
	d, ok := m.Get(id)
	if !ok {
		return nil, false
	}
	return d, true
}

// Get returns the device with id.
func (m *Manager) Get(id string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	return d, ok
}

// List returns devices in the order they were added.
func (m *Manager) List() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Device, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.devices[id])
	}
	return out
}

func (m *Manager) collection(id string) (*sessions.Collection, error) {
	d, ok := m.Get(id)
	if !ok || d.Collection() == nil {
		return nil, notFound(id)
	}
	return d.Collection(), nil
}

// DeviceName returns the friendly name of a device, or "" when unknown.
func (m *Manager) DeviceName(id string) string {
	if d, ok := m.Get(id); ok {
		return d.Name()
	}
	return ""
}

// Snapshot returns the session tree of one device.
func (m *Manager) Snapshot(ctx context.Context, id string) (sessions.DeviceSnapshot, error) {
	c, err := m.collection(id)
	if err != nil {
		return sessions.DeviceSnapshot{}, err
	}
	return c.Snapshot(ctx)
}

// SnapshotAll returns the session tree of every device.
func (m *Manager) SnapshotAll(ctx context.Context) ([]sessions.DeviceSnapshot, error) {
	list := m.List()
	out := make([]sessions.DeviceSnapshot, 0, len(list))
	for _, d := range list {
		c := d.Collection()
		if c == nil {
			continue
		}
		snap, err := c.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// UnhideSessionsForProcess surfaces the moved sessions of pid on deviceID.
func (m *Manager) UnhideSessionsForProcess(deviceID string, pid uint32) error {
	c, err := m.collection(deviceID)
	if err != nil {
		return err
	}
	if !c.UnhideSessionsForProcess(pid) {
		return dispatch.ErrClosed
	}
	return nil
}

// MoveHiddenAppsToDevice routes the sessions of appID hidden from
// sourceID to targetID. Both devices must be known.
func (m *Manager) MoveHiddenAppsToDevice(sourceID, appID, targetID string) error {
	c, err := m.collection(sourceID)
	if err != nil {
		return err
	}
	if _, ok := m.Get(targetID); !ok {
		return notFound(targetID)
	}
	if !c.MoveHiddenAppsToDevice(appID, targetID) {
		return dispatch.ErrClosed
	}
	return nil
}

// SetAppMuted mutes or unmutes an app on one device.
func (m *Manager) SetAppMuted(ctx context.Context, deviceID, appID string, muted bool) error {
	c, err := m.collection(deviceID)
	if err != nil {
		return err
	}
	return c.SetAppMuted(ctx, appID, muted)
}

// Close closes every collection. Further Add calls fail.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	list := make([]*Device, 0, len(m.order))
	for _, id := range m.order {
		list = append(list, m.devices[id])
	}
	clear(m.devices)
	m.order = nil
	m.mu.Unlock()

	for _, d := range list {
		if c := d.Collection(); c != nil {
			c.Close()
		}
	}
	m.logger.Debug("device manager closed", logger.Int("devices", len(list)))
}

func notFound(id string) error {
	return errors.Newf("device %s not found", id).
		Component("devices").
		Category(errors.CategoryNotFound).
		DeviceContext(id).
		Build()
}
