package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiosessions/internal/audioapi"
)

type recordingSink struct {
	mu       sync.Mutex
	controls []audioapi.SessionControl
}

func (r *recordingSink) OnSessionCreated(c audioapi.SessionControl) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controls = append(r.controls, c)
}

func TestDevice_CreateSessionNotifiesRegisteredSinks(t *testing.T) {
	t.Parallel()

	b := NewBackend()
	dev := b.AddDevice("spk", "Speakers")

	mgr, err := dev.Activate()
	require.NoError(t, err)

	sink := &recordingSink{}
	require.NoError(t, mgr.RegisterNotifications(sink))

	s := dev.CreateSession(SessionSpec{ProcessID: 10, AppID: "notepad.exe", GroupingKey: "proc1"})
	require.Len(t, sink.controls, 1)
	assert.Same(t, s, sink.controls[0])
	assert.Equal(t, "spk", s.EndpointID())
	assert.Equal(t, "notepad.exe", s.ExeName())

	require.NoError(t, mgr.UnregisterNotifications(sink))
	dev.CreateSession(SessionSpec{AppID: "notepad.exe"})
	assert.Len(t, sink.controls, 1)

	require.Error(t, mgr.UnregisterNotifications(sink))
}

func TestDevice_EnumerateReturnsSeededSessions(t *testing.T) {
	t.Parallel()

	dev := NewBackend().AddDevice("spk", "Speakers")
	dev.Seed(SessionSpec{AppID: "a.exe"})
	dev.Seed(SessionSpec{AppID: "b.exe"})

	mgr, err := dev.Activate()
	require.NoError(t, err)

	controls, err := mgr.Enumerate()
	require.NoError(t, err)
	require.Len(t, controls, 2)
	assert.Equal(t, "a.exe", controls[0].AppID())
	assert.NotEmpty(t, controls[0].GroupingKey())
}

func TestDevice_Invalidate(t *testing.T) {
	t.Parallel()

	b := NewBackend()
	dev := b.AddDevice("spk", "Speakers")
	mgr, err := dev.Activate()
	require.NoError(t, err)
	s := dev.Seed(SessionSpec{AppID: "a.exe"})

	b.RemoveDevice("spk")

	_, err = s.ID()
	require.ErrorIs(t, err, audioapi.ErrDeviceInvalidated)
	require.ErrorIs(t, mgr.RegisterNotifications(&recordingSink{}), audioapi.ErrDeviceInvalidated)

	_, err = dev.Activate()
	require.ErrorIs(t, err, audioapi.ErrActivation)
	assert.Empty(t, b.Devices())
}

func TestDevice_FailActivation(t *testing.T) {
	t.Parallel()

	dev := NewBackend().AddDevice("spk", "Speakers")
	dev.FailActivation(assert.AnError)

	_, err := dev.Activate()
	require.ErrorIs(t, err, audioapi.ErrActivation)
	require.ErrorIs(t, err, assert.AnError)
}

func TestSession_SubscribeAndMove(t *testing.T) {
	t.Parallel()

	b := NewBackend()
	spk := b.AddDevice("spk", "Speakers")
	b.AddDevice("hdmi", "HDMI")

	s := spk.Seed(SessionSpec{AppID: "game.exe"})

	calls := 0
	cancel := s.Subscribe(func() { calls++ })

	require.NoError(t, s.MoveToDevice("hdmi"))
	assert.Equal(t, "hdmi", s.EndpointID())
	assert.Equal(t, 1, calls)

	require.ErrorIs(t, s.MoveToDevice("nowhere"), ErrUnknownDevice)

	s.Expire()
	assert.Equal(t, audioapi.RawStateExpired, s.RawState())
	assert.Equal(t, 2, calls)

	cancel()
	s.SetState(audioapi.RawStateActive)
	assert.Equal(t, 2, calls)
}

func TestSession_ReleaseDropsSubscriptions(t *testing.T) {
	t.Parallel()

	s := NewBackend().AddDevice("spk", "Speakers").Seed(SessionSpec{AppID: "a.exe", Muted: true})
	s.Subscribe(func() {})
	require.Equal(t, 1, s.Subscribers())

	s.Release()
	s.Release()
	assert.Equal(t, 0, s.Subscribers())
	assert.True(t, s.Released())
	assert.True(t, s.Muted())
}

func TestSession_SystemSounds(t *testing.T) {
	t.Parallel()

	s := NewBackend().AddDevice("spk", "Speakers").Seed(SessionSpec{SystemSounds: true, AppID: "ignored"})
	assert.True(t, s.IsSystemSounds())
	assert.Equal(t, audioapi.SystemSoundsAppID, s.AppID())
	assert.Equal(t, "System Sounds", s.ExeName())
}
