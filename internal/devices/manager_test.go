package devices

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiosessions/internal/audioapi/memory"
	"github.com/tphakala/audiosessions/internal/dispatch"
	"github.com/tphakala/audiosessions/internal/errors"
	"github.com/tphakala/audiosessions/internal/logger"
	"github.com/tphakala/audiosessions/internal/sessions"
	"github.com/tphakala/audiosessions/internal/testutil"
)

func newTestManager(t *testing.T) (*Manager, *memory.Backend, *dispatch.Queue) {
	t.Helper()

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
	q := dispatch.New(dispatch.WithName(t.Name()), dispatch.WithLogger(log))
	m := NewManager(Config{Queue: q, Logger: log})

	t.Cleanup(q.Close)
	t.Cleanup(m.Close)
	return m, memory.NewBackend(), q
}

func TestManager_AddAndList(t *testing.T) {
	t.Parallel()

	m, b, _ := newTestManager(t)
	spk := b.AddDevice("spk", "Speakers")
	spk.Seed(memory.SessionSpec{AppID: "a.exe"})

	d, err := m.Add(t.Context(), spk)
	require.NoError(t, err)
	assert.Equal(t, "spk", d.ID())
	assert.Equal(t, "Speakers", d.Name())
	require.NotNil(t, d.Collection())
	assert.Equal(t, sessions.StateActive, d.Collection().State())

	_, err = m.Add(t.Context(), b.AddDevice("hdmi", "HDMI"))
	require.NoError(t, err)

	_, err = m.Add(t.Context(), spk)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, "spk", list[0].ID())
	assert.Equal(t, "hdmi", list[1].ID())

	snap, err := m.Snapshot(t.Context(), "spk")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.SessionCount())

	all, err := m.SnapshotAll(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestManager_ResolveIsWeak(t *testing.T) {
	t.Parallel()

	m, b, q := newTestManager(t)
	spk := b.AddDevice("spk", "Speakers")
	_, err := m.Add(t.Context(), spk)
	require.NoError(t, err)

	p, ok := m.Resolve("spk")
	require.True(t, ok)
	assert.Equal(t, "spk", p.ID())

	require.NoError(t, m.Remove("spk"))
	require.NoError(t, q.Flush(t.Context()))

	_, ok = m.Resolve("spk")
	assert.False(t, ok)
	assert.Equal(t, 0, spk.Sinks())

	require.True(t, errors.IsNotFound(m.Remove("spk")))
	_, err = m.Snapshot(t.Context(), "spk")
	assert.True(t, errors.IsNotFound(err))
}

func TestManager_DropsInvalidatedDevice(t *testing.T) {
	t.Parallel()

	m, b, q := newTestManager(t)
	spk := b.AddDevice("spk", "Speakers")
	_, err := m.Add(t.Context(), spk)
	require.NoError(t, err)

	b.RemoveDevice("spk")
	spk.CreateSession(memory.SessionSpec{AppID: "late.exe"})
	require.NoError(t, q.Flush(t.Context()))

	_, ok := m.Get("spk")
	assert.False(t, ok)
	assert.Empty(t, m.List())
}

func TestManager_MoveHiddenAppsValidatesTarget(t *testing.T) {
	t.Parallel()

	m, b, q := newTestManager(t)
	spk := b.AddDevice("spk", "Speakers")
	hdmi := b.AddDevice("hdmi", "HDMI")
	_, err := m.Add(t.Context(), spk)
	require.NoError(t, err)
	_, err = m.Add(t.Context(), hdmi)
	require.NoError(t, err)

	// Rendering to hdmi: moved on spk, live on hdmi.
	spk.CreateSession(memory.SessionSpec{ProcessID: 9, AppID: "game.exe", EndpointID: "hdmi"})

	err = m.MoveHiddenAppsToDevice("spk", "game.exe", "usb")
	require.True(t, errors.IsNotFound(err))

	require.NoError(t, m.MoveHiddenAppsToDevice("spk", "game.exe", "spk"))
	require.NoError(t, q.Flush(t.Context()))

	snap, err := m.Snapshot(t.Context(), "spk")
	require.NoError(t, err)
	_, ok := snap.FindApp("game.exe")
	assert.True(t, ok)
	assert.Empty(t, snap.Moved)
}

func TestManager_UnhideAndMute(t *testing.T) {
	t.Parallel()

	m, b, _ := newTestManager(t)
	spk := b.AddDevice("spk", "Speakers")
	b.AddDevice("hdmi", "HDMI")
	_, err := m.Add(t.Context(), spk)
	require.NoError(t, err)

	s := spk.CreateSession(memory.SessionSpec{ProcessID: 9, AppID: "game.exe", EndpointID: "hdmi"})

	require.NoError(t, m.UnhideSessionsForProcess("spk", 9))
	require.NoError(t, m.SetAppMuted(t.Context(), "spk", "game.exe", true))
	assert.True(t, s.Muted())

	require.True(t, errors.IsNotFound(m.UnhideSessionsForProcess("nowhere", 9)))
}

func TestManager_CloseRejectsAdd(t *testing.T) {
	t.Parallel()

	m, b, q := newTestManager(t)
	spk := b.AddDevice("spk", "Speakers")
	_, err := m.Add(t.Context(), spk)
	require.NoError(t, err)

	m.Close()
	require.NoError(t, q.Flush(t.Context()))
	assert.Equal(t, 0, spk.Sinks())

	_, err = m.Add(t.Context(), b.AddDevice("hdmi", "HDMI"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
}

func TestStaticEnumerator(t *testing.T) {
	t.Parallel()

	e := StaticEnumerator{{ID: "spk", Name: "Speakers", Kind: KindPlayback, Default: true}}
	got, err := e.Endpoints(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []Endpoint(e), got)
}

func TestDecodeDeviceID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hw:0,0", decodeDeviceID("68773a302c30"))
	assert.Equal(t, "hw:0,0", decodeDeviceID("68773a302c300000"))
	assert.Equal(t, "zz", decodeDeviceID("zz"))
	assert.Equal(t, "0001", decodeDeviceID("0001"))
}

func TestManager_DoesNotTrackDeviceInvalidAtAdd(t *testing.T) {
	t.Parallel()

	m, b, _ := newTestManager(t)
	broken := b.AddDevice("usb", "USB Headset")
	broken.FailActivation(assert.AnError)
	unregistered := b.AddDevice("bt", "Bluetooth")
	unregistered.FailRegistration(assert.AnError)

	d, err := m.Add(t.Context(), broken)
	require.NoError(t, err)
	assert.Equal(t, sessions.StateInvalid, d.Collection().State())

	_, err = m.Add(t.Context(), unregistered)
	require.NoError(t, err)

	_, ok := m.Get("usb")
	assert.False(t, ok)
	_, ok = m.Get("bt")
	assert.False(t, ok)
	assert.Empty(t, m.List())
}

func TestManager_InvalidationDuringQueueClose(t *testing.T) {
	t.Parallel()

	m, b, q := newTestManager(t)
	spk := b.AddDevice("spk", "Speakers")
	live := spk.Seed(memory.SessionSpec{AppID: "a.exe"})
	_, err := m.Add(t.Context(), spk)
	require.NoError(t, err)
	require.NoError(t, q.Flush(t.Context()))

	release := make(chan struct{})
	require.True(t, q.Post(func() { <-release }))

	// the id probe fails and queues the invalid-state notification
	spk.Invalidate()
	spk.CreateSession(memory.SessionSpec{AppID: "late.exe"})

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	require.Eventually(t, func() bool { return !q.Post(func() {}) }, time.Second, time.Millisecond)
	close(release)

	testutil.WaitForChannel(t, closed, testutil.DefaultTestTimeout, "queue close did not return")
	assert.Empty(t, m.List())
	assert.Eventually(t, live.Released, time.Second, 5*time.Millisecond)
}
