package sessions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiosessions/internal/audioapi"
	"github.com/tphakala/audiosessions/internal/audioapi/memory"
)

func TestSession_ClassifiesRawState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	tests := []struct {
		name string
		spec memory.SessionSpec
		want State
	}{
		{"rendering here", memory.SessionSpec{AppID: "a.exe"}, StateActive},
		{"inactive still counts as here", memory.SessionSpec{AppID: "a.exe", State: audioapi.RawStateInactive}, StateActive},
		{"other endpoint", memory.SessionSpec{AppID: "a.exe", EndpointID: "hdmi"}, StateMoved},
		{"expired wins over moved", memory.SessionSpec{AppID: "a.exe", EndpointID: "hdmi", State: audioapi.RawStateExpired}, StateExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			control := f.speaker.Seed(tt.spec)
			s := newSession(control, control.InstanceID(), "spk", f.queue)
			t.Cleanup(s.Close)
			assert.Equal(t, tt.want, s.State())
		})
	}
}

func TestSession_TransitionsFireOnQueue(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	control := f.speaker.Seed(memory.SessionSpec{AppID: "a.exe"})
	s := newSession(control, control.InstanceID(), "spk", f.queue)
	t.Cleanup(s.Close)

	type transition struct{ from, to State }
	var got []transition
	cancel := s.OnStateChanged(func(old, next State) {
		got = append(got, transition{old, next})
	})

	control.SetEndpoint("hdmi")
	require.NoError(t, f.queue.Flush(t.Context()))
	control.SetEndpoint("spk")
	require.NoError(t, f.queue.Flush(t.Context()))
	control.SetState(audioapi.RawStateInactive)
	require.NoError(t, f.queue.Flush(t.Context()))

	assert.Equal(t, []transition{{StateActive, StateMoved}, {StateMoved, StateActive}}, got)

	cancel()
	control.Expire()
	require.NoError(t, f.queue.Flush(t.Context()))
	assert.Len(t, got, 2)
	assert.Equal(t, StateExpired, s.State())
}

func TestSession_UnhideFollowsCurrentEndpoint(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	control := f.speaker.Seed(memory.SessionSpec{AppID: "a.exe", EndpointID: "hdmi"})
	s := newSession(control, control.InstanceID(), "spk", f.queue)
	t.Cleanup(s.Close)
	require.Equal(t, StateMoved, s.State())

	var state State
	require.NoError(t, f.queue.Invoke(t.Context(), func() { state = s.Unhide() }))
	assert.Equal(t, StateActive, state)

	control.SetEndpoint("spk")
	require.NoError(t, f.queue.Flush(t.Context()))
	assert.Equal(t, StateActive, s.State())
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	control := f.speaker.Seed(memory.SessionSpec{AppID: "a.exe"})
	s := newSession(control, control.InstanceID(), "spk", f.queue)
	require.Equal(t, 1, control.Subscribers())

	s.Close()
	s.Close()

	assert.Equal(t, StateInvalid, s.State())
	assert.Zero(t, control.Subscribers())
	assert.True(t, control.Released())

	control.SetEndpoint("hdmi")
	require.NoError(t, f.queue.Flush(t.Context()))
	assert.Equal(t, StateInvalid, s.State())
}

func TestSession_MuteWritesThrough(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	control := f.speaker.Seed(memory.SessionSpec{AppID: "a.exe"})
	s := newSession(control, control.InstanceID(), "spk", f.queue)
	t.Cleanup(s.Close)

	require.NoError(t, s.SetMuted(true))
	assert.True(t, control.Muted())
	assert.True(t, s.Muted())
}

func TestProcessGroup_RemoveReportsEmptiness(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c1 := f.speaker.Seed(memory.SessionSpec{AppID: "a.exe", GroupingKey: "k"})
	c2 := f.speaker.Seed(memory.SessionSpec{AppID: "a.exe", GroupingKey: "k"})
	s1 := newSession(c1, c1.InstanceID(), "spk", f.queue)
	s2 := newSession(c2, c2.InstanceID(), "spk", f.queue)
	t.Cleanup(s1.Close)
	t.Cleanup(s2.Close)

	app := newAppGroup(s1)
	app.find("k").add(s2)

	found, empty := app.remove(s1)
	assert.True(t, found)
	assert.False(t, empty)
	require.Len(t, app.ProcessGroups(), 1)

	found, empty = app.remove(s1)
	assert.False(t, found)
	assert.False(t, empty)

	found, empty = app.remove(s2)
	assert.True(t, found)
	assert.True(t, empty)
	assert.Empty(t, app.ProcessGroups())
}
