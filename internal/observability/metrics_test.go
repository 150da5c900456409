package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiosessions/internal/events"
)

func TestMetrics_HandlerExposesSessionGauges(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Sessions.ObserveTree("spk", 2, 3, 5, 1)
	m.Sessions.RecordNotification("spk", "created")
	m.Dispatch.DepthObserver("main")(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `audiosessions_sessions{device="spk"} 5`)
	assert.Contains(t, body, `audiosessions_moved_sessions{device="spk"} 1`)
	assert.Contains(t, body, `audiosessions_notifications_total{device="spk",kind="created"} 1`)
	assert.Contains(t, body, `audiosessions_dispatch_queue_depth{queue="main"} 4`)
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestMetrics_EventConsumer(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Sessions.ObserveTree("spk", 1, 1, 1, 0)

	c := m.EventConsumer()
	assert.True(t, c.Accepts(events.TypeCollectionChanged))
	assert.False(t, c.Accepts(events.TypeErrorReported))

	require.NoError(t, c.ProcessEvent(events.CollectionChanged{DeviceID: "spk", Reason: "session_created", Timestamp: time.Now()}))
	require.NoError(t, c.ProcessEvent(events.StateChanged{DeviceID: "spk", State: "invalid", Timestamp: time.Now()}))

	count, err := testutil.GatherAndCount(m.Registry(), "audiosessions_collection_changes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(m.Registry(), "audiosessions_sessions")
	require.NoError(t, err)
	assert.Zero(t, count, "invalidated devices drop their gauges")
}
