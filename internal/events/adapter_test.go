package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiosessions/internal/errors"
)

type recordingReporter struct {
	mu       sync.Mutex
	reported []*errors.EnhancedError
}

func (r *recordingReporter) IsEnabled() bool { return true }

func (r *recordingReporter) ReportError(ee *errors.EnhancedError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reported = append(r.reported, ee)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reported)
}

func TestErrorsPublisherAdapter_RoutesToTelemetryConsumer(t *testing.T) {
	t.Parallel()

	eb := newTestBus(t, nil)
	reporter := &recordingReporter{}
	require.NoError(t, eb.RegisterConsumer(NewTelemetryConsumer(reporter)))

	adapter := NewErrorsPublisherAdapter(eb)
	ee := errors.New(errors.NewStd("register failed")).Category(errors.CategoryNotification).Build()

	assert.True(t, adapter.TryPublish(ee))
	assert.False(t, adapter.TryPublish("not an error"))

	require.Eventually(t, func() bool { return reporter.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestConsumerFunc_Accepts(t *testing.T) {
	t.Parallel()

	all := NewConsumerFunc("all", func(Event) error { return nil })
	assert.True(t, all.Accepts(TypeCollectionChanged))

	some := NewConsumerFunc("some", func(Event) error { return nil }, TypeStateChanged)
	assert.True(t, some.Accepts(TypeStateChanged))
	assert.False(t, some.Accepts(TypeCollectionChanged))
	assert.Equal(t, "some", some.Name())
}
