package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics tracks the dispatch queue and the event bus behind it.
type DispatchMetrics struct {
	depth       *prometheus.GaugeVec
	events      *prometheus.CounterVec
	stateEvents *prometheus.CounterVec
}

// NewDispatchMetrics creates the collector and registers it with registry.
func NewDispatchMetrics(registry prometheus.Registerer) (*DispatchMetrics, error) {
	m := &DispatchMetrics{
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "dispatch_queue_depth",
			Help:      "Tasks waiting on the dispatch queue",
		}, []string{LabelQueue}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "collection_changes_total",
			Help:      "Tree change events delivered to consumers",
		}, []string{LabelDevice, LabelReason}),
		stateEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "collection_state_changes_total",
			Help:      "Collection state change events delivered to consumers",
		}, []string{LabelDevice, "state"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register dispatch metrics: %w", err)
	}
	return m, nil
}

// DepthObserver returns a callback for dispatch.WithDepthObserver.
func (m *DispatchMetrics) DepthObserver(queue string) func(depth int) {
	g := m.depth.WithLabelValues(queue)
	return func(depth int) {
		g.Set(float64(depth))
	}
}

// RecordChange counts a delivered tree change.
func (m *DispatchMetrics) RecordChange(deviceID, reason string) {
	m.events.WithLabelValues(deviceID, reason).Inc()
}

// RecordStateChange counts a delivered collection state change.
func (m *DispatchMetrics) RecordStateChange(deviceID, state string) {
	m.stateEvents.WithLabelValues(deviceID, state).Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *DispatchMetrics) Collect(ch chan<- prometheus.Metric) {
	m.depth.Collect(ch)
	m.events.Collect(ch)
	m.stateEvents.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *DispatchMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.depth.Describe(ch)
	m.events.Describe(ch)
	m.stateEvents.Describe(ch)
}
