package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// SessionMetrics tracks the shape of each device's session tree and the
// notifications that changed it. It implements sessions.MetricsRecorder.
type SessionMetrics struct {
	apps          *prometheus.GaugeVec
	processGroups *prometheus.GaugeVec
	sessions      *prometheus.GaugeVec
	moved         *prometheus.GaugeVec
	notifications *prometheus.CounterVec
	invalidations *prometheus.CounterVec
}

// NewSessionMetrics creates the collector and registers it with registry.
func NewSessionMetrics(registry prometheus.Registerer) (*SessionMetrics, error) {
	m := &SessionMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register session metrics: %w", err)
	}
	return m, nil
}

func (m *SessionMetrics) initMetrics() {
	m.apps = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "apps",
		Help:      "Number of application groups in the live tree",
	}, []string{LabelDevice})

	m.processGroups = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "process_groups",
		Help:      "Number of process groups in the live tree",
	}, []string{LabelDevice})

	m.sessions = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "sessions",
		Help:      "Number of sessions in the live tree",
	}, []string{LabelDevice})

	m.moved = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "moved_sessions",
		Help:      "Number of sessions hidden because they render to another device",
	}, []string{LabelDevice})

	m.notifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "notifications_total",
		Help:      "Session lifecycle notifications applied to the tree",
	}, []string{LabelDevice, LabelKind})

	m.invalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "device_invalidations_total",
		Help:      "Devices that were invalidated while registered",
	}, []string{LabelDevice})
}

// RecordNotification counts one applied notification.
func (m *SessionMetrics) RecordNotification(deviceID, kind string) {
	m.notifications.WithLabelValues(deviceID, kind).Inc()
}

// RecordInvalidation counts a device invalidation.
func (m *SessionMetrics) RecordInvalidation(deviceID string) {
	m.invalidations.WithLabelValues(deviceID).Inc()
}

// ObserveTree sets the tree gauges of one device.
func (m *SessionMetrics) ObserveTree(deviceID string, apps, groups, sessions, moved int) {
	m.apps.WithLabelValues(deviceID).Set(float64(apps))
	m.processGroups.WithLabelValues(deviceID).Set(float64(groups))
	m.sessions.WithLabelValues(deviceID).Set(float64(sessions))
	m.moved.WithLabelValues(deviceID).Set(float64(moved))
}

// ForgetDevice drops every series of a removed device.
func (m *SessionMetrics) ForgetDevice(deviceID string) {
	labels := prometheus.Labels{LabelDevice: deviceID}
	m.apps.DeletePartialMatch(labels)
	m.processGroups.DeletePartialMatch(labels)
	m.sessions.DeletePartialMatch(labels)
	m.moved.DeletePartialMatch(labels)
	m.notifications.DeletePartialMatch(labels)
}

// Collect implements the prometheus.Collector interface.
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.apps.Collect(ch)
	m.processGroups.Collect(ch)
	m.sessions.Collect(ch)
	m.moved.Collect(ch)
	m.notifications.Collect(ch)
	m.invalidations.Collect(ch)
}

// Describe implements the prometheus.Collector interface.
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.apps.Describe(ch)
	m.processGroups.Describe(ch)
	m.sessions.Describe(ch)
	m.moved.Describe(ch)
	m.notifications.Describe(ch)
	m.invalidations.Describe(ch)
}
