// Package observability provides metrics and monitoring for the audio session service.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/audiosessions/internal/events"
	"github.com/tphakala/audiosessions/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Sessions *metrics.SessionMetrics
	Dispatch *metrics.DispatchMetrics
	MQTT     *metrics.MQTTMetrics
}

// NewMetrics creates a private registry and registers every collector in it.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}

	sessionMetrics, err := metrics.NewSessionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create session metrics: %w", err)
	}

	dispatchMetrics, err := metrics.NewDispatchMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatch metrics: %w", err)
	}

	mqttMetrics, err := metrics.NewMQTTMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create MQTT metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Sessions: sessionMetrics,
		Dispatch: dispatchMetrics,
		MQTT:     mqttMetrics,
	}, nil
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
}

// EventConsumer returns an event bus consumer that counts delivered tree
// and state changes.
func (m *Metrics) EventConsumer() events.EventConsumer {
	return events.NewConsumerFunc("metrics", func(e events.Event) error {
		switch ev := e.(type) {
		case events.CollectionChanged:
			m.Dispatch.RecordChange(ev.DeviceID, ev.Reason)
		case events.StateChanged:
			m.Dispatch.RecordStateChange(ev.DeviceID, ev.State)
			m.Sessions.ForgetDevice(ev.DeviceID)
		}
		return nil
	}, events.TypeCollectionChanged, events.TypeStateChanged)
}
