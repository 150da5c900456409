package events

import (
	"github.com/tphakala/audiosessions/internal/errors"
)

// ErrorsPublisherAdapter lets the errors package publish onto the bus
// without importing it.
type ErrorsPublisherAdapter struct {
	bus *EventBus
}

// NewErrorsPublisherAdapter creates a new adapter
func NewErrorsPublisherAdapter(bus *EventBus) *ErrorsPublisherAdapter {
	return &ErrorsPublisherAdapter{bus: bus}
}

// TryPublish implements errors.EventPublisher. Anything other than an
// enhanced error is rejected so the errors package falls back to inline
// reporting.
func (a *ErrorsPublisherAdapter) TryPublish(event any) bool {
	ee, ok := event.(*errors.EnhancedError)
	if !ok || a.bus == nil {
		return false
	}
	return a.bus.TryPublish(ErrorReported{Err: ee})
}

// TelemetryConsumer forwards ErrorReported events to a telemetry reporter
type TelemetryConsumer struct {
	reporter errors.TelemetryReporter
}

// NewTelemetryConsumer creates a consumer reporting through reporter
func NewTelemetryConsumer(reporter errors.TelemetryReporter) *TelemetryConsumer {
	return &TelemetryConsumer{reporter: reporter}
}

func (c *TelemetryConsumer) Name() string { return "telemetry" }

func (c *TelemetryConsumer) Accepts(eventType string) bool {
	return eventType == TypeErrorReported
}

func (c *TelemetryConsumer) ProcessEvent(event Event) error {
	er, ok := event.(ErrorReported)
	if !ok || er.Err == nil || c.reporter == nil || !c.reporter.IsEnabled() {
		return nil
	}
	c.reporter.ReportError(er.Err)
	return nil
}

// ConsumerFunc adapts a function into a consumer for the given event types
type ConsumerFunc struct {
	name  string
	types []string
	fn    func(Event) error
}

// NewConsumerFunc creates a function-backed consumer. With no types it accepts everything.
func NewConsumerFunc(name string, fn func(Event) error, types ...string) *ConsumerFunc {
	return &ConsumerFunc{name: name, types: types, fn: fn}
}

func (c *ConsumerFunc) Name() string { return c.name }

func (c *ConsumerFunc) Accepts(eventType string) bool {
	if len(c.types) == 0 {
		return true
	}
	for _, t := range c.types {
		if t == eventType {
			return true
		}
	}
	return false
}

func (c *ConsumerFunc) ProcessEvent(event Event) error { return c.fn(event) }
