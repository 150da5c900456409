package errors

import (
	"sync"
	"sync/atomic"
)

// hasActiveReporting lets Build skip component detection when nobody
// consumes errors.
var hasActiveReporting atomic.Bool

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// EventPublisher lets this package publish error events without importing
// the events package.
type EventPublisher interface {
	TryPublish(event any) bool
}

// ErrorHook is called synchronously for every built error while reporting is active.
type ErrorHook func(ee *EnhancedError)

var (
	reporterMu        sync.RWMutex
	telemetryReporter TelemetryReporter
	errorHooks        []ErrorHook

	eventPublisher atomic.Pointer[EventPublisher]
)

// SetTelemetryReporter sets the global telemetry reporter. Pass nil to disable.
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	telemetryReporter = reporter
	reporterMu.Unlock()
	updateActiveReporting()
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return telemetryReporter
}

// AddErrorHook registers a hook
func AddErrorHook(hook ErrorHook) {
	if hook == nil {
		return
	}
	reporterMu.Lock()
	errorHooks = append(errorHooks, hook)
	reporterMu.Unlock()
	updateActiveReporting()
}

// ClearErrorHooks removes all hooks
func ClearErrorHooks() {
	reporterMu.Lock()
	errorHooks = nil
	reporterMu.Unlock()
	updateActiveReporting()
}

// SetEventPublisher routes reported errors through an event bus instead of
// calling the telemetry reporter inline. Pass nil to detach.
func SetEventPublisher(publisher EventPublisher) {
	if publisher == nil {
		eventPublisher.Store(nil)
	} else {
		eventPublisher.Store(&publisher)
	}
	updateActiveReporting()
}

func updateActiveReporting() {
	reporterMu.RLock()
	active := (telemetryReporter != nil && telemetryReporter.IsEnabled()) || len(errorHooks) > 0
	reporterMu.RUnlock()
	hasActiveReporting.Store(active || eventPublisher.Load() != nil)
}

// reportToTelemetry runs hooks, then hands the error to the event bus when
// one is attached, otherwise to the reporter directly.
func reportToTelemetry(ee *EnhancedError) {
	reporterMu.RLock()
	hooks := errorHooks
	reporter := telemetryReporter
	reporterMu.RUnlock()

	for _, hook := range hooks {
		hook(ee)
	}

	if p := eventPublisher.Load(); p != nil && *p != nil {
		if (*p).TryPublish(ee) {
			return
		}
	}

	if reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}
