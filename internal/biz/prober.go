package biz

import (
	"context"
)

// Prober performs one liveness probe against a remote service. Implementations
// live in the data layer (HTTP GET, Redis PING).
type Prober interface {
	// Probe returns nil when the service answered and looks healthy.
	Probe(ctx context.Context) error
}

// ProberFactory builds a Prober for a configured service. An unsupported
// service type yields an error listing the valid values.
type ProberFactory interface {
	New(cfg ServiceConfig) (Prober, error)
}

// EventRecorder persists breaker and service transitions for the history
// views. Implementations must never block or fail a health check.
type EventRecorder interface {
	// RecordBreakerEvent stores one circuit breaker state transition.
	RecordBreakerEvent(ctx context.Context, service, fromState, toState string)

	// RecordServiceEvent stores one registry status transition.
	RecordServiceEvent(ctx context.Context, service, fromStatus, toStatus, reason string)
}

// StatusListener observes registry status transitions. Listeners are invoked
// outside the registry lock; a panicking listener does not affect others.
type StatusListener interface {
	OnStatusChange(service string, from, to ServiceStatus)
}

// StatusListenerFunc adapts a function to the StatusListener interface.
type StatusListenerFunc func(service string, from, to ServiceStatus)

// OnStatusChange implements StatusListener.
func (f StatusListenerFunc) OnStatusChange(service string, from, to ServiceStatus) {
	f(service, from, to)
}

// NopEventRecorder discards all events. Used when MySQL is not configured.
type NopEventRecorder struct{}

// RecordBreakerEvent implements EventRecorder.
func (NopEventRecorder) RecordBreakerEvent(context.Context, string, string, string) {}

// RecordServiceEvent implements EventRecorder.
func (NopEventRecorder) RecordServiceEvent(context.Context, string, string, string, string) {}

// SummaryCache caches status summaries for the hot read path. Implementations
// live in the data layer.
type SummaryCache interface {
	Get() (*Summary, bool)
	Set(s *Summary)
}
