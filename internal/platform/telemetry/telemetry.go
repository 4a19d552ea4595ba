// Package telemetry implements in-process observability for the booking
// service: HTTP request counters and latency histograms, booking outcome
// counters, span records for request tracing, and a Prometheus text
// exposition endpoint. It stays on the standard library; the exposition
// format is the only contract with the outside world.
package telemetry

import (
	"context"
	"sync"
)

// TelemetryConfig configures the provider. The zero value is usable: both
// metrics and tracing are on, and the span buffer gets its default size.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// DisableMetrics and DisableTracing turn the respective middleware
	// into a pass-through.
	DisableMetrics bool
	DisableTracing bool

	// SpanLimit caps the number of retained span records. Older spans are
	// overwritten once the buffer is full. Defaults to 1024.
	SpanLimit int
}

func (c *TelemetryConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "medbook-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SpanLimit <= 0 {
		c.SpanLimit = 1024
	}
}

// TelemetryProvider owns all observability state for one process.
type TelemetryProvider struct {
	cfg   TelemetryConfig
	reg   *registry
	spans *spanBuffer

	closeOnce sync.Once
}

// NewTelemetryProvider builds a provider from cfg, filling in defaults.
func NewTelemetryProvider(cfg TelemetryConfig) *TelemetryProvider {
	cfg.applyDefaults()
	return &TelemetryProvider{
		cfg:   cfg,
		reg:   newRegistry(),
		spans: newSpanBuffer(cfg.SpanLimit),
	}
}

// Shutdown releases provider resources. Metrics live in memory only, so
// there is nothing to flush; the method exists so callers can defer it
// symmetrically with providers that do export.
func (tp *TelemetryProvider) Shutdown(_ context.Context) error {
	tp.closeOnce.Do(func() {})
	return nil
}

// ServiceLabels returns the identifying attributes stamped on exported
// telemetry.
func (tp *TelemetryProvider) ServiceLabels() map[string]string {
	return map[string]string{
		"service":     tp.cfg.ServiceName,
		"version":     tp.cfg.ServiceVersion,
		"environment": tp.cfg.Environment,
	}
}

// BookingOperationCounter counts one booking engine operation with its
// outcome (booked, conflict, transient, error, ...).
func (tp *TelemetryProvider) BookingOperationCounter(operation, outcome string) {
	tp.reg.addCounter(series(metricBookingOps,
		"operation", operation, "outcome", outcome), 1)
}

// BookingOutcome records the result of a booking attempt. Satisfies the
// booking service's Metrics interface.
func (tp *TelemetryProvider) BookingOutcome(outcome string) {
	tp.BookingOperationCounter("book", outcome)
}
