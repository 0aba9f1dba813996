package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records tracesink counters via OpenTelemetry. A nil *Metrics is
// a valid no-op recorder, so components hold one unconditionally.
type Metrics struct {
	eventsWritten metric.Int64Counter
	rotations     metric.Int64Counter
	evictions     metric.Int64Counter
	applyDefects  metric.Int64Counter
}

// NewMetrics registers the tracesink instruments on the global meter
// provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("tracesink")

	eventsWritten, err := meter.Int64Counter("tracesink.events.written",
		metric.WithDescription("Events written to destinations"))
	if err != nil {
		return nil, err
	}
	rotations, err := meter.Int64Counter("tracesink.rotations",
		metric.WithDescription("File rotations performed"))
	if err != nil {
		return nil, err
	}
	evictions, err := meter.Int64Counter("tracesink.retention.evictions",
		metric.WithDescription("Files deleted by retention policy"))
	if err != nil {
		return nil, err
	}
	applyDefects, err := meter.Int64Counter("tracesink.config.defects",
		metric.WithDescription("Invalid destination descriptors rejected during apply"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		eventsWritten: eventsWritten,
		rotations:     rotations,
		evictions:     evictions,
		applyDefects:  applyDefects,
	}, nil
}

// EventWritten counts one event written to the named destination.
func (m *Metrics) EventWritten(ctx context.Context, destination string) {
	if m == nil {
		return
	}
	m.eventsWritten.Add(ctx, 1, metric.WithAttributes(attribute.String("destination", destination)))
}

// Rotation counts one rotation for the named destination.
func (m *Metrics) Rotation(ctx context.Context, destination string) {
	if m == nil {
		return
	}
	m.rotations.Add(ctx, 1, metric.WithAttributes(attribute.String("destination", destination)))
}

// Eviction counts files deleted by retention.
func (m *Metrics) Eviction(ctx context.Context, destination string, files int64) {
	if m == nil {
		return
	}
	m.evictions.Add(ctx, files, metric.WithAttributes(attribute.String("destination", destination)))
}

// ApplyDefect counts one rejected destination descriptor.
func (m *Metrics) ApplyDefect(ctx context.Context) {
	if m == nil {
		return
	}
	m.applyDefects.Add(ctx, 1)
}
