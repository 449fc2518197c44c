package otel

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	_ Metrics = (*Exporter)(nil)
	_ Metrics = (*NoOpExporter)(nil)
)

// NoOpExporter hands out a meter whose instruments discard every recording.
// It is used when export is off so callers never check for a nil meter.
type NoOpExporter struct {
	provider noop.MeterProvider
}

func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{provider: noop.NewMeterProvider()}
}

func (e *NoOpExporter) Meter() metric.Meter { return e.provider.Meter(serviceName) }

func (e *NoOpExporter) Close(context.Context) error { return nil }
