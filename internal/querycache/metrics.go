package querycache

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type instruments struct {
	reads     metric.Int64Counter
	fetches   metric.Int64Counter
	duration  metric.Float64Histogram
	evictions metric.Int64Counter
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("querycache")
	}

	reads, err := meter.Int64Counter(
		"pulsemetric_cache_reads_total",
		metric.WithDescription("Cache reads by outcome (hit, stale, miss)"),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating reads counter: %w", err)
	}

	fetches, err := meter.Int64Counter(
		"pulsemetric_cache_fetches_total",
		metric.WithDescription("Backend fetches by outcome (ok, error, superseded)"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetches counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"pulsemetric_cache_fetch_duration_seconds",
		metric.WithDescription("Backend fetch duration including retries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetch duration histogram: %w", err)
	}

	evictions, err := meter.Int64Counter(
		"pulsemetric_cache_evictions_total",
		metric.WithDescription("Entries removed by the garbage collector"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating evictions counter: %w", err)
	}

	return &instruments{
		reads:     reads,
		fetches:   fetches,
		duration:  duration,
		evictions: evictions,
	}, nil
}

func (i *instruments) read(k Key, outcome string) {
	i.reads.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("resource", k.Resource()),
		attribute.String("outcome", outcome),
	))
}

func (i *instruments) fetched(k Key, outcome string, seconds float64) {
	opt := metric.WithAttributes(
		attribute.String("resource", k.Resource()),
		attribute.String("outcome", outcome),
	)
	i.fetches.Add(context.Background(), 1, opt)
	i.duration.Record(context.Background(), seconds, opt)
}
