package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "pulsemetric"

// Config selects and configures the OTLP exporter.
type Config struct {
	Enabled bool
	// Endpoint is the collector's gRPC host:port.
	Endpoint string
	Insecure bool
	// ServiceVersion is reported as the service.version resource attribute.
	ServiceVersion string
}

// ErrDisabled is returned by NewExporter when exporting is not configured.
var ErrDisabled = errors.New("OTEL exporter is disabled or endpoint not configured")

// Metrics hands out the meter the rest of the process records into.
type Metrics interface {
	Meter() metric.Meter
	Close(ctx context.Context) error
}

// Exporter pushes metrics to an OTEL Collector over gRPC.
type Exporter struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter
}

// NewExporter creates an OTLP metrics exporter and installs it as the
// global meter provider.
func NewExporter(ctx context.Context, cfg Config) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, ErrDisabled
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	version := cfg.ServiceVersion
	if version == "" {
		version = "dev"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return &Exporter{
		provider: provider,
		meter:    provider.Meter(serviceName),
	}, nil
}

func (e *Exporter) Meter() metric.Meter {
	return e.meter
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	return e.provider.Shutdown(ctx)
}

// New returns an Exporter when cfg enables one, and a NoOpExporter otherwise
// or when the exporter cannot be created.
func New(ctx context.Context, cfg Config, log logrus.FieldLogger) Metrics {
	if !cfg.Enabled {
		return NewNoOpExporter()
	}
	exp, err := NewExporter(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("metrics export disabled")
		return NewNoOpExporter()
	}
	log.WithField("endpoint", cfg.Endpoint).Info("exporting metrics over OTLP")
	return exp
}
