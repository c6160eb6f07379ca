package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	workflows     metric.Int64Counter
	completions   metric.Int64Counter
	gatewayErrors metric.Int64Counter
	notifications metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "taxfolio-billing"
	}
	meter := provider.Meter(name)

	workflows, err := meter.Int64Counter("billing_workflow_total")
	if err != nil {
		return nil, err
	}
	completions, err := meter.Int64Counter("billing_payment_completions_total")
	if err != nil {
		return nil, err
	}
	gatewayErrors, err := meter.Int64Counter("billing_gateway_errors_total")
	if err != nil {
		return nil, err
	}
	notifications, err := meter.Int64Counter("billing_notifications_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		workflows:     workflows,
		completions:   completions,
		gatewayErrors: gatewayErrors,
		notifications: notifications,
	}, nil
}

// RecordWorkflow increments workflow dispatch counts.
func (m *Metrics) RecordWorkflow(ctx context.Context, action, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("action", strings.TrimSpace(action)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.workflows.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCompletion increments payment completion counts.
func (m *Metrics) RecordCompletion(ctx context.Context, gateway, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("gateway", strings.TrimSpace(gateway)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.completions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordGatewayError increments gateway failure counts.
func (m *Metrics) RecordGatewayError(ctx context.Context, gateway, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("gateway", strings.TrimSpace(gateway)),
		attribute.String("operation", strings.TrimSpace(operation)),
	)
	m.gatewayErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordNotification increments notification dispatch counts.
func (m *Metrics) RecordNotification(ctx context.Context, kind, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("kind", strings.TrimSpace(kind)),
		attribute.String("result", strings.TrimSpace(result)),
	)
	m.notifications.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"action":    {},
	"result":    {},
	"gateway":   {},
	"operation": {},
	"kind":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
