package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

const metricExportInterval = 30 * time.Second

// InitMetrics installs a global meter provider. With an endpoint, metrics are
// pushed over OTLP/HTTP every 30s; extra readers (a manual reader in tests)
// are attached either way.
func InitMetrics(ctx context.Context, endpoint, serviceName string, logger *zap.Logger, readers ...sdkmetric.Reader) (*sdkmetric.MeterProvider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint != "" {
		exporter, err := otlpmetrichttp.New(ctx, metricExporterOptions(endpoint)...)
		if err != nil {
			return nil, fmt.Errorf("create otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricExportInterval)),
		))
		if logger != nil {
			logger.Info("metrics enabled", zap.String("endpoint", endpoint), zap.String("service", serviceName))
		}
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	return mp, nil
}

func metricExporterOptions(endpoint string) []otlpmetrichttp.Option {
	host, insecure := splitEndpoint(endpoint)
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(host)}
	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts
}
