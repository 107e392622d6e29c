package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

func TestInitMetricsInstallsGlobalProvider(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp, err := InitMetrics(context.Background(), "", "gallery-test", zaptest.NewLogger(t), reader)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	counter, err := otel.Meter("gallery/test").Int64Counter("test.requests")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in       string
		host     string
		insecure bool
	}{
		{"http://collector:4318", "collector:4318", true},
		{"https://otel.example.com/v1/traces", "otel.example.com", false},
		{"collector:4318", "collector:4318", false},
	}
	for _, tc := range cases {
		host, insecure := splitEndpoint(tc.in)
		assert.Equal(t, tc.host, host, tc.in)
		assert.Equal(t, tc.insecure, insecure, tc.in)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("nonsense")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.True(t, logger.Core().Enabled(0))
}
