package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// counterTotals sums every int64 counter the reader has seen, by name.
func counterTotals(t *testing.T, reader sdkmetric.Reader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}
	return totals
}

func TestLoaderRecordsCacheMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	up := newFakeUpstream(fixture(10))
	up.gate = make(chan struct{})
	up.started = make(chan struct{}, 1)
	svc := newTestService(t, up, WithMeter(provider.Meter("gallery/catalog")))
	ctx := context.Background()

	errs := make(chan error, 2)
	load := func() {
		_, err := svc.FetchListing(ctx, ListingRequest{})
		errs <- err
	}
	go load()
	<-up.started
	go load()
	require.Eventually(t, func() bool { return waiters(svc, listingKey) == 2 }, time.Second, time.Millisecond)
	close(up.gate)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	_, err := svc.FetchListing(ctx, ListingRequest{Author: "Tina Rataj"})
	require.NoError(t, err)

	totals := counterTotals(t, reader)
	assert.Equal(t, int64(1), totals["catalog.upstream.calls"])
	assert.Equal(t, int64(1), totals["catalog.cache.misses"])
	assert.Equal(t, int64(1), totals["catalog.flight.coalesced"])
	assert.Equal(t, int64(1), totals["catalog.cache.hits"])
}
