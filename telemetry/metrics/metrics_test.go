package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/projectecosystemapp/lib-resilience/log"
)

// newTestFactory creates a MetricsFactory wired to an in-memory ManualReader
// so metric data can be collected and inspected without any exporter.
func newTestFactory(t *testing.T) (*MetricsFactory, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := mp.Meter("test-lib")

	factory, err := NewMetricsFactory(meter, &log.NopLogger{})
	require.NoError(t, err)

	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	return factory, reader
}

// collectMetrics drains the ManualReader into a ResourceMetrics snapshot.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

// findMetric searches a ResourceMetrics snapshot for a metric by name.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}

	return nil
}

func TestNewMetricsFactory_NilMeter(t *testing.T) {
	_, err := NewMetricsFactory(nil, &log.NopLogger{})
	assert.ErrorIs(t, err, ErrNilMeter)
}

func TestMetricsFactory_CounterRecordsValues(t *testing.T) {
	factory, reader := newTestFactory(t)
	ctx := context.Background()

	counter, err := factory.Counter(MetricOperationErrors)
	require.NoError(t, err)

	require.NoError(t, counter.WithLabels(map[string]string{"operation": "search"}).Add(ctx, 2))
	require.NoError(t, counter.WithLabels(map[string]string{"operation": "search"}).AddOne(ctx))

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, MetricOperationErrors.Name)
	require.NotNil(t, metric)

	sum, ok := metric.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

func TestMetricsFactory_GaugeKeepsLatestValue(t *testing.T) {
	factory, reader := newTestFactory(t)
	ctx := context.Background()

	gauge, err := factory.Gauge(Metric{Name: "queue_depth", Unit: "1"})
	require.NoError(t, err)

	require.NoError(t, gauge.WithLabels(nil).Set(ctx, 10))
	require.NoError(t, gauge.WithLabels(nil).Set(ctx, 4))

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "queue_depth")
	require.NotNil(t, metric)

	data, ok := metric.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, int64(4), data.DataPoints[0].Value)
}

func TestMetricsFactory_FloatGaugeKeepsFractionalValue(t *testing.T) {
	factory, reader := newTestFactory(t)
	ctx := context.Background()

	gauge, err := factory.FloatGauge(Metric{Name: "error_rate_pct", Unit: "%"})
	require.NoError(t, err)

	require.NoError(t, gauge.WithLabels(map[string]string{"variant": "a"}).Set(ctx, 33.3))

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, "error_rate_pct")
	require.NotNil(t, metric)

	data, ok := metric.Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.InDelta(t, 33.3, data.DataPoints[0].Value, 1e-9)

	cached, err := factory.FloatGauge(Metric{Name: "error_rate_pct", Unit: "%"})
	require.NoError(t, err)
	assert.Equal(t, gauge, cached)
}

func TestMetricsFactory_HistogramRecordsDistribution(t *testing.T) {
	factory, reader := newTestFactory(t)
	ctx := context.Background()

	histogram, err := factory.Histogram(MetricOperationDuration)
	require.NoError(t, err)

	require.NoError(t, histogram.WithLabels(nil).Record(ctx, 12))
	require.NoError(t, histogram.WithLabels(nil).Record(ctx, 480))

	rm := collectMetrics(t, reader)
	metric := findMetric(rm, MetricOperationDuration.Name)
	require.NotNil(t, metric)

	data, ok := metric.Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, uint64(2), data.DataPoints[0].Count)
	assert.Equal(t, int64(492), data.DataPoints[0].Sum)
}

func TestMetricsFactory_InstrumentsAreCached(t *testing.T) {
	factory, _ := newTestFactory(t)

	first, err := factory.Counter(MetricOperationErrors)
	require.NoError(t, err)

	second, err := factory.Counter(MetricOperationErrors)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNopFactory_RecordsWithoutProvider(t *testing.T) {
	factory := NewNopFactory()

	counter, err := factory.Counter(MetricOperationErrors)
	require.NoError(t, err)
	assert.NoError(t, counter.AddOne(context.Background()))
}
