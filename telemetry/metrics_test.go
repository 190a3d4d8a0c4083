package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMetrics creates a Metrics instance backed by a ManualReader for testing.
func setupTestMetrics(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := newMetrics(mp.Meter(meterName))
	require.NoError(t, err)
	m.meterProvider = mp
	globalMetrics = m

	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
		globalMetrics = nil
	})

	return reader
}

// collectMetrics reads all metrics from the ManualReader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

// findCounter finds a counter metric by name and returns its data points.
func findCounter(rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
					return sum.DataPoints
				}
			}
		}
	}
	return nil
}

// findGauge finds a gauge metric by name and returns its data points.
func findGauge(rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if g, ok := m.Data.(metricdata.Gauge[int64]); ok {
					return g.DataPoints
				}
			}
		}
	}
	return nil
}

// findHistogram finds a histogram metric by name and returns its data points.
func findHistogram(rm metricdata.ResourceMetrics, name string) []metricdata.HistogramDataPoint[float64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if hist, ok := m.Data.(metricdata.Histogram[float64]); ok {
					return hist.DataPoints
				}
			}
		}
	}
	return nil
}

// hasAttr checks if a data point's attribute set contains the given key-value pair.
func hasAttr(attrs attribute.Set, key, value string) bool {
	v, ok := attrs.Value(attribute.Key(key))
	return ok && v.AsString() == value
}

func TestRecordRemoteRequest(t *testing.T) {
	reader := setupTestMetrics(t)

	RecordRemoteRequest(context.Background(), OpRefs, 20*time.Millisecond, 512, "success")

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "repospanner_remote_requests_total")
	require.Len(t, dps, 1)
	require.EqualValues(t, 1, dps[0].Value)
	require.True(t, hasAttr(dps[0].Attributes, "operation", OpRefs))
	require.True(t, hasAttr(dps[0].Attributes, "outcome", "success"))

	bytesDps := findCounter(rm, "repospanner_remote_request_bytes_total")
	require.Len(t, bytesDps, 1)
	require.EqualValues(t, 512, bytesDps[0].Value)

	histDps := findHistogram(rm, "repospanner_remote_request_duration_seconds")
	require.Len(t, histDps, 1)
	require.Equal(t, uint64(1), histDps[0].Count)
}

func TestRecordBackendOp(t *testing.T) {
	reader := setupTestMetrics(t)

	RecordBackendOp(context.Background(), "loose", "writer", "success", time.Millisecond, 0)
	RecordBackendOp(context.Background(), "loose", "write", "success", time.Millisecond, 64)

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "repospanner_backend_requests_total")
	require.Len(t, dps, 2)

	bytesDps := findCounter(rm, "repospanner_backend_bytes_total")
	require.Len(t, bytesDps, 1)
	require.EqualValues(t, 64, bytesDps[0].Value)
	require.True(t, hasAttr(bytesDps[0].Attributes, "op", "write"))
}

func TestRecordRefsLoad(t *testing.T) {
	reader := setupTestMetrics(t)

	RecordRefsLoad(context.Background(), "error", 0, time.Millisecond)
	RecordRefsLoad(context.Background(), "success", 42, time.Millisecond)

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "repospanner_refs_loads_total")
	require.Len(t, dps, 2)

	gauge := findGauge(rm, "repospanner_refs_loaded")
	require.Len(t, gauge, 1)
	require.EqualValues(t, 42, gauge[0].Value)
}

func TestRecordObjectFetch(t *testing.T) {
	reader := setupTestMetrics(t)

	RecordObjectFetch(context.Background(), "success", false)
	RecordObjectFetch(context.Background(), "success", true)
	RecordObjectFetch(context.Background(), "not_found", false)

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "repospanner_object_fetches_total")
	require.Len(t, dps, 3)
	for _, dp := range dps {
		require.EqualValues(t, 1, dp.Value)
	}
}

func TestRecordClientCreated(t *testing.T) {
	reader := setupTestMetrics(t)

	RecordClientCreated(context.Background())
	RecordClientCreated(context.Background())

	rm := collectMetrics(t, reader)
	dps := findCounter(rm, "repospanner_clients_created_total")
	require.Len(t, dps, 1)
	require.EqualValues(t, 2, dps[0].Value)
}

func TestRecord_NilGlobalMetrics(t *testing.T) {
	globalMetrics = nil

	// Should not panic
	ctx := context.Background()
	RecordRemoteRequest(ctx, OpObject, time.Millisecond, 1, "success")
	RecordBackendOp(ctx, "loose", "read", "success", time.Millisecond, 1)
	RecordRefsLoad(ctx, "success", 1, time.Millisecond)
	RecordObjectFetch(ctx, "success", false)
	RecordClientCreated(ctx)
}

func TestPrometheusHandler_NotEnabled(t *testing.T) {
	globalMetrics = nil

	rec := httptest.NewRecorder()
	PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{200, "2xx"},
		{201, "2xx"},
		{299, "2xx"},
		{301, "3xx"},
		{304, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
		{100, "unknown"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, StatusClass(tt.status), "StatusClass(%d)", tt.status)
	}
}
