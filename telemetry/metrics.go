package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const (
	meterName = "github.com/wolfeidau/repospanner"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics handler.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	remoteRequestDuration   metric.Float64Histogram
	remoteRequestsTotal     metric.Int64Counter
	remoteRequestBytesTotal metric.Int64Counter

	backendRequestDuration metric.Float64Histogram
	backendRequestsTotal   metric.Int64Counter
	backendBytesTotal      metric.Int64Counter

	refsLoadDuration metric.Float64Histogram
	refsLoadsTotal   metric.Int64Counter
	refsLoaded       metric.Int64Gauge

	objectFetchesTotal metric.Int64Counter
	clientsCreated     metric.Int64Counter

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "repospanner-client"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(), // Use WithTLSCredentials for production
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// If no exporters configured, use a no-op periodic reader to still collect metrics
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.promHandler = promHandler
	globalMetrics = m

	return nil
}

// newMetrics creates every instrument on the given meter.
func newMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	m.remoteRequestDuration, err = meter.Float64Histogram(
		"repospanner_remote_request_duration_seconds",
		metric.WithDescription("Duration of requests to the repoSpanner cluster, including body transfer"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60),
	)
	if err != nil {
		return nil, err
	}

	m.remoteRequestsTotal, err = meter.Int64Counter(
		"repospanner_remote_requests_total",
		metric.WithDescription("Total number of requests to the repoSpanner cluster"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.remoteRequestBytesTotal, err = meter.Int64Counter(
		"repospanner_remote_request_bytes_total",
		metric.WithDescription("Total response bytes received from the repoSpanner cluster"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.backendRequestDuration, err = meter.Float64Histogram(
		"repospanner_backend_request_duration_seconds",
		metric.WithDescription("Duration of local object store operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	m.backendRequestsTotal, err = meter.Int64Counter(
		"repospanner_backend_requests_total",
		metric.WithDescription("Total number of local object store operations"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.backendBytesTotal, err = meter.Int64Counter(
		"repospanner_backend_bytes_total",
		metric.WithDescription("Total bytes transferred in local object store operations"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.refsLoadDuration, err = meter.Float64Histogram(
		"repospanner_refs_load_duration_seconds",
		metric.WithDescription("Duration of full reference list loads"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	m.refsLoadsTotal, err = meter.Int64Counter(
		"repospanner_refs_loads_total",
		metric.WithDescription("Total number of reference list loads"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, err
	}

	m.refsLoaded, err = meter.Int64Gauge(
		"repospanner_refs_loaded",
		metric.WithDescription("Number of references installed by the last successful load"),
		metric.WithUnit("{ref}"),
	)
	if err != nil {
		return nil, err
	}

	m.objectFetchesTotal, err = meter.Int64Counter(
		"repospanner_object_fetches_total",
		metric.WithDescription("Total object fetch calls, including callers that shared an in-flight fetch"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	m.clientsCreated, err = meter.Int64Counter(
		"repospanner_clients_created_total",
		metric.WithDescription("Total clients constructed by the registry"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

// shutdownMetrics shuts down the metrics provider and clears the global state.
func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// RecordRemoteRequest records a request to the repoSpanner cluster.
func RecordRemoteRequest(ctx context.Context, op string, duration time.Duration, bytesRead int64, outcome string) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	}
	globalMetrics.remoteRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	globalMetrics.remoteRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if bytesRead > 0 {
		globalMetrics.remoteRequestBytesTotal.Add(ctx, bytesRead, metric.WithAttributes(attrs...))
	}
}

// RecordBackendOp records a local object store operation.
func RecordBackendOp(ctx context.Context, backend, op, outcome string, duration time.Duration, bytes int64) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("backend", backend),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	}
	globalMetrics.backendRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	globalMetrics.backendRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if bytes > 0 {
		globalMetrics.backendBytesTotal.Add(ctx, bytes, metric.WithAttributes(attrs...))
	}
}

// RecordRefsLoad records one full reference list load. refs is only
// recorded for successful loads.
func RecordRefsLoad(ctx context.Context, outcome string, refs int, duration time.Duration) {
	if globalMetrics == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	globalMetrics.refsLoadsTotal.Add(ctx, 1, attrs)
	globalMetrics.refsLoadDuration.Record(ctx, duration.Seconds(), attrs)
	if outcome == "success" {
		globalMetrics.refsLoaded.Record(ctx, int64(refs))
	}
}

// RecordObjectFetch records an object fetch call and whether it joined an
// in-flight fetch for the same object.
func RecordObjectFetch(ctx context.Context, outcome string, shared bool) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome),
		attribute.String("shared", strconv.FormatBool(shared)),
	}
	globalMetrics.objectFetchesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordClientCreated records construction of a new registry client.
func RecordClientCreated(ctx context.Context) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.clientsCreated.Add(ctx, 1)
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// StatusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx).
func StatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
