// Package metrics provides Prometheus instrumentation for the extract.
//
// Metrics exposed:
//   - noaa_extract_requests_total: Counter of CDO page requests by endpoint and status
//   - noaa_extract_request_duration_seconds: Histogram of CDO page request latency
//   - noaa_extract_records_fetched_total: Counter of records received by endpoint
//   - noaa_extract_runs_total: Counter of finished runs by status
//   - noaa_extract_run_duration_seconds: Gauge of the last run's wall time
//   - noaa_extract_last_run_timestamp_seconds: Gauge of the last run's finish time
//   - noaa_extract_weather_api_calls: Gauge of data requests issued by the last run
//   - noaa_extract_snapshot_writes_total: Counter of snapshot writes by file and status
//   - noaa_extract_snapshot_rows: Gauge of rows in the last snapshot per file
//
// A Lambda invocation has nothing to scrape, so the registry can also be pushed to a
// Pushgateway at the end of a run.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/godhahn/data-project/internal/extract"
)

// PushJob is the Pushgateway job label.
const PushJob = "noaa_extract"

type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RecordsFetched   *prometheus.CounterVec
	RunsTotal        *prometheus.CounterVec
	RunDuration      prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
	WeatherAPICalls  prometheus.Gauge
	SnapshotWrites   *prometheus.CounterVec
	SnapshotRows     *prometheus.GaugeVec
}

// New registers every metric on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noaa_extract_requests_total",
			Help: "Total number of CDO page requests by endpoint and status",
		}, []string{"endpoint", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "noaa_extract_request_duration_seconds",
			Help:    "Duration of CDO page requests by endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		RecordsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noaa_extract_records_fetched_total",
			Help: "Total number of records received by endpoint",
		}, []string{"endpoint"}),

		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noaa_extract_runs_total",
			Help: "Total number of finished runs by status",
		}, []string{"status"}),

		RunDuration: factory.NewGauge(prometheus.GaugeOpts{
			Name: "noaa_extract_run_duration_seconds",
			Help: "Wall time of the last run",
		}),

		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "noaa_extract_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),

		WeatherAPICalls: factory.NewGauge(prometheus.GaugeOpts{
			Name: "noaa_extract_weather_api_calls",
			Help: "Number of data requests issued by the last run",
		}),

		SnapshotWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "noaa_extract_snapshot_writes_total",
			Help: "Total number of snapshot writes by file and status",
		}, []string{"file", "status"}),

		SnapshotRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "noaa_extract_snapshot_rows",
			Help: "Rows in the last snapshot of each file",
		}, []string{"file"}),
	}
}

// ObserveRequest implements noaa.Observer.
func (m *Metrics) ObserveRequest(endpoint, status string, d time.Duration) {
	m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObservePage implements noaa.Observer.
func (m *Metrics) ObservePage(endpoint string, records int) {
	m.RecordsFetched.WithLabelValues(endpoint).Add(float64(records))
}

// ObserveRun records the outcome of a finished run.
func (m *Metrics) ObserveRun(sum extract.Summary) {
	m.RunsTotal.WithLabelValues(string(sum.Status)).Inc()
	m.RunDuration.Set(sum.Duration().Seconds())
	if !sum.FinishedAt.IsZero() {
		m.LastRunTimestamp.Set(float64(sum.FinishedAt.Unix()))
	}
	m.WeatherAPICalls.Set(float64(sum.WeatherCalls))

	for _, res := range sum.Snapshots {
		m.SnapshotWrites.WithLabelValues(res.File, string(res.Status)).Inc()
		m.SnapshotRows.WithLabelValues(res.File).Set(float64(res.Rows))
	}
}

// Push sends the registry to the Pushgateway at url, replacing the previous push of PushJob.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if err := push.New(url, PushJob).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
