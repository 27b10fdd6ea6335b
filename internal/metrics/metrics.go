// Package metrics exposes pipeline counters through a private Prometheus
// registry, optionally pushed to a Pushgateway when a run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "caaspp"

// Metrics holds all pipeline metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	ArchivesTotal    *prometheus.CounterVec
	FetchedBytes     prometheus.Counter
	RowsLoaded       *prometheus.CounterVec
	RowsDropped      prometheus.Counter
	YearsTotal       *prometheus.CounterVec
	LoadDuration     *prometheus.HistogramVec
	IndexDocuments   prometheus.Gauge
	RunsTotal        *prometheus.CounterVec
	LastRunTimestamp prometheus.Gauge
	LastRunDuration  prometheus.Gauge

	registry *prometheus.Registry
}

// Config holds metrics configuration.
type Config struct {
	// PushgatewayURL enables pushing at the end of a run when set.
	PushgatewayURL string
	// Job is the Pushgateway job label.
	Job string
}

// New creates and registers every metric on a fresh registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.ArchivesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_total",
			Help:      "Archives processed by outcome",
		},
		[]string{"status"}, // parsed, empty, failed
	)
	m.FetchedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetched_bytes_total",
		Help:      "Bytes downloaded from the publisher",
	})
	m.RowsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Fact rows written to the warehouse by year",
		},
		[]string{"year"},
	)
	m.RowsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_dropped_total",
		Help:      "Result rows dropped for lacking a test identifier",
	})
	m.YearsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "years_total",
			Help:      "Years processed by outcome",
		},
		[]string{"status"},
	)
	m.LoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Duration of one year's warehouse replace",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"status"},
	)
	m.IndexDocuments = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "index_documents",
		Help:      "Documents written by the last index build",
	})
	m.RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final status",
		},
		[]string{"status"},
	)
	m.LastRunTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished",
	})
	m.LastRunDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_duration_seconds",
		Help:      "Wall time of the last run",
	})

	m.registry.MustRegister(
		m.ArchivesTotal,
		m.FetchedBytes,
		m.RowsLoaded,
		m.RowsDropped,
		m.YearsTotal,
		m.LoadDuration,
		m.IndexDocuments,
		m.RunsTotal,
		m.LastRunTimestamp,
		m.LastRunDuration,
	)
	return m
}

// Registry returns the registry holding every metric.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordArchive counts one archive and its payload size.
func (m *Metrics) RecordArchive(status string, bytes int) {
	if m == nil {
		return
	}
	m.ArchivesTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.FetchedBytes.Add(float64(bytes))
	}
}

// RecordYear counts one year's outcome and, when rows were loaded, its load.
func (m *Metrics) RecordYear(year int, status string, rows int64, dropped int, loadTime time.Duration) {
	if m == nil {
		return
	}
	m.YearsTotal.WithLabelValues(status).Inc()
	if rows > 0 {
		m.RowsLoaded.WithLabelValues(fmt.Sprint(year)).Add(float64(rows))
	}
	if dropped > 0 {
		m.RowsDropped.Add(float64(dropped))
	}
	if loadTime > 0 {
		m.LoadDuration.WithLabelValues(status).Observe(loadTime.Seconds())
	}
}

// RecordIndex sets the number of documents of the last index build.
func (m *Metrics) RecordIndex(documents int) {
	if m == nil {
		return
	}
	m.IndexDocuments.Set(float64(documents))
}

// RecordRun counts a finished run.
func (m *Metrics) RecordRun(status string, finished time.Time, took time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.LastRunTimestamp.Set(float64(finished.Unix()))
	m.LastRunDuration.Set(took.Seconds())
}

// Push sends every metric to the Pushgateway in cfg. It is a no-op when no
// URL is configured.
func (m *Metrics) Push(ctx context.Context, cfg Config) error {
	if m == nil || cfg.PushgatewayURL == "" {
		return nil
	}
	job := cfg.Job
	if job == "" {
		job = namespace + "_ingest"
	}
	if err := push.New(cfg.PushgatewayURL, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
