package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "allenpipe"

// Cache lookup outcomes.
const (
	LookupHit    = "hit"
	LookupMiss   = "miss"
	LookupStale  = "stale"
	LookupBypass = "bypass"
)

// NWB write outcomes.
const (
	WriteSuccess    = "success"
	WriteValidation = "validation_error"
	WriteFailure    = "write_error"
)

// Recorder owns the registry and the collectors of one run.
type Recorder struct {
	registry      *prometheus.Registry
	cacheLookups  *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchErrors   *prometheus.CounterVec
	tableRows     *prometheus.GaugeVec
	nwbWrites     *prometheus.CounterVec
	lastRun       prometheus.Gauge
}

// New registers the allenpipe collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Project cache lookups by table and outcome.",
		}, []string{"table", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Time spent fetching and enriching a table from the metadata source.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"table"}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Failed table fetches by table and error kind.",
		}, []string{"table", "kind"}),
		tableRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "table_rows",
			Help:      "Rows in the most recently materialized table.",
		}, []string{"table"}),
		nwbWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nwb",
			Name:      "writes_total",
			Help:      "NWB write attempts by outcome.",
		}, []string{"result"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the metrics file was written.",
		}),
	}
	r.registry.MustRegister(
		r.cacheLookups,
		r.fetchDuration,
		r.fetchErrors,
		r.tableRows,
		r.nwbWrites,
		r.lastRun,
		collectors.NewGoCollector(),
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// CacheLookup counts one cache lookup outcome for table.
func (r *Recorder) CacheLookup(table, result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(table, result).Inc()
}

// ObserveFetch records the duration of a table fetch and, on failure, its
// error kind.
func (r *Recorder) ObserveFetch(table string, elapsed time.Duration, kind string) {
	if r == nil {
		return
	}
	r.fetchDuration.WithLabelValues(table).Observe(elapsed.Seconds())
	if kind != "" {
		r.fetchErrors.WithLabelValues(table, kind).Inc()
	}
}

// SetTableRows records the row count of a materialized table.
func (r *Recorder) SetTableRows(table string, rows int) {
	if r == nil {
		return
	}
	r.tableRows.WithLabelValues(table).Set(float64(rows))
}

// NWBWrite counts one NWB write outcome.
func (r *Recorder) NWBWrite(result string) {
	if r == nil {
		return
	}
	r.nwbWrites.WithLabelValues(result).Inc()
}

// WriteTextfile writes every registered metric to path. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	r.lastRun.SetToCurrentTime()
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
