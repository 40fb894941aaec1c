// Package metrics records import and export activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/valuedcustomer/internal/core"
)

const subsystem = "import"

// Recorder implements core.Recorder on a private Prometheus registry.
type Recorder struct {
	registry *prometheus.Registry

	imports       *prometheus.CounterVec // status: success, failure
	failures      *prometheus.CounterVec // code: error catalogue code
	retries       prometheus.Counter
	rowsInserted  prometheus.Counter
	rowsDiscarded prometheus.Counter
	duration      prometheus.Histogram
	exports       *prometheus.CounterVec // mode: register, status
	exportRows    prometheus.Counter
}

// New creates a Recorder whose metric names start with namespace. The
// registry also carries the Go runtime and process collectors.
func New(namespace string) (*Recorder, error) {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "batches_total",
			Help:      "Total number of import requests by outcome",
		}, []string{"status"}),

		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failures_total",
			Help:      "Failed imports by error code",
		}, []string{"code"}),

		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retries_total",
			Help:      "Import attempts repeated after an identifier conflict",
		}),

		rowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_inserted_total",
			Help:      "Customer rows persisted",
		}),

		rowsDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rows_discarded_total",
			Help:      "Rows dropped for a blank customer name",
		}),

		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Import duration from upload to commit",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "renders_total",
			Help:      "CSV exports rendered by mode",
		}, []string{"mode"}),

		exportRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "rows_total",
			Help:      "Customer rows written to exports",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.imports, r.failures, r.retries, r.rowsInserted, r.rowsDiscarded,
		r.duration, r.exports, r.exportRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := r.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ImportSucceeded(inserted, discarded int, d time.Duration) {
	r.imports.WithLabelValues("success").Inc()
	r.rowsInserted.Add(float64(inserted))
	r.rowsDiscarded.Add(float64(discarded))
	r.duration.Observe(d.Seconds())
}

func (r *Recorder) ImportFailed(code string, d time.Duration) {
	r.imports.WithLabelValues("failure").Inc()
	r.failures.WithLabelValues(code).Inc()
	r.duration.Observe(d.Seconds())
}

func (r *Recorder) ImportRetried() {
	r.retries.Inc()
}

func (r *Recorder) ExportRendered(mode core.RenderMode, rows int) {
	r.exports.WithLabelValues(string(mode)).Inc()
	r.exportRows.Add(float64(rows))
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

var _ core.Recorder = (*Recorder)(nil)
