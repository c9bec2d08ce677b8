// Package metrics holds the Prometheus collectors for the checker.
package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector. A nil *Metrics is valid and records
// nothing, so callers never need to check.
type Metrics struct {
	imports          *prometheus.CounterVec
	importedIDs      *prometheus.CounterVec
	refreshFiles     *prometheus.CounterVec
	refreshes        *prometheus.CounterVec
	compareDuration  prometheus.Histogram
	shareCodeFetches *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		imports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcatac_imports_total",
				Help: "Progress imports by source and recognition strategy",
			},
			[]string{"source", "strategy"},
		),
		importedIDs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcatac_imported_ids_total",
				Help: "Achievement IDs newly added to user progress",
			},
			[]string{"source"},
		),
		refreshFiles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcatac_refresh_files_total",
				Help: "Category files handled by catalog refreshes, by outcome",
			},
			[]string{"outcome"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcatac_refreshes_total",
				Help: "Catalog refresh runs by result",
			},
			[]string{"result"},
		),
		compareDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mcatac_compare_duration_seconds",
				Help:    "Duration of progress comparisons",
				Buckets: prometheus.DefBuckets,
			},
		),
		shareCodeFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcatac_sharecode_fetches_total",
				Help: "Share-code fetches by result",
			},
			[]string{"result"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcatac_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "method", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcatac_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
	}
	reg.MustRegister(
		m.imports,
		m.importedIDs,
		m.refreshFiles,
		m.refreshes,
		m.compareDuration,
		m.shareCodeFetches,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) ObserveImport(source, strategy string, added int) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "none"
	}
	m.imports.WithLabelValues(source, strategy).Inc()
	m.importedIDs.WithLabelValues(source).Add(float64(added))
}

// ObserveRefresh records a refresh run and its per-file outcomes.
func (m *Metrics) ObserveRefresh(ok bool, downloaded, skipped, failed int) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "incomplete"
	}
	m.refreshes.WithLabelValues(result).Inc()
	m.refreshFiles.WithLabelValues("downloaded").Add(float64(downloaded))
	m.refreshFiles.WithLabelValues("skipped").Add(float64(skipped))
	m.refreshFiles.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) ObserveRefreshError() {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues("error").Inc()
}

func (m *Metrics) ObserveCompare(d time.Duration) {
	if m == nil {
		return
	}
	m.compareDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveShareCode(result string) {
	if m == nil {
		return
	}
	m.shareCodeFetches.WithLabelValues(result).Inc()
}

// Middleware tracks request counts and durations by route template, so
// user IDs in paths don't explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		m.httpRequests.WithLabelValues(path, r.Method, http.StatusText(ww.statusCode)).Inc()
		m.httpDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
