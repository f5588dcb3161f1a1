// Package metrics exposes Prometheus counters for the HTTP API, searches,
// direct reads and syncs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "recall_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	Searches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_searches_total",
			Help: "Total number of searches by mode",
		},
		[]string{"mode"},
	)

	SearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "recall_search_latency_seconds",
			Help: "Search latency in seconds",
		},
		[]string{"mode"},
	)

	DirectReads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recall_direct_reads_total",
			Help: "Total number of direct memory reads",
		},
	)

	Syncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recall_syncs_total",
			Help: "Total number of syncs by outcome",
		},
		[]string{"outcome"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "recall_sync_duration_seconds",
			Help: "Sync duration in seconds",
		},
	)

	IndexedFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recall_indexed_files",
			Help: "Number of memory files in the index",
		},
	)

	IndexedConcepts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recall_indexed_concepts",
			Help: "Number of distinct concepts in the index",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware counts requests by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RequestCount.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveSearch records one search.
func ObserveSearch(mode string, d time.Duration) {
	Searches.WithLabelValues(mode).Inc()
	SearchLatency.WithLabelValues(mode).Observe(d.Seconds())
}

// SyncTimer measures one sync.
type SyncTimer struct {
	start time.Time
}

// StartSync begins timing a sync.
func StartSync() SyncTimer {
	return SyncTimer{start: time.Now()}
}

// Done records the sync outcome.
func (t SyncTimer) Done(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	Syncs.WithLabelValues(outcome).Inc()
	SyncDuration.Observe(time.Since(t.start).Seconds())
}

// SetIndexed updates the index size gauges.
func SetIndexed(files, concepts int) {
	IndexedFiles.Set(float64(files))
	IndexedConcepts.Set(float64(concepts))
}
