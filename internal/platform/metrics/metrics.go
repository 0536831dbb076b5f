package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cascade"

// Collector holds the service's delete and HTTP metrics. It is not
// registered globally; callers register it with their own registry.
type Collector struct {
	runs         *prometheus.CounterVec
	rowsDeleted  *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	return &Collector{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delete_runs_total",
				Help:      "Delete runs by specification and outcome.",
			}, []string{"spec", "status"},
		),
		rowsDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_deleted_total",
				Help:      "Rows removed by delete steps, by target type.",
			}, []string{"spec", "type"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of a single top-level delete step.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			}, []string{"spec"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status code.",
			}, []string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			}, []string{"method", "route"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.runs.Describe(ch)
	c.rowsDeleted.Describe(ch)
	c.stepDuration.Describe(ch)
	c.httpRequests.Describe(ch)
	c.httpDuration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.runs.Collect(ch)
	c.rowsDeleted.Collect(ch)
	c.stepDuration.Collect(ch)
	c.httpRequests.Collect(ch)
	c.httpDuration.Collect(ch)
}

// ObserveRun counts one finished run. A nil collector is a no-op so
// callers without metrics need no guard.
func (c *Collector) ObserveRun(spec, status string) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(spec, status).Inc()
}

func (c *Collector) AddRows(spec, typeName string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.rowsDeleted.WithLabelValues(spec, typeName).Add(float64(n))
}

func (c *Collector) ObserveStep(spec string, d time.Duration) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(spec).Observe(d.Seconds())
}

// Middleware records request counts and durations. It must wrap the
// ServeMux directly: the route label is the matched pattern, which is
// only visible on the request the mux itself receives.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
	})
}

// Handler serves the gathered metrics of reg.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
