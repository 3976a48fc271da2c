// Package metrics exposes Prometheus metrics of the chat server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gophchat"

// Registry holds all application metrics on its own prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge
	CreatedSessions  prometheus.Counter
	EvictedSessions  prometheus.Counter
	TurnsTotal       *prometheus.CounterVec
	UpstreamDuration prometheus.Histogram
}

// NewRegistry creates and registers all metrics, plus the Go runtime and
// process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),

		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Live chat sessions.",
		}),

		CreatedSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Chat sessions created.",
		}),

		EvictedSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Chat sessions removed by idle or capacity eviction.",
		}),

		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns by result.",
		}, []string{"result"}),

		// Ответы LLM занимают секунды, стандартные бакеты слишком мелкие
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Completion service call latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.RequestsTotal,
		r.RequestDuration,
		r.ActiveSessions,
		r.CreatedSessions,
		r.EvictedSessions,
		r.TurnsTotal,
		r.UpstreamDuration,
	)

	return r
}

// Handler serves the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// SessionCreated implements memory.Observer.
func (r *Registry) SessionCreated() {
	r.CreatedSessions.Inc()
}

// SessionsEvicted implements memory.Observer.
func (r *Registry) SessionsEvicted(n int) {
	r.EvictedSessions.Add(float64(n))
}

// SessionsActive implements memory.Observer.
func (r *Registry) SessionsActive(n int) {
	r.ActiveSessions.Set(float64(n))
}

// TurnCompleted implements chat.Observer.
func (r *Registry) TurnCompleted(result string) {
	r.TurnsTotal.WithLabelValues(result).Inc()
}

// UpstreamObserved implements chat.Observer.
func (r *Registry) UpstreamObserved(d time.Duration) {
	r.UpstreamDuration.Observe(d.Seconds())
}

// statusRecorder captures the response status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency. The route label is the
// matched ServeMux pattern so that session ids do not blow up cardinality.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, req)

		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}

		r.RequestsTotal.WithLabelValues(req.Method, route, strconv.Itoa(rec.status)).Inc()
		r.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
