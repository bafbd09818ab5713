package commands

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// requestMetrics is the gateway's own request-path instrumentation,
// registered into a dedicated registry and scraped off "/metrics" —
// distinct from internal/jcache/stats, which instruments cache hit/miss
// accounting for the read-cache side of this module, not HTTP traffic.
type requestMetrics struct {
	inFlight prometheus.Gauge
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
}

func newRequestMetrics(reg prometheus.Registerer) *requestMetrics {
	m := &requestMetrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xrd_s3_http_requests_in_flight",
			Help: "Number of S3 HTTP requests currently being served.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xrd_s3_http_request_duration_seconds",
			Help:    "S3 HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xrd_s3_http_requests_total",
			Help: "S3 HTTP requests served, by route and status.",
		}, []string{"route", "status"}),
	}
	reg.MustRegister(m.inFlight, m.duration, m.total)
	return m
}

// wrap instruments h, labeling each request with route (the matched S3
// operation name, set by the handler via withRoute) and response status.
func (m *requestMetrics) wrap(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		r, holder := withRouteHolder(r)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(rec, r)

		route := holder.name
		status := strconv.Itoa(rec.status)
		m.duration.WithLabelValues(route, status).Observe(time.Since(start).Seconds())
		m.total.WithLabelValues(route, status).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
