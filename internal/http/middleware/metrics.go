package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// unmatchedRoute labels requests that matched no registered route, so raw
// URLs never become label values.
const unmatchedRoute = "unmatched"

// httpMetrics groups the HTTP collectors. Route labels are Gin's registered
// patterns ("/api/v1/messages/:id").
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	inflight prometheus.Gauge
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latency of short-lived HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		size: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response body size of short-lived HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8), // 256B .. 4MiB
		}, []string{"method", "route"}),
		inflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Short-lived HTTP requests currently being served.",
		}),
	}
}

var defaultHTTPMetrics = newHTTPMetrics(prometheus.DefaultRegisterer)

// Metrics records every request on the default registry. Routes listed in
// longLived, such as the WebSocket endpoint whose handler lasts as long as
// the connection, are only counted.
func Metrics(longLived ...string) gin.HandlerFunc {
	return defaultHTTPMetrics.handler(longLived...)
}

func (m *httpMetrics) handler(longLived ...string) gin.HandlerFunc {
	counted := make(map[string]bool, len(longLived))
	for _, p := range longLived {
		counted[p] = true
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		timed := !counted[route]

		start := time.Now()
		if timed {
			m.inflight.Inc()
		}
		// A panic is recorded as a 500 and handed on to Recovery.
		defer func() {
			status := c.Writer.Status()
			rec := recover()
			if rec != nil {
				status = http.StatusInternalServerError
			}
			m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			if timed {
				m.inflight.Dec()
				m.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
				if n := c.Writer.Size(); n >= 0 {
					m.size.WithLabelValues(method, route).Observe(float64(n))
				}
			}
			if rec != nil {
				panic(rec)
			}
		}()

		c.Next()
	}
}
