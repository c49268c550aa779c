package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	auditAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicledger_appends_total",
		Help: "Total audit entries appended, by action.",
	}, []string{"action"})

	auditVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicledger_verifications_total",
		Help: "Total ledger verification runs, by outcome.",
	}, []string{"result"})

	auditRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "civicledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	auditRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "civicledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request
// metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		auditRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		auditRequestDuration.WithLabelValues(c.Request.Method, path).
			Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordAppend records a committed audit entry.
func RecordAppend(action string) {
	auditAppendsTotal.WithLabelValues(action).Inc()
}

// RecordVerification records a verification run outcome.
func RecordVerification(intact bool) {
	if intact {
		auditVerificationsTotal.WithLabelValues("intact").Inc()
	} else {
		auditVerificationsTotal.WithLabelValues("tampered").Inc()
	}
}
