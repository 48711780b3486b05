// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file exposes Prometheus instrumentation for mirror traffic. Labels are
// bounded: the registered Gin route (raw path only when nothing matched), the
// numeric status, and the mirrored API a route belongs to (curseforge,
// modrinth, files or ops).
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// headerTrustable mirrors handlers.HeaderTrustable.
const headerTrustable = "Trustable"

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mirror_http_request_duration_seconds",
			Help:    "HTTP request latency by mirrored API and method.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"api", "method"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirror_http_requests_inflight",
			Help: "HTTP requests currently being served.",
		},
	)

	// Project payloads run from a few KiB to a few MiB for large version lists.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mirror_http_response_size_bytes",
			Help:    "HTTP response size in bytes by mirrored API.",
			Buckets: prometheus.ExponentialBuckets(256, 4, 9), // 256B..16MiB
		},
		[]string{"api"},
	)

	// lookups splits answered lookups by whether the data was trustable.
	lookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_lookups_total",
			Help: "Lookup responses by mirrored API and Trustable header.",
		},
		[]string{"api", "trustable"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, lookups)
}

// apiOf maps a route to the mirrored API it serves.
func apiOf(route string) string {
	switch {
	case strings.HasPrefix(route, "/curseforge/"):
		return "curseforge"
	case strings.HasPrefix(route, "/modrinth/"):
		return "modrinth"
	case strings.HasPrefix(route, "/files/"), strings.HasPrefix(route, "/data/"):
		return "files"
	default:
		return "ops"
	}
}

// Metrics instruments every request. Responses carrying a Trustable header,
// including memoized replays, also count towards mirror_lookups_total.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		api := apiOf(route)
		method := c.Request.Method

		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(api, method).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(api).Observe(float64(size))
		}
		if t := c.Writer.Header().Get(headerTrustable); t != "" {
			lookups.WithLabelValues(api, t).Inc()
		}
	}
}
