package metrics

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "loopcut"

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Loop engine metrics
	DetectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "loops",
		Name:      "detection_duration_seconds",
		Help:      "Duration of one loop detection run over a track",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
	}, []string{"policy"})

	CandidatesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loops",
		Name:      "candidates_found_total",
		Help:      "Total loop candidates found",
	}, []string{"policy"})

	SegmentFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loops",
		Name:      "segment_failures_total",
		Help:      "Total segments whose scan failed",
	})

	PointsExcised = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loops",
		Name:      "points_excised_total",
		Help:      "Total track points removed by excision",
	}, []string{"mode"})

	TracksImported = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracks",
		Name:      "imported_total",
		Help:      "Total tracks stored, including excision results",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "conns_open",
		Help:      "Connections open in the database pool",
	})

	DBConnsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "conns_in_use",
		Help:      "Connections currently in use",
	})

	DBWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "wait_count",
		Help:      "Total times a caller waited for a connection",
	})

	DBRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "db",
		Name:      "retries_total",
		Help:      "Total retried database writes",
	}, []string{"operation"})
)

// Middleware records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath() // route pattern keeps label cardinality low
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		if size := c.Writer.Size(); size > 0 {
			httpResponseSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

// Handler returns a gin handler serving the Prometheus /metrics endpoint.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// UpdateDBStats copies database/sql pool stats into the db gauges.
func UpdateDBStats(s sql.DBStats) {
	DBConnsOpen.Set(float64(s.OpenConnections))
	DBConnsInUse.Set(float64(s.InUse))
	DBWaitCount.Set(float64(s.WaitCount))
}
