package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"path", "method", "status"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"},
	)
	inferenceDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leaf_inference_duration_seconds",
			Help:    "Duration of a single model forward pass including preprocessing",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)
	predictionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaf_predictions_total",
			Help: "Total number of predictions by top label",
		}, []string{"label"},
	)
)

func init() {
	prometheus.MustRegister(requestCount, requestDuration, inferenceDuration, predictionCount)
}

// Metrics 요청 수와 처리 시간을 기록하는 미들웨어
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		p := c.FullPath()
		if p == "" {
			p = "unmatched"
		}
		requestCount.WithLabelValues(p, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(p).Observe(time.Since(start).Seconds())
	}
}
