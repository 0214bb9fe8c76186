package middleware

import (
	"net/http"
	"sync/atomic"
)

// MetricsCollector feeds the counters behind /metrics. It must sit in front
// of the rate limiter so throttled requests are seen.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
	throttled    atomic.Int64
}

func NewMetricsCollector(requestCount, errorCount *atomic.Int64) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
	}
}

// Throttled returns how many requests were answered with 429.
func (mc *MetricsCollector) Throttled() int64 {
	return mc.throttled.Load()
}

func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		switch {
		case rw.statusCode == http.StatusTooManyRequests:
			mc.throttled.Add(1)
			mc.errorCount.Add(1)
		case rw.statusCode >= 400:
			mc.errorCount.Add(1)
		}
	})
}
