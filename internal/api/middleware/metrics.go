package middleware

import (
	"net/http"
	"sync/atomic"
)

// MetricsCollector counts requests for the /metrics endpoint.
type MetricsCollector struct {
	requests    atomic.Int64
	clientError atomic.Int64
	serverError atomic.Int64
	inFlight    atomic.Int64
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RequestStats is a point-in-time copy of the counters.
type RequestStats struct {
	Total        int64 `json:"total"`
	ClientErrors int64 `json:"client_errors"`
	ServerErrors int64 `json:"server_errors"`
	InFlight     int64 `json:"in_flight"`
}

func (mc *MetricsCollector) Snapshot() RequestStats {
	return RequestStats{
		Total:        mc.requests.Load(),
		ClientErrors: mc.clientError.Load(),
		ServerErrors: mc.serverError.Load(),
		InFlight:     mc.inFlight.Load(),
	}
}

// Middleware counts requests and 4xx/5xx answers.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requests.Add(1)
		mc.inFlight.Add(1)
		defer mc.inFlight.Add(-1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		switch {
		case rw.statusCode >= 500:
			mc.serverError.Add(1)
		case rw.statusCode >= 400:
			mc.clientError.Add(1)
		}
	})
}
