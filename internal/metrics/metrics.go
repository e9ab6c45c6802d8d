// Package metrics provides Prometheus instrumentation for the game server.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersTotal counts order attempts, partitioned by side and result
	// ("filled" or the rejection code).
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maejeom_orders_total",
		Help: "Total number of orders placed",
	}, []string{"side", "result"})

	// OrderLatency tracks order handling time including the save.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maejeom_order_latency_seconds",
		Help:    "Order handling latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// Rejections counts failed game operations by error code.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maejeom_rejections_total",
		Help: "Game operations rejected, by error code",
	}, []string{"op", "code"})

	// DayAdvances counts successful next-day transitions.
	DayAdvances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maejeom_day_advances_total",
		Help: "Total number of days advanced",
	})

	// Resets counts games reset (including the first game of a session).
	Resets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "maejeom_resets_total",
		Help: "Total number of games reset",
	})

	// ActiveSessions tracks sessions held in memory.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "maejeom_active_sessions",
		Help: "Number of sessions loaded in memory",
	})

	// TradedVolume tracks cumulative traded units per product.
	TradedVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maejeom_traded_units_total",
		Help: "Cumulative traded units",
	}, []string{"product", "side"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "maejeom_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "maejeom_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maejeom_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not support hijacking", w.ResponseWriter)
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
