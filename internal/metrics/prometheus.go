package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "endpoint", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "endpoint"},
	)

	OrdersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		},
	)

	// StatusTransitions counts applied lifecycle transitions
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_status_transitions_total",
			Help: "Order status transitions applied",
		},
		[]string{"from", "to"},
	)

	ItemsCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "order_items_cancelled_total",
			Help: "Order items cancelled individually",
		},
	)

	// StockRestored counts units returned to the catalog
	StockRestored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stock_units_restored_total",
			Help: "Stock units restored by cancellations",
		},
	)

	EventsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_events_publish_failures_total",
			Help: "Order events that could not be published",
		},
		[]string{"event_type"},
	)

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"circuit_name"},
	)
)

// PrometheusMiddleware creates a Gin middleware for automatic metrics collection
func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestsTotal.WithLabelValues(
			serviceName,
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		RequestDuration.WithLabelValues(
			serviceName,
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}
