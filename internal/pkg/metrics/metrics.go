package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oficios",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oficios",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "oficios",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Marketplace metrics
	ApplicationsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oficios",
		Subsystem: "registry",
		Name:      "applications_submitted_total",
		Help:      "Total applications submitted by providers",
	})

	ApplicationsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oficios",
		Subsystem: "registry",
		Name:      "applications_accepted_total",
		Help:      "Total applications accepted by requesters",
	})

	ApplicationsDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oficios",
		Subsystem: "registry",
		Name:      "applications_discarded_total",
		Help:      "Total applications discarded by the acceptance cascade",
	})

	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oficios",
		Subsystem: "registry",
		Name:      "accept_conflicts_total",
		Help:      "Total acceptance attempts that lost the race",
	})

	FeedEventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "oficios",
		Subsystem: "feed",
		Name:      "events_processed_total",
		Help:      "Total change-feed events processed by the projector",
	}, []string{"entity", "op"})

	FeedResyncs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "oficios",
		Subsystem: "feed",
		Name:      "resyncs_total",
		Help:      "Total full re-projections triggered by delivery gaps or fresh subscriptions",
	})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "oficios",
		Subsystem: "ws",
		Name:      "connected_clients",
		Help:      "Currently connected WebSocket clients",
	})
)

// Middleware records request count, latency, and response size per route.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()
		status := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler exposes the Prometheus metrics endpoint on a fiber app.
func Handler() fiber.Handler {
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		h(c.Context())
		return nil
	}
}
