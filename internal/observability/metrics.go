package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the HTTP server and the
// fulfillment domain. It satisfies the Observer interfaces of the
// inventory, sales and delivery services.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	reservationsRejected prometheus.Counter
	ordersCreated        prometheus.Counter
	ordersCompleted      prometheus.Counter
	deliveries           prometheus.Counter
	deliveredQuantity    prometheus.Counter
	deliveryReductions   prometheus.Counter
	deletionStepFailures *prometheus.CounterVec
}

// NewMetrics initialises the registry with request and domain metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_http_request_duration_seconds",
			Help:    "HTTP request duration per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		reservationsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_reservations_rejected_total",
			Help: "Reservations rejected for insufficient inventory.",
		}),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_orders_created_total",
			Help: "Orders created.",
		}),
		ordersCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_orders_completed_total",
			Help: "Orders completed by full payment.",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_deliveries_recorded_total",
			Help: "Delivery changes recorded against line items.",
		}),
		deliveredQuantity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_delivered_quantity_total",
			Help: "Quantity consumed from stock lots by deliveries.",
		}),
		deliveryReductions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "odyssey_delivery_reductions_total",
			Help: "Deliveries reduced without returning stock to the lot.",
		}),
		deletionStepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_order_deletion_step_failures_total",
			Help: "Failed order deletion steps by step name.",
		}, []string{"step"}),
	}
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.reservationsRejected,
		m.ordersCreated,
		m.ordersCompleted,
		m.deliveries,
		m.deliveredQuantity,
		m.deliveryReductions,
		m.deletionStepFailures,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for job metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ============================================================================
// DOMAIN OBSERVERS
// ============================================================================

func (m *Metrics) ReservationRejected() { m.reservationsRejected.Inc() }

func (m *Metrics) OrderCreated() { m.ordersCreated.Inc() }

func (m *Metrics) OrderCompleted() { m.ordersCompleted.Inc() }

func (m *Metrics) DeletionStepFailed(step string) {
	m.deletionStepFailures.WithLabelValues(step).Inc()
}

// DeliveryRecorded counts a delivery change. Only increases consume stock.
func (m *Metrics) DeliveryRecorded(delta float64) {
	m.deliveries.Inc()
	if delta > 0 {
		m.deliveredQuantity.Add(delta)
		return
	}
	m.deliveryReductions.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
