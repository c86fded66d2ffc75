// Package observability holds the Prometheus collectors and the Sentry-traced
// HTTP client.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	boardRefreshes *prometheus.CounterVec
	boardRollbacks *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	ordersCreated  prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ovenline_http_requests_total",
				Help: "HTTP requests served, by route and status code",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ovenline_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		boardRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ovenline_board_refreshes_total",
				Help: "Board fetches by outcome: applied, stale, or failed",
			},
			[]string{"result"},
		),
		boardRollbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ovenline_board_rollbacks_total",
				Help: "Optimistic board changes reverted after the store rejected them",
			},
			[]string{"action"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ovenline_kitchen_queue_orders",
				Help: "Orders waiting in the kitchen queue, by urgency tier",
			},
			[]string{"tier"},
		),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ovenline_orders_created_total",
			Help: "Orders accepted from the order-entry form",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.boardRefreshes,
		m.boardRollbacks,
		m.queueDepth,
		m.ordersCreated,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) BoardRefresh(result string) {
	if m == nil {
		return
	}
	m.boardRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) BoardRollback(action string) {
	if m == nil {
		return
	}
	m.boardRollbacks.WithLabelValues(action).Inc()
}

// SetQueueDepth replaces the per-tier gauge values.
func (m *Metrics) SetQueueDepth(byTier map[string]int) {
	if m == nil {
		return
	}
	m.queueDepth.Reset()
	for tier, count := range byTier {
		m.queueDepth.WithLabelValues(tier).Set(float64(count))
	}
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}
