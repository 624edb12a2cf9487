// Package metrics exposes Prometheus collectors for shop operations and the
// HTTP API.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/editionshop/internal/domain"
)

const namespace = "editionshop"

// Metrics holds the shop collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	operations   *prometheus.CounterVec
	opDuration   *prometheus.HistogramVec
	sales        prometheus.Counter
	salesVolume  *prometheus.CounterVec
	payouts      *prometheus.CounterVec
	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shop",
			Name:      "operations_total",
			Help:      "Shop operations by name and outcome kind.",
		}, []string{"op", "result"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "shop",
			Name:      "operation_duration_seconds",
			Help:      "Duration of shop operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"}),
		sales: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shop",
			Name:      "editions_sold_total",
			Help:      "Editions printed by successful buys.",
		}),
		salesVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shop",
			Name:      "sales_volume_total",
			Help:      "Sum of sale prices in minor units by treasury mint.",
		}, []string{"mint"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "shop",
			Name:      "payouts_total",
			Help:      "Withdrawn amounts in minor units by sale kind.",
		}, []string{"kind"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		m.operations, m.opDuration, m.sales, m.salesVolume, m.payouts,
		m.httpInFlight, m.httpRequests, m.httpDuration,
		prometheus.NewGoCollector(),
	)
	return m
}

// ObserveOperation records one finished operation. The result label is "ok"
// or the error kind.
func (m *Metrics) ObserveOperation(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(domain.Kind(err))
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.opDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// RecordSale counts one printed edition sold at price.
func (m *Metrics) RecordSale(mint string, price uint64) {
	if m == nil {
		return
	}
	m.sales.Inc()
	m.salesVolume.WithLabelValues(mint).Add(float64(price))
}

// RecordPayout counts a withdrawn amount.
func (m *Metrics) RecordPayout(primary bool, amount uint64) {
	if m == nil {
		return
	}
	kind := "secondary"
	if primary {
		kind = "primary"
	}
	m.payouts.WithLabelValues(kind).Add(float64(amount))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests and embedding.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// InstrumentHandler wraps next with request metrics. Routes are labelled by
// the matched mux pattern so path parameters do not explode cardinality.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the instrumentation.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
