package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the HTTP and ledger Prometheus metrics of a process.
type Metrics struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	vouchersCommitted *prometheus.CounterVec
	vouchersGenerated *prometheus.CounterVec
	vouchersRejected  *prometheus.CounterVec
}

// NewMetrics initialises the registry and base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	committed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_vouchers_committed_total",
		Help: "Authored vouchers committed, by voucher type.",
	}, []string{"type"})
	generated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_vouchers_generated_total",
		Help: "Sibling vouchers generated by recurrence or depreciation, by authoring voucher type.",
	}, []string{"type"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_vouchers_rejected_total",
		Help: "Voucher authoring attempts rejected, by error kind.",
	}, []string{"kind"})
	registry.MustRegister(requests, duration, committed, generated, rejected)
	return &Metrics{
		registry:          registry,
		handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:     requests,
		requestDuration:   duration,
		vouchersCommitted: committed,
		vouchersGenerated: generated,
		vouchersRejected:  rejected,
	}
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

// Middleware records metrics for every HTTP request.
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

// VoucherCommitted counts one committed voucher and its generated siblings.
func (m *Metrics) VoucherCommitted(voucherType string, generated int) {
	if m == nil {
		return
	}
	m.vouchersCommitted.WithLabelValues(voucherType).Inc()
	if generated > 0 {
		m.vouchersGenerated.WithLabelValues(voucherType).Add(float64(generated))
	}
}

// VoucherRejected counts one rejected authoring attempt.
func (m *Metrics) VoucherRejected(kind string) {
	if m == nil {
		return
	}
	m.vouchersRejected.WithLabelValues(kind).Inc()
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
