package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/custody-vault/internal/vault"
)

// Metrics memegang registry Prometheus milik proses vault: metrik HTTP,
// hasil operasi vault dan status jam likuidasi.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge

	operations *prometheus.CounterVec
	armed      prometheus.Gauge
	deadline   prometheus.Gauge
	delay      prometheus.Gauge

	mu   sync.Mutex
	last vault.ClockStatus
}

// NewMetrics menginisialisasi registry beserta seluruh kolektor vault.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_http_requests_total",
			Help: "Jumlah permintaan HTTP berdasarkan method, route dan status.",
		}, []string{"method", "route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_http_request_duration_seconds",
			Help:    "Durasi permintaan HTTP per method dan route.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vault_http_in_flight_requests",
			Help: "Permintaan HTTP yang sedang diproses.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_operations_total",
			Help: "Jumlah operasi vault berdasarkan operasi dan hasil.",
		}, []string{"operation", "outcome"}),
		armed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vault_liquidation_armed",
			Help: "1 bila jam likuidasi sedang berjalan, 0 bila idle.",
		}),
		deadline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vault_liquidation_deadline_seconds",
			Help: "Tenggat likuidasi dalam detik unix; 0 bila idle.",
		}),
		delay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vault_liquidation_delay_seconds",
			Help: "Penundaan likuidasi yang dikonfigurasi.",
		}),
	}
	registry.MustRegister(
		m.requestsTotal, m.requestDuration, m.inFlight,
		m.operations, m.armed, m.deadline, m.delay,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP. Route diambil
// dari pola chi agar /vault/balances/{token} tidak memecah label.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk kolektor tambahan (mis. job metrics).
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
	return "unmatched"
}
