package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	recordedTotal   *prometheus.CounterVec
	recordedItems   prometheus.Histogram
	failuresTotal   *prometheus.CounterVec
	jobsTotal       *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "securekasir_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "securekasir_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	recorded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "securekasir_transactions_recorded_total",
		Help: "Jumlah transaksi tersimpan per metode pembayaran.",
	}, []string{"payment_method"})
	items := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "securekasir_transaction_items",
		Help:    "Jumlah baris item per transaksi tersimpan.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "securekasir_transaction_failures_total",
		Help: "Jumlah transaksi yang gagal disimpan per alasan.",
	}, []string{"reason"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "securekasir_jobs_total",
		Help: "Jumlah eksekusi job latar belakang per tipe dan hasil.",
	}, []string{"task", "result"})
	registry.MustRegister(requests, duration, recorded, items, failures, jobs)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		recordedTotal:   recorded,
		recordedItems:   items,
		failuresTotal:   failures,
		jobsTotal:       jobs,
	}
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

// Middleware mencatat metrik untuk setiap permintaan HTTP.
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

// ObserveRecorded mencatat transaksi yang berhasil di-commit.
func (m *Metrics) ObserveRecorded(paymentMethod string, items int) {
	if m == nil {
		return
	}
	m.recordedTotal.WithLabelValues(paymentMethod).Inc()
	m.recordedItems.Observe(float64(items))
}

// ObserveFailure mencatat transaksi yang ditolak atau gagal disimpan.
func (m *Metrics) ObserveFailure(reason string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(reason).Inc()
}

// ObserveJob mencatat hasil eksekusi job.
func (m *Metrics) ObserveJob(task string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.jobsTotal.WithLabelValues(task, result).Inc()
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
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
