package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Admission outcomes recorded by the booking service.
const (
	OutcomeAdmitted   = "admitted"
	OutcomeInvalid    = "invalid"
	OutcomeNotFound   = "not_found"
	OutcomeSlotTaken  = "slot_taken"
	OutcomeContention = "contention"
	OutcomeError      = "error"
)

type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	Admissions          *prometheus.CounterVec
	SlotQueries         prometheus.Counter
	StatusChanges       *prometheus.CounterVec
}

// New registers all collectors on reg. Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medbook_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "medbook_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Admissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medbook_booking_admissions_total",
				Help: "Booking submissions by outcome",
			},
			[]string{"outcome"},
		),
		SlotQueries: f.NewCounter(
			prometheus.CounterOpts{
				Name: "medbook_slot_queries_total",
				Help: "Slot availability computations",
			},
		),
		StatusChanges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medbook_booking_status_changes_total",
				Help: "Booking status transitions by target status",
			},
			[]string{"to"},
		),
	}
}

// The record helpers are nil safe so callers can run without metrics.

func (m *Metrics) RecordAdmission(outcome string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordSlotQuery() {
	if m == nil {
		return
	}
	m.SlotQueries.Inc()
}

func (m *Metrics) RecordStatusChange(to string) {
	if m == nil {
		return
	}
	m.StatusChanges.WithLabelValues(to).Inc()
}

// Middleware records request count and latency labelled by the chi route pattern,
// so /api/doctors/{id} stays one series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
