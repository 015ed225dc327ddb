package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/medbook/internal/auth"
	"github.com/hackgods/medbook/internal/booking"
	"github.com/hackgods/medbook/internal/metrics"
)

type RouterConfig struct {
	Service  *booking.Service
	Auth     auth.Authenticator
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // served on /metrics when set
	Logger   zerolog.Logger
	Store    Pinger
	Redis    Pinger // optional
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(cfg.Metrics.Middleware)
	r.Use(RecoverMiddleware)

	health := NewHealthHandler(cfg.Store, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/availability", availabilityHandler(cfg.Service))
		r.Post("/bookings", createBookingHandler(cfg.Service))

		r.Get("/doctors", listDoctorsHandler(cfg.Service))
		r.Get("/doctors/{id}", getDoctorHandler(cfg.Service))
		r.Get("/specialties", listSpecialtiesHandler(cfg.Service))

		r.Post("/admin/login", loginHandler(cfg.Auth))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(cfg.Auth, auth.RoleAdmin))

			r.Get("/admin/bookings", listBookingsHandler(cfg.Service))
			r.Get("/admin/bookings/{id}", getBookingHandler(cfg.Service))
			r.Put("/admin/bookings/{id}/status", updateBookingStatusHandler(cfg.Service))

			r.Post("/admin/doctors", createDoctorHandler(cfg.Service))
			r.Put("/admin/doctors/{id}", updateDoctorHandler(cfg.Service))
			r.Delete("/admin/doctors/{id}", deleteDoctorHandler(cfg.Service))

			r.Post("/admin/specialties", createSpecialtyHandler(cfg.Service))
			r.Put("/admin/specialties/{id}", updateSpecialtyHandler(cfg.Service))
			r.Delete("/admin/specialties/{id}", deleteSpecialtyHandler(cfg.Service))
		})
	})

	return r
}
