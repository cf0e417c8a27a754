package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicore/cabinet-scheduling/pkg/logging"
)

type RouterConfig struct {
	Service       SchedulingService
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	SessionSecret string
	Env           string
	Version       string
	Logger        *logging.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health and metrics endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Appointment endpoints, all behind the session actor
	r.Group(func(r chi.Router) {
		r.Use(ActorAuth(cfg.SessionSecret))

		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Patch("/appointments/{id}/schedule", rescheduleAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/status", transitionAppointmentHandler(cfg.Service))
	})

	return r
}
