package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-ledger/internal/appointment"
)

type RouterConfig struct {
	Service *appointment.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Metrics *Metrics
	Logger  zerolog.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	h := &handlers{
		svc:     cfg.Service,
		metrics: metrics,
		log:     cfg.Logger,
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(metrics.Middleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/slots", h.querySlots)
		r.Get("/day", h.dayGrid)
		r.Post("/blocks", h.block)
	})

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.book)
		r.Get("/{id}", h.getAppointment)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/cancel", h.cancel)
		r.Patch("/{id}/symptoms", h.editSymptoms)
		r.Post("/{id}/complete", h.complete)
	})

	r.Get("/reports/appointments", h.report)
	r.Get("/knowledge", h.knowledge)

	return r
}
