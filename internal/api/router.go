package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/clinic-queueing/internal/queue"
	"github.com/clinicdesk/clinic-queueing/internal/schedule"
	"github.com/clinicdesk/clinic-queueing/internal/ws"
)

type RouterConfig struct {
	Queue    *queue.Service
	Schedule *schedule.Service
	Hub      *ws.Hub
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/doctors/{doctorID}", func(r chi.Router) {
		r.Get("/slots", availableSlotsHandler(cfg.Schedule))
		r.Get("/queue", listQueueHandler(cfg.Queue))
		r.Get("/queue/stats", statsHandler(cfg.Queue))
		r.Post("/queue/call-next", callNextHandler(cfg.Queue))
	})

	r.Route("/queue", func(r chi.Router) {
		r.Post("/", joinQueueHandler(cfg.Queue))
		r.Patch("/{id}/status", updateStatusHandler(cfg.Queue))
		r.Delete("/{id}", removeFromQueueHandler(cfg.Queue))
		r.Get("/{id}/position", positionHandler(cfg.Queue))
	})

	if cfg.Hub != nil {
		r.Get("/ws/queue/{doctorID}", cfg.Hub.ServeQueue)
	}

	return r
}
