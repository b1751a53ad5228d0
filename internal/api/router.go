package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/postplan/postplan/internal/database"
	mw "github.com/postplan/postplan/internal/middleware"
	inats "github.com/postplan/postplan/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	Generate        http.HandlerFunc
	Usage           http.HandlerFunc
	ListUsageEvents http.HandlerFunc

	// AuthMiddleware is nil when token verification is disabled.
	AuthMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins  []string
	GenerateRateLimiter func(http.Handler) http.Handler
}

// Dependencies are the infrastructure handles probed by /health/ready.
// NATS is optional.
type Dependencies struct {
	DB    *pgxpool.Pool
	Redis redis.UniversalClient
	NATS  *inats.Client
}

func NewRouter(deps Dependencies, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readiness := func(w http.ResponseWriter, r *http.Request) {
		health, ok := checkDependencies(r.Context(), deps)
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}
		JSON(w, status, health)
	}
	r.Get("/health/ready", readiness)
	r.Get("/health", readiness)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if h.AuthMiddleware != nil {
			r.Use(h.AuthMiddleware)
		}

		r.Group(func(r chi.Router) {
			if cfg.GenerateRateLimiter != nil {
				r.Use(cfg.GenerateRateLimiter)
			}
			r.Post("/generate", h.Generate)
		})

		r.Get("/usage", h.Usage)
		if h.ListUsageEvents != nil {
			r.Get("/usage/events", h.ListUsageEvents)
		}
	})

	return r
}

func checkDependencies(ctx context.Context, deps Dependencies) (map[string]string, bool) {
	health := map[string]string{
		"status":   "healthy",
		"database": "healthy",
		"redis":    "healthy",
		"nats":     "healthy",
	}
	ok := true

	degrade := func(key, state string) {
		health[key] = state
		health["status"] = "degraded"
		ok = false
	}

	switch {
	case deps.DB == nil:
		health["database"] = "not configured"
	case database.HealthCheck(ctx, deps.DB) != nil:
		degrade("database", "unhealthy")
	}

	switch {
	case deps.Redis == nil:
		health["redis"] = "not configured"
	case deps.Redis.Ping(ctx).Err() != nil:
		degrade("redis", "unhealthy")
	}

	switch {
	case deps.NATS == nil:
		health["nats"] = "not configured"
	case !deps.NATS.Healthy():
		degrade("nats", "unhealthy")
	}

	return health, ok
}
