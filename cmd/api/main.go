package main

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/postplan/postplan/internal/api"
	"github.com/postplan/postplan/internal/audit"
	"github.com/postplan/postplan/internal/auth"
	"github.com/postplan/postplan/internal/config"
	"github.com/postplan/postplan/internal/database"
	"github.com/postplan/postplan/internal/generation"
	"github.com/postplan/postplan/internal/llm"
	mw "github.com/postplan/postplan/internal/middleware"
	inats "github.com/postplan/postplan/internal/nats"
	"github.com/postplan/postplan/internal/profiles"
	iredis "github.com/postplan/postplan/internal/redis"
	"github.com/postplan/postplan/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL
	if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
		slog.Error("running migrations", "error", err)
		os.Exit(1)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// Profile store
	var store profiles.Store
	switch cfg.Quota.Store {
	case config.StoreRedis:
		store = profiles.NewRedisStore(redisClient)
	default:
		store = profiles.NewPostgresStore(pool)
	}
	slog.Info("profile store selected", "store", cfg.Quota.Store, "strict_quota", cfg.Quota.Strict)

	// NATS (optional)
	var (
		natsClient    *inats.Client
		events        generation.EventPublisher
		auditConsumer *audit.Consumer
	)
	auditRepo := audit.NewRepository(pool)
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		events = natsClient.Publisher()
		auditConsumer = audit.NewConsumer(auditRepo, natsClient.Consumers())
	} else {
		slog.Warn("NATS_URL not set, usage events disabled")
	}

	// Text generation backend
	backend := llm.NewChatClient(llm.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		RateRPS:     cfg.LLM.RateRPS,
		RateBurst:   cfg.LLM.RateBurst,
	})

	// Generation gateway
	genSvc := generation.NewService(store, backend, events, generation.Options{
		Model:       backend.Model(),
		Temperature: cfg.LLM.Temperature,
		Defaults: profiles.Defaults{
			PlanUsage:    0,
			MonthlyLimit: cfg.Quota.DefaultMonthlyLimit,
		},
		Strict: cfg.Quota.Strict,
	})
	genHandler := generation.NewHandler(genSvc)
	auditHandler := audit.NewHandler(auditRepo)

	handlers := api.HandlerSet{
		Generate:        genHandler.Generate,
		Usage:           genHandler.Usage,
		ListUsageEvents: auditHandler.ListEvents,
	}
	if cfg.Auth.JWTSecret != "" {
		handlers.AuthMiddleware = auth.Middleware(auth.NewVerifier(cfg.Auth.JWTSecret))
	}

	generateLimiter := mw.NewRateLimiter(redisClient, "generate", cfg.RateLimit.GenerateMax, cfg.RateLimit.GenerateWindowSec)

	router := api.NewRouter(
		api.Dependencies{DB: pool, Redis: redisClient, NATS: natsClient},
		api.RouterConfig{
			CORSAllowedOrigins:  cfg.CORS.AllowedOrigins,
			GenerateRateLimiter: generateLimiter.Middleware,
		},
		handlers,
	)

	srv := server.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The server owns signal handling; its return stops everything else.
		defer cancel()
		return srv.Start(gctx)
	})
	if auditConsumer != nil {
		g.Go(func() error {
			return auditConsumer.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
