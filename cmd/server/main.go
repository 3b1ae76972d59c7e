package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/policyhub/internal/cache"
	"github.com/JonMunkholm/policyhub/internal/config"
	"github.com/JonMunkholm/policyhub/internal/core"
	"github.com/JonMunkholm/policyhub/internal/events"
	"github.com/JonMunkholm/policyhub/internal/logging"
	"github.com/JonMunkholm/policyhub/internal/store/memory"
	"github.com/JonMunkholm/policyhub/internal/store/postgres"
	"github.com/JonMunkholm/policyhub/internal/web"
)

// stores groups the three store ports; both backends implement all of them.
type stores interface {
	core.PolicyStore
	core.OperationStore
	core.ReportStore
	web.Pinger
}

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger := slog.Default()
	logger.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	var store stores
	if cfg.Database.InMemory() {
		logger.Warn("using in-memory store; data is lost on restart")
		store = memory.New()
	} else {
		if cfg.Database.AutoMigrate {
			if err := postgres.Migrate(cfg.Database.URL); err != nil {
				logger.Error("failed to apply migrations", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}

		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		// Log which database we connected to
		if u, err := url.Parse(cfg.Database.URL); err == nil {
			logger.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		}
		store = postgres.New(pool)
	}
	checks := map[string]web.Pinger{"database": store}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := core.NewMetrics(reg)

	deps := core.ServiceDeps{
		Policies:   store,
		Operations: store,
		Reports:    store,
		Metrics:    metrics,
		Logger:     logger,
	}

	// Optional summary cache
	redisClient, err := cache.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		deps.Cache = cache.NewSummaryCache(redisClient, cfg.Redis.SummaryTTL, logger)
		checks["redis"] = redisPinger{client: redisClient}
		logger.Info("summary cache enabled", "ttl", cfg.Redis.SummaryTTL)
	}

	// Optional business metric publishing
	publisher, err := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	if err != nil {
		logger.Error("failed to create kafka publisher", "error", err)
		os.Exit(1)
	}
	if publisher != nil {
		deps.Sink = publisher
		checks["kafka"] = publisher
		logger.Info("metric publishing enabled", "topic", cfg.Kafka.Topic, "brokers", len(cfg.Kafka.Brokers))
	}

	service, err := core.NewService(deps, core.ServiceConfig{
		Pipeline: core.PipelineOptions{
			MaxFileSize: cfg.Upload.MaxFileSize,
			Timeout:     cfg.Upload.Timeout,
			Workers:     cfg.Upload.Workers,
		},
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
	})
	if err != nil {
		logger.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	server := web.NewServer(ctx, web.ServerDeps{
		Service:  service,
		Config:   cfg,
		Gatherer: reg,
		Checks:   checks,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Wait for active uploads to complete (with timeout)
	if status := service.UploadStatus(); status.Active > 0 {
		logger.Info("waiting for uploads to complete", "active", status.Active)
		if err := service.WaitForUploads(shutdownCtx); err != nil {
			logger.Warn("uploads did not complete in time", "error", err)
		} else {
			logger.Info("all uploads completed")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := publisher.Close(shutdownCtx); err != nil {
		logger.Warn("metric events not flushed", "error", err)
	}

	logger.Info("server stopped")
}
