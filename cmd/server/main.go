package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/StevenCC12/server-side-capi/internal/adapter/api"
	"github.com/StevenCC12/server-side-capi/internal/adapter/api/middleware"
	"github.com/StevenCC12/server-side-capi/internal/adapter/capi"
	"github.com/StevenCC12/server-side-capi/internal/adapter/metrics"
	"github.com/StevenCC12/server-side-capi/internal/adapter/pii"
	"github.com/StevenCC12/server-side-capi/internal/adapter/repository/memory"
	redisrepo "github.com/StevenCC12/server-side-capi/internal/adapter/repository/redis"
	"github.com/StevenCC12/server-side-capi/internal/domain"
	"github.com/StevenCC12/server-side-capi/internal/pkg/config"
	"github.com/StevenCC12/server-side-capi/internal/pkg/logger"
	"github.com/StevenCC12/server-side-capi/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.NewRelayMetrics()

	// --- Admin and Metrics Server ---
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())

	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: adminMux,
	}

	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Pending Event Cache ---
	var cache domain.PendingEventCache
	if cfg.RedisAddr != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisAddr)
		if err != nil {
			logger.Error("failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("could not connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		cache = redisrepo.NewPendingEventCache(redisClient, cfg.PendingEventTTL, logger)
		logger.Info("using redis pending event cache")
	} else {
		memCache := memory.NewPendingEventCache(cfg.PendingEventTTL, cfg.PendingEventCapacity, logger)
		defer memCache.Stop()
		cache = memCache
		logger.Info("using in-memory pending event cache",
			"ttl", cfg.PendingEventTTL,
			"capacity", cfg.PendingEventCapacity,
		)
	}

	// --- Pipeline ---
	dispatcher := capi.NewDispatcher(cfg, logger)
	phones := pii.NewPhoneNormalizer(cfg.DefaultPhoneRegion, logger)
	pipeline := usecase.NewProcessEventUseCase(cache, dispatcher, phones, m, cfg, logger)

	// --- Ingest Server ---
	router := api.NewRouter(cfg, logger, pipeline)
	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      middleware.Logging(logger)(router),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.DispatchTimeout + 5*time.Second,
		IdleTimeout:  15 * time.Second,
	}

	go func() {
		logger.Info("starting relay server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("relay server failed", "error", err)
			stop() // Trigger shutdown on server error
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("relay server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}
