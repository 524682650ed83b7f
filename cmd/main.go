package main

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angeloszaimis/api-failover/config"
	"github.com/angeloszaimis/api-failover/internal/backend"
	"github.com/angeloszaimis/api-failover/internal/forwarder"
	"github.com/angeloszaimis/api-failover/internal/handler"
	"github.com/angeloszaimis/api-failover/internal/httpserver"
	"github.com/angeloszaimis/api-failover/internal/lifecycle"
	"github.com/angeloszaimis/api-failover/internal/metrics"
	"github.com/angeloszaimis/api-failover/pkg/logger"
)

const (
	metricsBufferSize = 1000
	redisKeyPrefix    = "api-failover:"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	candidates, err := initializeCandidates(cfg, log)
	if err != nil {
		log.Error("Failed to initialize backends", slog.Any("err", err))
		os.Exit(1)
	}

	store, err := createStore(ctx, log, cfg.Lifecycle.Store)
	if err != nil {
		log.Error("Failed to create cache store",
			slog.String("type", cfg.Lifecycle.Store.Type),
			slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	manager, err := lifecycle.NewManager(logger.Component(log, "lifecycle"), store, cfg.Lifecycle.CacheName)
	if err != nil {
		log.Error("Failed to create lifecycle manager", slog.Any("err", err))
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(metricsBufferSize, logger.Component(log, "metrics"), registry)
	collector.Start(ctx)

	fwd, err := forwarder.New(logger.Component(log, "forwarder"), forwarder.Options{
		Candidates: candidates,
		Origin:     cfg.Forwarder.Origin,
		Timeout:    cfg.AttemptTimeout(),
	}, collector)
	if err != nil {
		log.Error("Failed to create forwarder", slog.Any("err", err))
		os.Exit(1)
	}

	passthroughURL, err := url.Parse(cfg.Passthrough.URL)
	if err != nil {
		log.Error("Failed to parse passthrough URL", slog.Any("err", err))
		os.Exit(1)
	}

	interceptor := handler.NewInterceptorHandler(
		logger.Component(log, "interceptor"),
		cfg.Forwarder.APIPrefix,
		manager,
		fwd,
		backend.NewPassthrough(passthroughURL, log),
		collector,
	)

	logDiagnostics(log, cfg, fwd.Candidates())

	report, err := manager.Start(ctx)
	if err != nil {
		log.Error("Failed to activate interceptor", slog.Any("err", err))
		os.Exit(1)
	}
	if report.Err != nil {
		log.Warn("Activation finished with cleanup errors", slog.Any("err", report.Err))
	}

	mux := setupRouter(interceptor, collector, registry, cfg.Metrics.Path)

	srv, err := httpserver.New(cfg.Server.Address, mux, httpserver.WriteBudget(cfg.AttemptTimeout(), len(candidates)))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	log.Info("Interceptor listening", slog.String("address", cfg.Server.Address))

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting interceptor", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func initializeCandidates(cfg *config.Config, log *slog.Logger) ([]*backend.Candidate, error) {
	var candidates []*backend.Candidate

	for _, bc := range cfg.Candidates() {
		c, err := backend.Parse(bc.URL, bc.NaturalOrigin)
		if err != nil {
			log.Error("Failed to parse backend URL",
				slog.String("url", bc.URL),
				slog.String("error", err.Error()))
			return nil, err
		}

		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return nil, forwarder.ErrNoCandidates
	}

	return candidates, nil
}

func createStore(ctx context.Context, log *slog.Logger, sc config.StoreConfig) (lifecycle.Store, error) {
	switch sc.Type {
	case config.StoreMemory:
		return lifecycle.NewMemoryStore(), nil
	case config.StoreRedis:
		if sc.RedisURL == "" {
			return nil, errors.New("redis store requires a redis_url")
		}
		return lifecycle.DialRedisStore(ctx, sc.RedisURL, redisKeyPrefix)
	default:
		log.Warn("Unknown store type, defaulting to memory", slog.String("requested", sc.Type))
		return lifecycle.NewMemoryStore(), nil
	}
}

func logDiagnostics(log *slog.Logger, cfg *config.Config, candidates []string) {
	log.Info("Interceptor configuration",
		slog.String("api_prefix", cfg.Forwarder.APIPrefix),
		slog.String("origin", cfg.Forwarder.Origin),
		slog.Duration("attempt_timeout", cfg.AttemptTimeout()),
		slog.String("passthrough", cfg.Passthrough.URL),
		slog.String("cache", cfg.Lifecycle.CacheName))

	for i, c := range candidates {
		role := "fallback"
		if i == 0 {
			role = "preferred"
		}
		log.Info("Backend candidate",
			slog.Int("priority", i+1),
			slog.String("role", role),
			slog.String("url", c))
	}
}
