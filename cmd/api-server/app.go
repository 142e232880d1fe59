package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	mem "fwdefense/adapters/memory"
	redisAdapter "fwdefense/adapters/redis"
	"fwdefense/analytics"
	"fwdefense/api/httpapi"
	"fwdefense/config"
	"fwdefense/engine"
	"fwdefense/integrations/webhook"
	"fwdefense/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Stats   *analytics.Collector
	Service *engine.GameService
	Handler http.Handler
	Server  *http.Server

	// Subscriber is non-nil in redis mode: broadcasts go through Redis
	// pub/sub and come back to the local hub via this subscription.
	Subscriber *redisAdapter.Subscriber
}

// backend bundles everything a storage adapter choice determines.
type backend struct {
	storage    engine.Storage
	state      engine.StateStore
	sessions   engine.SessionStore
	pub        engine.Publisher
	subscriber *redisAdapter.Subscriber
}

func provideConfig(_ context.Context) (*config.Config, error) {
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideStats() *analytics.Collector {
	return analytics.NewCollector()
}

func provideBackend(cfg *config.Config, hub *realtime.Hub) (*backend, func(), error) {
	b, cleanup, err := setupBackend(cfg, hub)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Notify.WebhookURL != "" {
		b.pub = engine.MultiPublisher{b.pub, webhook.New([]string{cfg.Notify.WebhookURL})}
	}
	return b, cleanup, nil
}

func provideSubscriber(b *backend) *redisAdapter.Subscriber {
	return b.subscriber
}

func provideService(b *backend, stats *analytics.Collector) *engine.GameService {
	return engine.NewGameService(b.storage, b.state, b.pub, engine.WithStats(stats))
}

func provideHandler(svc *engine.GameService, b *backend, hub *realtime.Hub, stats *analytics.Collector, cfg *config.Config) http.Handler {
	return httpapi.NewMux(svc, b.sessions, hub, stats, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		AdminAPIKey:      cfg.Security.AdminAPIKey,
		SessionTTL:       cfg.Security.SessionTTL,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupBackend creates the storage adapter and its matching publisher.
func setupBackend(cfg *config.Config, hub *realtime.Hub) (*backend, func(), error) {
	switch cfg.Storage.Adapter {
	case "memory":
		store := mem.New()
		return &backend{
			storage:  store,
			state:    store,
			sessions: store,
			pub:      realtime.NewHubPublisher(hub),
		}, func() {}, nil
	case "redis":
		store, err := redisAdapter.New(cfg.Storage.Redis.Options())
		if err != nil {
			return nil, nil, err
		}
		return &backend{
			storage:    store,
			state:      store,
			sessions:   store,
			pub:        redisAdapter.NewPublisher(store.Client()),
			subscriber: redisAdapter.NewSubscriber(store.Client()),
		}, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
