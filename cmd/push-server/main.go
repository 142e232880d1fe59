package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	redisAdapter "fwdefense/adapters/redis"
	wsadapter "fwdefense/adapters/websocket"
	"fwdefense/config"
	"fwdefense/realtime"
)

// The push server is a horizontally scalable websocket relay: it holds the
// client connections and mirrors whatever the API server publishes over
// Redis, so slow websocket writers never sit in the scoring path.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	store, err := redisAdapter.New(cfg.Storage.Redis.Options())
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	hub := realtime.NewHub()
	go func() {
		err := redisAdapter.NewSubscriber(store.Client()).Run(ctx, func(payload []byte) {
			hub.Broadcast(ctx, payload)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("broadcast subscription ended", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", wsadapter.Handler(hub))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","connections":%d}`, hub.Subscribers())
	})

	srv := &http.Server{
		Addr:              cfg.Push.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("push server listening", "address", cfg.Push.Address)
		if err := srv.ListenAndServe(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				return
			}
			slog.Error("failed to start push server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down push server", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("error during push server shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("push server stopped")
}
