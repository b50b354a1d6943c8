// cartd keeps a local shopping cart reconciled with the commerce cart API
// and exposes it to the storefront over HTTP, SSE and MCP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"cartsync/internal/cart"
	"cartsync/internal/config"
	"cartsync/internal/fanout"
	"cartsync/internal/handler"
	"cartsync/internal/middleware"
	"cartsync/internal/session"
	"cartsync/internal/storeapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("api_base_url", cfg.API.BaseURL),
		slog.Duration("poll_interval", cfg.PollInterval),
		slog.Bool("chrome_tls", cfg.API.ChromeTLS),
		slog.Bool("fanout", cfg.Redis.Addr != ""),
	)

	// The session is the bearer token source for every cart API request
	sess := session.New()

	client, err := storeapi.New(storeapi.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.RequestTimeout,
		ChromeTLS: cfg.API.ChromeTLS,
		Tokens:    sess,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("creating cart API client: %w", err)
	}
	defer client.Close()

	if cfg.API.MinVersion != "" {
		if err := checkCompatibility(ctx, client, cfg, logger); err != nil {
			return err
		}
	}

	rec := cart.NewReconciler(client, sess, cart.Options{
		Logger:         logger,
		RequestTimeout: cfg.API.RequestTimeout,
	})
	defer rec.Close()
	unbind := rec.Bind(sess)
	defer unbind()

	// A configured service token logs in at startup
	if cfg.API.Token != "" {
		sess.Login(cfg.API.Token)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()

		bridge := fanout.NewRedisBridge(rdb, cfg.Redis.Channel, logger)
		detach := bridge.Attach(rec, rec.Store())
		// Detach before closing so no handler enqueues into a closed bridge
		defer bridge.Close()
		defer detach()
	}

	poller := cart.NewPoller(rec, cfg.PollInterval, logger)
	pollCtx, stopPolling := context.WithCancel(ctx)
	defer stopPolling()
	poller.Start(pollCtx)
	defer poller.Stop()

	h := handler.New(rec, sess, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request ID → logging → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(mux)

	// Request contexts derive from serveCtx so shutdown can end event streams
	serveCtx, stopServing := context.WithCancel(ctx)
	defer stopServing()

	// No WriteTimeout: /cart/events streams for as long as the client stays
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		BaseContext:       func(net.Listener) context.Context { return serveCtx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	server.RegisterOnShutdown(stopServing)

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		stopPolling()

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// checkCompatibility refuses to start against a cart API older than the
// configured minimum. An unreachable API only warns; the poller retries.
func checkCompatibility(ctx context.Context, client *storeapi.Client, cfg *config.Config, logger *slog.Logger) error {
	probeCtx, cancel := context.WithTimeout(ctx, cfg.API.RequestTimeout)
	defer cancel()

	version, err := client.CheckCompatibility(probeCtx, cfg.API.MinVersion)
	var verErr *storeapi.VersionError
	switch {
	case errors.As(err, &verErr):
		return fmt.Errorf("checking cart API version: %w", err)
	case err != nil:
		logger.Warn("cart API version probe failed", "error", err)
	case version == "":
		logger.Warn("cart API does not advertise a version",
			slog.String("min_api_version", cfg.API.MinVersion))
	default:
		logger.Info("cart API version compatible", slog.String("version", version))
	}
	return nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
