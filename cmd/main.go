package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	_ "go.uber.org/automaxprocs"

	"github.com/erikmillergalow/impermachat/internal/api"
	"github.com/erikmillergalow/impermachat/internal/config"
	"github.com/erikmillergalow/impermachat/internal/observability"
	"github.com/erikmillergalow/impermachat/internal/rooms"
	"github.com/erikmillergalow/impermachat/internal/templates"
	"github.com/erikmillergalow/impermachat/internal/utils"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize OpenTelemetry
	otelCleanup, err := observability.InitOpenTelemetry("impermachat", "1.0.0", cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	// Initialize structured logger
	logger := utils.NewLogger(cfg.LogLevel)

	// Parse embedded templates
	renderer, err := templates.NewRenderer()
	if err != nil {
		logger.Fatal(context.Background(), "Failed to parse templates: %v", err)
	}

	// Initialize the room registry and its expiration janitor. streamCtx
	// also feeds the HTTP server's BaseContext so live streams end when
	// shutdown begins.
	streamCtx, stopStreams := context.WithCancel(context.Background())
	registry := rooms.NewRegistry(logger)
	go registry.Start(streamCtx)

	// Setup HTTP router
	router := api.NewRouter(registry, renderer, logger, cfg)

	// Prefer a socket handed down by the process supervisor, falling back
	// to a fresh listener on the configured port.
	listener, err := resolveListener(cfg.Port)
	if err != nil {
		logger.Fatal(context.Background(), "Failed to open listener: %v", err)
	}

	// No read or write timeouts: event streams stay open for the life of
	// the room.
	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return streamCtx
		},
	}

	// Start server in goroutine
	go func() {
		logger.Info(context.Background(), "Starting server on %s", listener.Addr())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatal(context.Background(), "Server error: %v", err)
		}
	}()

	// Graceful shutdown setup
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Block until a signal is received
	<-sigChan

	gracefulShutdown(context.Background(), logger, cfg, server, stopStreams, registry, otelCleanup)

	logger.Info(context.Background(), "Application stopped.")
}

// resolveListener returns the first activation socket when the environment
// provides one, otherwise binds the configured port on all interfaces.
func resolveListener(port string) (net.Listener, error) {
	listeners, err := activation.Listeners()
	if err != nil {
		return nil, err
	}
	if len(listeners) > 0 && listeners[0] != nil {
		return listeners[0], nil
	}
	return net.Listen("tcp", "0.0.0.0:"+port)
}

// gracefulShutdown handles the graceful shutdown of all components
func gracefulShutdown(ctx context.Context, logger *utils.Logger, cfg *config.Config, server *http.Server, stopStreams context.CancelFunc, registry *rooms.Registry, otelCleanup func(context.Context) error) {
	logger.Info(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()

	// 1. End live event streams so in-flight SSE responses can complete
	stopStreams()

	// 2. Shut down HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "HTTP server shutdown error: %v", err)
	} else {
		logger.Info(ctx, "HTTP server stopped.")
	}

	// 3. Stop the room registry (halts the janitor, closes room buses)
	registry.Stop()
	logger.Info(ctx, "Room registry stopped.")

	// 4. Shutdown OpenTelemetry
	if otelCleanup != nil {
		if err := otelCleanup(shutdownCtx); err != nil {
			logger.Error(ctx, "OpenTelemetry shutdown error: %v", err)
		} else {
			logger.Info(ctx, "OpenTelemetry shut down.")
		}
	}

	logger.Info(ctx, "Graceful shutdown complete.")
}
