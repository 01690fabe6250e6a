package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mockha/internal/admin"
	"mockha/internal/config"
	"mockha/internal/entity"
	"mockha/internal/hub"
	"mockha/internal/ledger"
)

func main() {
	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	cfg, err := config.Load(os.Getenv("MOCKHA_CONFIG"), logger)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	store := entity.NewStore(logger)
	if err := store.LoadFixtures(cfg.FixturesFile); err != nil {
		// A missing or broken fixtures file leaves the store empty;
		// tests can still inject state through the control API.
		logger.Error("Failed to load fixtures", zap.Error(err))
	}

	h := hub.New(store, ledger.New(), logger, hub.Config{
		AccessToken: cfg.AccessToken,
		HAVersion:   cfg.HAVersion,
	})

	r := chi.NewRouter()
	r.Get("/api/websocket", h.HandleWebSocket)
	admin.NewServer(h, logger).Register(r)

	// No read/write timeouts: WebSocket sessions stay open
	// indefinitely and the control API has no request deadline.
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	logger.Info("Mock Home Assistant hub started",
		zap.String("addr", cfg.Addr),
		zap.String("ha_version", cfg.HAVersion),
		zap.Int("entities", store.Len()))

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}
}

// newLogger builds a production logger honoring the LOG_LEVEL
// environment variable.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(strings.ToLower(lvl))); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", lvl, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	return cfg.Build()
}
