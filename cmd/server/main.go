package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/steuerkern/api/internal/audit"
	"github.com/steuerkern/api/internal/config"
	"github.com/steuerkern/api/internal/database"
	apihandlers "github.com/steuerkern/api/internal/handlers/api"
	"github.com/steuerkern/api/internal/locks"
	"github.com/steuerkern/api/internal/middleware"
	"github.com/steuerkern/api/internal/services/client"
	"github.com/steuerkern/api/internal/services/elster"
	"github.com/steuerkern/api/internal/services/euer"
	"github.com/steuerkern/api/internal/services/records"
	"github.com/steuerkern/api/internal/services/settings"
	"github.com/steuerkern/api/internal/services/susa"
	"github.com/steuerkern/api/internal/services/vatreturn"
)

func main() {
	cfg := config.LoadDev()

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// Connect to database
	pool, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	slog.Info("database connected")

	// Run migrations
	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	slog.Info("migrations complete")

	// Initialize services. The audit trail and period locks sit under
	// everything that writes, so they come first.
	auditSvc := audit.NewService(pool, logger)
	lockSvc := locks.NewService(pool, auditSvc, logger)
	recordsSvc := records.NewService(pool, lockSvc, auditSvc, logger)
	settingsSvc := settings.NewService(pool, logger)
	clientSvc := client.NewService(pool, logger)

	vatSvc := vatreturn.NewService(recordsSvc, logger)
	euerSvc := euer.NewService(recordsSvc, settingsSvc, logger)
	susaSvc := susa.NewService(recordsSvc, logger)

	elsterSvc := elster.NewService(pool, vatSvc, euerSvc, recordsSvc, clientSvc, settingsSvc, logger)
	elsterSvc.ForceTestMode(cfg.SubmissionTestMode)

	handler := apihandlers.NewHandler(
		recordsSvc, lockSvc, auditSvc,
		vatSvc, euerSvc, susaSvc,
		elsterSvc, clientSvc, settingsSvc,
		logger,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, `{"status":"ok"}`)
	})
	handler.RegisterRoutes(mux)

	// Apply middleware stack (CORS for local frontends, rate limiting,
	// logging, recovery)
	var chain http.Handler = mux
	chain = middleware.CORS(cfg.BaseURL)(chain)
	chain = middleware.SecurityHeaders(chain)
	chain = middleware.RateLimiter(20, 40)(chain) // 20 req/s, burst 40 per IP
	chain = middleware.Recover(logger)(chain)
	chain = middleware.RequestLogger(logger)(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      chain,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		slog.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
