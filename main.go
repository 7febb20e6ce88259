package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/msomdec/issue-tracker/internal/config"
	"github.com/msomdec/issue-tracker/internal/domain"
	"github.com/msomdec/issue-tracker/internal/handler"
	"github.com/msomdec/issue-tracker/internal/repository/postgres"
	"github.com/msomdec/issue-tracker/internal/repository/sqlite"
	"github.com/msomdec/issue-tracker/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logOpts := &slog.HandlerOptions{Level: cfg.LogLevel}
	logger := slog.New(slog.NewMultiHandler(
		slog.NewTextHandler(os.Stdout, logOpts),
		slog.NewJSONHandler(os.Stderr, logOpts),
	))
	slog.SetDefault(logger)

	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations applied")

	authService := service.NewAuthService(db.Users(), cfg.JWTSecret, cfg.BcryptCost, cfg.TokenTTL)
	issueService := service.NewIssueService(db.Issues())

	limiter := newRateLimiter(cfg)
	defer limiter.Close()

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handler.NewServer(handler.Options{
			Auth:         authService,
			Issues:       issueService,
			Limiter:      limiter,
			DB:           db,
			Metrics:      handler.NewMetrics(),
			CookieSecure: cfg.CookieSecure,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func openDatabase(ctx context.Context, cfg config.Config) (domain.Database, error) {
	if cfg.UsesPostgres() {
		slog.Info("using postgres store")
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	slog.Info("using sqlite store", "path", cfg.DatabaseURL)
	db, err := sqlite.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// newRateLimiter prefers a shared Redis window so limits hold across
// replicas, and falls back to an in-process token bucket.
func newRateLimiter(cfg config.Config) service.RateLimiter {
	perMinute := cfg.AuthRateLimitPerMinute
	if cfg.RateLimitRedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		rl, err := service.NewRedisRateLimiter(ctx, cfg.RateLimitRedisAddr, cfg.RateLimitRedisPassword,
			cfg.RateLimitRedisDB, perMinute, time.Minute)
		if err == nil {
			slog.Info("auth rate limiting via redis", "addr", cfg.RateLimitRedisAddr, "per_minute", perMinute)
			return rl
		}
		slog.Warn("redis rate limiter unavailable, using in-memory limiter", "error", err)
	}
	return service.NewTokenBucket(float64(perMinute)/60, float64(perMinute))
}
