package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poyrazK/keypanel/internal/adapters/api"
	"github.com/poyrazK/keypanel/internal/adapters/cache"
	"github.com/poyrazK/keypanel/internal/adapters/repository"
	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
	"github.com/poyrazK/keypanel/internal/core/services"
	"github.com/poyrazK/keypanel/internal/infrastructure/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("keypanel exited", "error", err)
		os.Exit(1)
	}
}

// app holds the wired request path.
type app struct {
	handler http.Handler
	limiter *api.RateLimiter
	audit   *services.AsyncAudit
}

func newApp(repo ports.PanelRepository, settingsCache ports.Cache, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	mode, err := services.ParseCounterMode(cfg.Devices.CounterMode)
	if err != nil {
		return nil, err
	}

	if cfg.UsesBuiltinFallback() {
		logger.Warn("built-in fallback credential pair is configured; run panelctl rotate-credentials after first start")
	}
	fallback := domain.CredentialPair{APIKey: cfg.Credentials.FallbackAPIKey, SecretKey: cfg.Credentials.FallbackSecretKey}
	settings := services.NewSettingsProvider(repo, settingsCache, cfg.SettingsTTL(), fallback, logger)
	audit := services.NewAsyncAudit(repo, logger)
	svc := services.NewRedemptionService(repo, settings, audit, services.RedemptionConfig{
		Location:    loc,
		CounterMode: mode,
	}, logger)

	limiter := api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
	mux := http.NewServeMux()
	api.NewAPIHandler(svc, limiter, logger).RegisterRoutes(mux)

	handler := api.RequestLogger(logger)(mux)
	if cfg.RateLimit.TrustForwarded {
		handler = api.TrustProxyHeaders(handler)
	}

	return &app{
		handler: handler,
		limiter: limiter,
		audit:   audit,
	}, nil
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}()

	repo := repository.NewPostgresRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	l1 := cache.NewMemoryCache(time.Minute)
	defer l1.Close()
	var settingsCache ports.Cache = l1
	if cfg.Redis.Addr != "" {
		l2 := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer func() {
			if err := l2.Close(); err != nil {
				logger.Warn("failed to close redis", "error", err)
			}
		}()
		tiered := cache.NewTiered(l1, l2, logger)
		go tiered.Listen(ctx)
		settingsCache = tiered
		logger.Info("settings cache backed by redis", "addr", cfg.Redis.Addr)
	}

	a, err := newApp(repo, settingsCache, cfg, logger)
	if err != nil {
		return err
	}
	go a.limiter.Run(ctx, time.Minute)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("keypanel listening", "addr", cfg.Server.Addr, "counter_mode", cfg.Devices.CounterMode, "timezone", cfg.Display.Timezone)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	a.audit.Wait()
	return nil
}
