package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/poyrazK/keypanel/internal/adapters/api"
	"github.com/poyrazK/keypanel/internal/adapters/repository"
	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
	"github.com/poyrazK/keypanel/internal/core/services"
)

// newPanelServer serves the connect endpoint over repo with the given counter mode.
func newPanelServer(repo ports.PanelRepository, mode services.CounterMode, logger *slog.Logger) (*httptest.Server, *services.AsyncAudit) {
	settings := services.NewSettingsProvider(repo, nil, 0, domain.CredentialPair{}, logger)
	audit := services.NewAsyncAudit(repo, logger)
	svc := services.NewRedemptionService(repo, settings, audit, services.RedemptionConfig{CounterMode: mode}, logger)
	mux := http.NewServeMux()
	api.NewAPIHandler(svc, nil, logger).RegisterRoutes(mux)
	return httptest.NewServer(mux), audit
}

// runRaceTest fires concurrent first-time redemptions of one key per counter
// mode against a throwaway Postgres and reports how many devices got in.
func runRaceTest(ctx context.Context, cfg benchConfig, maxDevices int, out io.Writer) error {
	fmt.Fprintln(out, "Starting PostgreSQL Container...")
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("keypanel_bench"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432").
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return fmt.Errorf("start postgres: %w", err)
	}
	defer func() { _ = pgContainer.Terminate(ctx) }()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return err
	}
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repository.NewPostgresRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	for _, mode := range []services.CounterMode{services.CounterLegacy, services.CounterAtomic} {
		key, err := seedPanel(ctx, repo, cfg.Endpoint, maxDevices)
		if err != nil {
			return err
		}
		srv, audit := newPanelServer(repo, mode, logger)

		run := cfg
		run.Server, run.Key = srv.URL, key
		run.APIKey, run.Secret = benchCredentials.APIKey, benchCredentials.SecretKey
		start := time.Now()
		stats := runBenchmark(run)
		elapsed := time.Since(start)
		srv.Close()
		audit.Wait()

		stored, err := repo.GetKey(ctx, key)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n--- MODE: %s ---\n", mode)
		fmt.Fprintf(out, "max_devices=%d admitted=%d stored current_devices=%d\n", maxDevices, stats.Success, stored.CurrentDevices)
		printReport(out, elapsed, stats, run.Concurrency)
	}
	return nil
}
