package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	ctftimeadapter "github.com/squadctf/ctfsync/internal/adapter/driven/ctftime"
	"github.com/squadctf/ctfsync/internal/adapter/driven/platform"
	sqliteadapter "github.com/squadctf/ctfsync/internal/adapter/driven/sqlite"
	httphandler "github.com/squadctf/ctfsync/internal/adapter/driving/http"
	"github.com/squadctf/ctfsync/internal/application"
	"github.com/squadctf/ctfsync/internal/config"
	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"calendar_url", cfg.CalendarURL,
		"calendar_interval", cfg.CalendarInterval,
	)
	if !cfg.HasSecretKey() {
		slog.Warn("CTFSYNC_SECRET_KEY not set, competitions cannot store platform credentials")
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire stores.
	competitionStore := sqliteadapter.NewCompetitionRepo(db)
	challengeStore := sqliteadapter.NewChallengeRepo(db)
	solverStore := sqliteadapter.NewSolverRepo(db)
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	calendarStore := sqliteadapter.NewCalendarRepo(db)

	// 6. Wire application services.
	slots := application.NewSlotTable(cfg.SlotTimeout, slog.Default())

	factory := func(kind model.PlatformKind, baseURL string) (driven.PlatformClient, error) {
		return platform.NewClient(kind, baseURL, cfg.HTTPTimeout)
	}

	registry := application.NewRegistry(competitionStore, credentialStore, factory, slots, slog.Default())
	defer registry.Close()

	ledger := application.NewLedger(registry, challengeStore, solverStore, slog.Default())
	coordinator := application.NewCoordinator(registry, ledger, slots, slog.Default())

	// 7. Start the calendar ingestor.
	feed := ctftimeadapter.NewClient(cfg.CalendarURL, cfg.HTTPTimeout)
	ingestor := application.NewIngestor(feed, calendarStore, registry, cfg.CalendarHorizon, cfg.CalendarInterval, slog.Default())
	go ingestor.Start(ctx)

	// 8. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(registry, ledger, coordinator, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("ctfsync started",
		"listen_addr", cfg.ListenAddr,
		"calendar_horizon", cfg.CalendarHorizon,
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
