// Package main is the entry point for the Bookkeeper transaction ingestion
// and double-entry bookkeeping service. It wires the ingestion pipeline
// (dedup, canonical resolution, transfer linking, ledger posting,
// classification), the queue manager with its background workers, the cron
// sweeps and the HTTP API, then runs until a shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/bookkeeper/internal/config"
	"github.com/aristath/bookkeeper/internal/database"
	"github.com/aristath/bookkeeper/internal/events"
	"github.com/aristath/bookkeeper/internal/jobs"
	"github.com/aristath/bookkeeper/internal/modules/accounts"
	"github.com/aristath/bookkeeper/internal/modules/classification"
	"github.com/aristath/bookkeeper/internal/modules/ingest"
	"github.com/aristath/bookkeeper/internal/modules/ledger"
	"github.com/aristath/bookkeeper/internal/modules/normalize"
	"github.com/aristath/bookkeeper/internal/modules/reconciliation"
	"github.com/aristath/bookkeeper/internal/modules/transfers"
	"github.com/aristath/bookkeeper/internal/queue"
	"github.com/aristath/bookkeeper/internal/scheduler"
	"github.com/aristath/bookkeeper/internal/server"
	"github.com/aristath/bookkeeper/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Str("data_dir", cfg.DataDir).Int("port", cfg.Port).Msg("Starting bookkeeper")

	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "bookkeeper.db"),
		Profile: database.ProfileLedger,
		Name:    "bookkeeper",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	conn := db.Conn()
	bus := events.NewBus()

	// Repositories
	accountRepo := accounts.NewRepository(conn, log)
	rawRepo := ingest.NewRawRepository(conn, log)
	canonicalRepo := normalize.NewCanonicalRepository(conn, log)
	linkRepo := transfers.NewLinkRepository(conn, log)
	entryRepo := ledger.NewEntryRepository(conn, log)
	categoryRepo := classification.NewCategoryRepository(conn, log)
	classificationRepo := classification.NewRepository(conn, log)
	runRepo := reconciliation.NewRunRepository(conn, log)

	if err := categoryRepo.EnsureDefaults(); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed categories")
	}

	// Pipeline services
	resolver := normalize.NewResolver(canonicalRepo, log)
	merger := normalize.NewPendingMerger(canonicalRepo, log)
	linker := transfers.NewLinker(canonicalRepo, linkRepo, log)
	poster := ledger.NewPoster(canonicalRepo, accountRepo, linkRepo, classificationRepo, entryRepo, log)
	classifier := classification.NewClassifier(canonicalRepo, classificationRepo, categoryRepo, log)
	reconciler := reconciliation.NewReconciler(accountRepo, entryRepo, rawRepo, runRepo, bus, log)
	ingestService := ingest.NewService(accountRepo, rawRepo, resolver, merger, linker, poster, classifier, bus, log)

	// Queues and background workers
	manager := queue.NewManager(log)
	jobHandlers := jobs.NewHandlers(linker, classifier, poster, reconciler, ingestService, log)
	jobHandlers.Register(manager, cfg.PipelineWorkers, cfg.IngestWorkers)
	queue.RegisterListeners(bus, manager, log)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	manager.Start(workerCtx)

	// Scheduled sweeps
	sched := scheduler.New(log)
	err = scheduler.RegisterSweeps(sched,
		scheduler.NewClassificationSweep(canonicalRepo, manager, log),
		scheduler.NewTransferSweep(accountRepo, manager, log),
		scheduler.NewReconciliationSweep(accountRepo, manager, log),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register sweeps")
	}
	sched.Start()

	// HTTP API
	apiHandlers := server.NewHandlers(
		ingestService, canonicalRepo, linkRepo, runRepo,
		reconciler, classifier, accountRepo, manager,
		bus, log,
	)
	srv := server.New(server.Config{
		Log:      log,
		Handlers: apiHandlers,
		System:   server.NewSystemHandlers(db, manager, log),
		Port:     cfg.Port,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Info().Str("signal", received.String()).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}

	sched.Stop()
	stopWorkers()
	manager.Wait()

	log.Info().Msg("Shutdown complete")
}
