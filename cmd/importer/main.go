package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"rain-gauge-sync/internal/config"
	"rain-gauge-sync/internal/database/postgres"
	"rain-gauge-sync/internal/database/postgres/repositories"
	"rain-gauge-sync/internal/downloader"
	"rain-gauge-sync/internal/fopr"
	"rain-gauge-sync/internal/logger"
	"rain-gauge-sync/internal/observability"
	"rain-gauge-sync/internal/services"
	"rain-gauge-sync/internal/workers"
)

type Application struct {
	config *config.Config
	clock  clockwork.Clock

	postgresDB *postgres.PostgresDB

	gaugeRepository   *repositories.GaugeRepository
	readingRepository *repositories.ReadingRepository
	monthlyRepository *repositories.MonthlySummaryRepository
	jobRepository     *repositories.ImportJobRepository

	downloader    *downloader.Downloader
	dailyParser   *fopr.DailyDataParser
	importService *services.ImportService

	metrics       *observability.Metrics
	metricsServer *http.Server

	shutdownChan chan os.Signal
	ctx          context.Context
	cancelFunc   context.CancelFunc
}

func main() {
	app := &Application{}

	if err := app.initialize(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}

	if err := app.run(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run application")
	}
}

func (app *Application) initialize() error {
	var err error

	app.config, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.NewLogger(app.config.Logger)
	log.Info().
		Str("component", "main").
		Int("worker_concurrency", app.config.Worker.Concurrency).
		Msg("Setting up FOPR importer...")

	app.clock = clockwork.NewRealClock()
	app.ctx, app.cancelFunc = context.WithCancel(context.Background())
	app.shutdownChan = make(chan os.Signal, 1)
	signal.Notify(app.shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.initializeDatabase(); err != nil {
		return fmt.Errorf("error while initializing database: %w", err)
	}

	if err := app.initializeRepositories(); err != nil {
		return fmt.Errorf("error while initializing repositories: %w", err)
	}

	if err := app.initializeServices(); err != nil {
		return fmt.Errorf("error while initializing services: %w", err)
	}

	app.initializeMetrics()

	log.Info().Msg("Successfully initialized application")
	return nil
}

func (app *Application) initializeDatabase() error {
	var err error

	app.postgresDB, err = postgres.NewConnection(app.config.Postgres)
	if err != nil {
		return fmt.Errorf("could not connect to PostgreSQL: %w", err)
	}

	log.Info().
		Str("component", "main").
		Str("host", app.config.Postgres.Host).
		Msg("Successfully initialized database")
	return nil
}

func (app *Application) initializeRepositories() error {
	db := app.postgresDB.GetDB()

	app.gaugeRepository = repositories.NewGaugeRepository(db)
	app.readingRepository = repositories.NewReadingRepository(db, logger.GetLogger("reading-repository"))
	app.monthlyRepository = repositories.NewMonthlySummaryRepository(db, logger.GetLogger("monthly-repository"))
	app.jobRepository = repositories.NewImportJobRepository(db, app.clock, logger.GetLogger("job-repository"))

	log.Info().
		Str("component", "main").
		Msg("Successfully initialized repositories")
	return nil
}

func (app *Application) initializeServices() error {
	app.metrics = observability.NewMetrics()
	app.downloader = downloader.NewDownloader(app.config.Download, logger.GetLogger("downloader"))
	app.dailyParser = fopr.NewDailyDataParser(app.clock, logger.GetLogger("daily-parser"))

	app.importService = services.NewImportService(
		app.downloader,
		app.gaugeRepository,
		app.readingRepository,
		app.monthlyRepository,
		app.jobRepository,
		app.dailyParser,
		app.clock,
		logger.GetLogger("import-service"),
		app.metrics,
	)

	log.Info().
		Str("component", "main").
		Msg("Successfully initialized services")
	return nil
}

func (app *Application) initializeMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:    app.config.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := app.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	log.Info().
		Str("component", "main").
		Str("addr", app.config.Metrics.Addr).
		Msg("Metrics endpoint listening")
}

func (app *Application) run() error {
	poolDone := make(chan struct{})

	go func() {
		defer close(poolDone)
		workers.RunPool(app.ctx, app.config.Worker.Concurrency, func(id int) *workers.ImportWorker {
			return workers.NewImportWorker(
				id,
				app.jobRepository,
				app.importService,
				app.config.Worker.PollInterval,
				app.clock,
				logger.GetLogger("import-worker"),
				app.metrics,
			)
		})
	}()

	log.Info().
		Int("workers", app.config.Worker.Concurrency).
		Msg("Worker pool running")

	select {
	case sig := <-app.shutdownChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-app.ctx.Done():
		log.Info().Msg("Context cancelled, shutting down application")
	}

	return app.shutdown(poolDone)
}

func (app *Application) shutdown(poolDone chan struct{}) error {
	app.cancelFunc()

	// Workers stop at their next poll boundary; give in-flight imports a
	// moment to record their outcome.
	select {
	case <-poolDone:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Timed out waiting for workers to stop")
	}

	if app.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down metrics server")
		}
	}

	if app.postgresDB != nil {
		if err := app.postgresDB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing PostgreSQL connection")
		}
	}

	return nil
}
