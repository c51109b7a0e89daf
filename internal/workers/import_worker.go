package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"rain-gauge-sync/internal/models"
	"rain-gauge-sync/internal/observability"
	"rain-gauge-sync/internal/services"
)

// Importer runs one station import end to end.
type Importer interface {
	Import(ctx context.Context, stationID string) (*models.ImportStats, error)
}

// JobQueue is the durable queue the worker drains. ClaimNext must be atomic
// across concurrent workers.
type JobQueue interface {
	ClaimNext(ctx context.Context) (*models.ImportJob, error)
	MarkCompleted(ctx context.Context, jobID uint, stats *models.ImportStats) error
	MarkFailed(ctx context.Context, jobID uint, errorMessage string, attempt int) error
}

// ImportWorker polls the job queue and executes imports one at a time. Job
// failures are recorded and never crash the loop; only queue transport
// errors are logged and waited out.
type ImportWorker struct {
	id           int
	jobs         JobQueue
	importer     Importer
	pollInterval time.Duration
	clock        clockwork.Clock
	logger       zerolog.Logger
	metrics      *observability.Metrics
}

func NewImportWorker(
	id int,
	jobs JobQueue,
	importer Importer,
	pollInterval time.Duration,
	clock clockwork.Clock,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *ImportWorker {
	return &ImportWorker{
		id:           id,
		jobs:         jobs,
		importer:     importer,
		pollInterval: pollInterval,
		clock:        clock,
		logger:       logger,
		metrics:      metrics,
	}
}

// Run polls until the context is cancelled. Cancellation is observed at poll
// boundaries; an in-flight import finishes its current attempt.
func (w *ImportWorker) Run(ctx context.Context) {
	w.logger.Info().
		Int("worker_id", w.id).
		Dur("poll_interval", w.pollInterval).
		Msg("Import worker started")

	ticker := w.clock.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Int("worker_id", w.id).Msg("Import worker stopping")
			return
		case <-ticker.Chan():
		}

		if err := w.processNextJob(ctx); err != nil {
			w.logger.Error().
				Err(err).
				Int("worker_id", w.id).
				Msg("Error processing job")
		}
	}
}

// processNextJob claims and runs at most one job. The returned error covers
// queue failures only; import failures are recorded on the job instead.
func (w *ImportWorker) processNextJob(ctx context.Context) error {
	job, err := w.jobs.ClaimNext(ctx)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	w.metrics.JobsClaimed.Inc()
	w.metrics.ImportsInFlight.Inc()
	defer w.metrics.ImportsInFlight.Dec()

	w.logger.Info().
		Int("worker_id", w.id).
		Uint("job_id", job.ID).
		Str("station_id", job.StationID).
		Msg("Claimed FOPR import job")

	start := w.clock.Now()
	stats, err := w.importer.Import(ctx, job.StationID)
	w.metrics.ImportDuration.Observe(w.clock.Since(start).Seconds())

	if err == nil {
		w.metrics.JobsCompleted.Inc()
		w.logger.Info().
			Int("worker_id", w.id).
			Uint("job_id", job.ID).
			Str("station_id", job.StationID).
			Int("readings_imported", stats.ReadingsImported).
			Msg("Job completed")
		return w.jobs.MarkCompleted(ctx, job.ID, stats)
	}

	kind := "unknown"
	var importErr *services.ImportError
	if errors.As(err, &importErr) {
		kind = string(importErr.Kind)
	}
	w.metrics.JobsFailed.WithLabelValues(kind).Inc()

	attempt := job.RetryCount + 1
	w.logger.Warn().
		Err(err).
		Int("worker_id", w.id).
		Uint("job_id", job.ID).
		Str("station_id", job.StationID).
		Int("attempt", attempt).
		Msg("Job failed")

	if markErr := w.jobs.MarkFailed(ctx, job.ID, err.Error(), attempt); markErr != nil {
		return markErr
	}

	if attempt >= job.MaxRetries {
		w.logger.Error().
			Int("worker_id", w.id).
			Uint("job_id", job.ID).
			Str("station_id", job.StationID).
			Int("attempt", attempt).
			Int("max_retries", job.MaxRetries).
			Msg("Job exceeded max retries, giving up")
	}

	return nil
}

// RunPool starts count workers and blocks until all of them have observed
// cancellation and returned.
func RunPool(ctx context.Context, count int, newWorker func(id int) *ImportWorker) {
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		worker := newWorker(i + 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}
	wg.Wait()
}
