package repositories

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rain-gauge-sync/internal/models"
)

// Retry delays per attempt: 5 min after the first failure, 15 after the
// second, 45 from the third on. Jitter of ±20% is applied on top so retries
// released by an upstream outage do not land at the same instant.
var retryDelays = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	45 * time.Minute,
}

const retryJitterFraction = 0.2

type ImportJobRepository struct {
	db     *gorm.DB
	clock  clockwork.Clock
	logger zerolog.Logger
}

func NewImportJobRepository(db *gorm.DB, clock clockwork.Clock, logger zerolog.Logger) *ImportJobRepository {
	return &ImportJobRepository{db: db, clock: clock, logger: logger}
}

// Create enqueues a new pending job. Uniqueness per station is not enforced
// here; callers check ExistsActive first.
func (r *ImportJobRepository) Create(ctx context.Context, stationID, source string, priority, maxRetries int, summary *models.GaugeSnapshot) (uint, error) {
	job := &models.ImportJob{
		StationID:    stationID,
		Status:       models.JobStatusPending,
		Priority:     priority,
		MaxRetries:   maxRetries,
		Source:       source,
		GaugeSummary: summary,
		ErrorHistory: models.ErrorHistory{},
	}

	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return 0, err
	}

	r.logger.Info().
		Uint("job_id", job.ID).
		Str("station_id", stationID).
		Str("source", source).
		Msg("Created import job")

	return job.ID, nil
}

// ExistsActive reports whether the station already has a pending or
// in-progress job.
func (r *ImportJobRepository) ExistsActive(ctx context.Context, stationID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("station_id = ? AND status IN ?", stationID, []models.JobStatus{
			models.JobStatusPending,
			models.JobStatusInProgress,
		}).
		Count(&count).Error
	return count > 0, err
}

// ClaimNext atomically takes the next runnable job: the highest-priority
// pending job (oldest first on ties), or a failed job whose retry window has
// opened. The selected row is locked with FOR UPDATE SKIP LOCKED so
// concurrent claimers never receive the same job; it is moved to in_progress
// before the transaction commits. Returns nil when nothing is runnable.
func (r *ImportJobRepository) ClaimNext(ctx context.Context) (*models.ImportJob, error) {
	var claimed *models.ImportJob
	now := r.clock.Now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Where("status = ? OR (status = ? AND retry_count < max_retries AND next_retry_at <= ?)",
				models.JobStatusPending, models.JobStatusFailed, now).
			Order("priority DESC").
			Order("created_at ASC")

		// SKIP LOCKED needs real row locks; SQLite serializes writers on its
		// own, so the clause is applied on PostgreSQL only.
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var job models.ImportJob
		if err := query.First(&job).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if err := tx.Model(&job).Updates(map[string]interface{}{
			"status":     models.JobStatusInProgress,
			"started_at": now,
		}).Error; err != nil {
			return err
		}

		job.Status = models.JobStatusInProgress
		job.StartedAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}

	if claimed != nil {
		r.logger.Info().
			Uint("job_id", claimed.ID).
			Str("station_id", claimed.StationID).
			Msg("Claimed import job")
	}

	return claimed, nil
}

// MarkCompleted moves an in-progress job to its terminal completed state and
// records the import statistics.
func (r *ImportJobRepository) MarkCompleted(ctx context.Context, jobID uint, stats *models.ImportStats) error {
	now := r.clock.Now().UTC()

	return r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":        models.JobStatusCompleted,
			"completed_at":  now,
			"import_stats":  stats,
			"error_message": nil,
			"next_retry_at": nil,
		}).Error
}

// MarkFailed records the failed attempt, appends to the error history and
// schedules the next retry with backoff. A job whose retry count has reached
// max_retries stays failed for good and is never claimed again.
func (r *ImportJobRepository) MarkFailed(ctx context.Context, jobID uint, errorMessage string, attempt int) error {
	now := r.clock.Now().UTC()
	nextRetryAt := now.Add(retryDelay(attempt))

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.ImportJob
		if err := tx.Where("id = ?", jobID).First(&job).Error; err != nil {
			return err
		}

		history := job.ErrorHistory.Append(models.ErrorEntry{
			Timestamp: now,
			Error:     errorMessage,
			Attempt:   attempt,
		})

		return tx.Model(&job).Updates(map[string]interface{}{
			"status":        models.JobStatusFailed,
			"error_message": errorMessage,
			"error_history": history,
			"retry_count":   attempt,
			"next_retry_at": nextRetryAt,
		}).Error
	})
}

func (r *ImportJobRepository) GetByID(ctx context.Context, jobID uint) (*models.ImportJob, error) {
	var job models.ImportJob
	err := r.db.WithContext(ctx).Where("id = ?", jobID).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListPending returns pending and retryable failed jobs in claim order, for
// monitoring.
func (r *ImportJobRepository) ListPending(ctx context.Context) ([]*models.ImportJob, error) {
	var jobs []*models.ImportJob
	err := r.db.WithContext(ctx).
		Where("status IN ?", []models.JobStatus{models.JobStatusPending, models.JobStatusFailed}).
		Order("priority DESC").
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// retryDelay returns the backoff for the given attempt (1-based) with ±20%
// uniform jitter.
func retryDelay(attempt int) time.Duration {
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(retryDelays) {
		idx = len(retryDelays) - 1
	}

	base := retryDelays[idx]
	jitter := 1 - retryJitterFraction + 2*retryJitterFraction*rand.Float64()
	return time.Duration(float64(base) * jitter)
}
