package repositories

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rain-gauge-sync/internal/models"
)

type MonthlySummaryRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewMonthlySummaryRepository(db *gorm.DB, logger zerolog.Logger) *MonthlySummaryRepository {
	return &MonthlySummaryRepository{db: db, logger: logger}
}

// Recompute rebuilds the summary row for one (station, year, month) bucket
// from the underlying readings. Idempotent; recomputing an unchanged bucket
// writes the same totals again.
func (r *MonthlySummaryRepository) Recompute(ctx context.Context, stationID string, year, month int) error {
	start, end := monthRange(year, month)

	var readings []*models.Reading
	err := r.db.WithContext(ctx).
		Where("station_id = ? AND reading_instant >= ? AND reading_instant < ?", stationID, start, end).
		Order("reading_instant ASC").
		Find(&readings).Error
	if err != nil {
		return err
	}

	if len(readings) == 0 {
		r.logger.Debug().
			Str("station_id", stationID).
			Int("year", year).
			Int("month", month).
			Msg("No readings in bucket, skipping summary")
		return nil
	}

	var total float64
	for _, reading := range readings {
		total += reading.IncrementalInches
	}

	summary := &models.MonthlySummary{
		StationID:           stationID,
		Year:                year,
		Month:               month,
		TotalInches:         total,
		ReadingCount:        len(readings),
		FirstReadingInstant: readings[0].ReadingInstant,
		LastReadingInstant:  readings[len(readings)-1].ReadingInstant,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "station_id"}, {Name: "year"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_inches",
			"reading_count",
			"first_reading_instant",
			"last_reading_instant",
			"updated_at",
		}),
	}).Create(summary).Error
}

func (r *MonthlySummaryRepository) FindByStation(ctx context.Context, stationID string) ([]*models.MonthlySummary, error) {
	var summaries []*models.MonthlySummary
	err := r.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("year ASC, month ASC").
		Find(&summaries).Error
	return summaries, err
}

// monthRange returns [first instant of the month, first instant of the next
// month) in UTC.
func monthRange(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
