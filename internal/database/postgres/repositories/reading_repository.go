package repositories

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rain-gauge-sync/internal/models"
)

type ReadingRepository struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewReadingRepository(db *gorm.DB, logger zerolog.Logger) *ReadingRepository {
	return &ReadingRepository{db: db, logger: logger}
}

// BulkInsertResult reports what a bulk insert actually changed.
// AffectedMonths holds the (year, month) buckets that received at least one
// new row; aggregate recomputation is driven only by those.
type BulkInsertResult struct {
	Inserted       int
	Duplicates     int
	AffectedMonths map[models.YearMonth]struct{}
}

// BulkInsert inserts readings one by one with ON CONFLICT DO NOTHING on
// (reading_instant, station_id). Duplicates are counted, not updated.
func (r *ReadingRepository) BulkInsert(ctx context.Context, readings []*models.Reading) (*BulkInsertResult, error) {
	result := &BulkInsertResult{
		AffectedMonths: make(map[models.YearMonth]struct{}),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, reading := range readings {
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "reading_instant"}, {Name: "station_id"}},
				DoNothing: true,
			}).Create(reading)
			if res.Error != nil {
				return res.Error
			}

			if res.RowsAffected > 0 {
				result.Inserted++
				result.AffectedMonths[reading.Bucket()] = struct{}{}
			} else {
				result.Duplicates++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info().
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("affected_months", len(result.AffectedMonths)).
		Msg("Bulk insert complete")

	return result, nil
}

// FindByDateRange returns readings for a station within [start, end),
// newest first.
func (r *ReadingRepository) FindByDateRange(ctx context.Context, stationID string, start, end time.Time) ([]*models.Reading, error) {
	var readings []*models.Reading
	err := r.db.WithContext(ctx).
		Where("station_id = ? AND reading_instant >= ? AND reading_instant < ?", stationID, start, end).
		Order("reading_instant DESC").
		Find(&readings).Error
	return readings, err
}

func (r *ReadingRepository) FindLatest(ctx context.Context, stationID string) (*models.Reading, error) {
	var reading models.Reading
	err := r.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("reading_instant DESC").
		First(&reading).Error
	if err != nil {
		return nil, err
	}
	return &reading, nil
}
