package repositories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rain-gauge-sync/internal/models"
)

type GaugeRepository struct {
	db *gorm.DB
}

func NewGaugeRepository(db *gorm.DB) *GaugeRepository {
	return &GaugeRepository{db: db}
}

// Upsert inserts the gauge or, when a row for the station already exists,
// replaces every metadata attribute with the freshly parsed values.
func (r *GaugeRepository) Upsert(ctx context.Context, gauge *models.Gauge) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "station_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"previous_station_ids",
			"station_type",
			"latitude",
			"longitude",
			"elevation_ft",
			"county",
			"city",
			"location_description",
			"installation_date",
			"data_begins_date",
			"status",
			"avg_annual_precip_inches",
			"complete_years_count",
			"incomplete_months_count",
			"missing_months_count",
			"data_quality_remarks",
			"fopr_metadata",
			"metadata_source",
			"metadata_updated_at",
			"updated_at",
		}),
	}).Create(gauge).Error
}

func (r *GaugeRepository) FindByStationID(ctx context.Context, stationID string) (*models.Gauge, error) {
	var gauge models.Gauge
	err := r.db.WithContext(ctx).Where("station_id = ?", stationID).First(&gauge).Error
	if err != nil {
		return nil, err
	}
	return &gauge, nil
}

func (r *GaugeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Gauge{}).Count(&count).Error
	return count, err
}
