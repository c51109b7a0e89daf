package models

import "time"

// MonthlySummary is the denormalized per-(station, year, month) roll-up over
// rain_readings. It is fully recomputed whenever an import touches the bucket.
type MonthlySummary struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	StationID string `gorm:"size:16;not null;uniqueIndex:idx_monthly_station_year_month" json:"station_id"`
	Year      int    `gorm:"not null;uniqueIndex:idx_monthly_station_year_month" json:"year"`
	Month     int    `gorm:"not null;uniqueIndex:idx_monthly_station_year_month" json:"month"`

	TotalInches  float64 `json:"total_inches"`
	ReadingCount int     `json:"reading_count"`

	FirstReadingInstant time.Time `json:"first_reading_instant"`
	LastReadingInstant  time.Time `json:"last_reading_instant"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (MonthlySummary) TableName() string {
	return "monthly_rainfall_summary"
}
