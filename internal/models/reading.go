package models

import (
	"fmt"
	"time"
)

// Reading is one daily precipitation measurement, keyed by
// (station_id, reading_instant) where the instant is midnight UTC of the
// measurement date. Duplicate inserts are skipped, never updated.
type Reading struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	StationID      string    `gorm:"size:16;not null;uniqueIndex:idx_readings_instant_station" json:"station_id"`
	ReadingInstant time.Time `gorm:"not null;uniqueIndex:idx_readings_instant_station" json:"reading_instant"`

	// CumulativeInches is a live-scrape artifact; FOPR imports always write 0.
	CumulativeInches  float64 `json:"cumulative_inches"`
	IncrementalInches float64 `json:"incremental_inches"`

	DataSource     string      `gorm:"index" json:"data_source"`
	ImportMetadata MetadataMap `gorm:"type:jsonb" json:"import_metadata"`

	CreatedAt time.Time `json:"created_at"`
}

func (Reading) TableName() string {
	return "rain_readings"
}

// YearMonth identifies one (year, month) aggregation bucket.
type YearMonth struct {
	Year  int
	Month int
}

func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, ym.Month)
}

// Bucket returns the month bucket a reading instant falls into, in UTC.
func (r *Reading) Bucket() YearMonth {
	t := r.ReadingInstant.UTC()
	return YearMonth{Year: t.Year(), Month: int(t.Month())}
}
