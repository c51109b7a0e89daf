package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MetadataMap is a JSONB column holding free-form structured metadata,
// e.g. storm counts and frequency statistics from a FOPR workbook.
type MetadataMap map[string]interface{}

func (m MetadataMap) Value() (driver.Value, error) {
	if m == nil {
		return json.Marshal(MetadataMap{})
	}
	return json.Marshal(m)
}

func (m *MetadataMap) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var fieldBytes []byte
	switch v := value.(type) {
	case []byte:
		fieldBytes = v
	case string:
		fieldBytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into MetadataMap", value)
	}

	return json.Unmarshal(fieldBytes, m)
}

// StringList is a JSONB column holding an ordered list of strings.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal(StringList{})
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var fieldBytes []byte
	switch v := value.(type) {
	case []byte:
		fieldBytes = v
	case string:
		fieldBytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}

	return json.Unmarshal(fieldBytes, l)
}

// Gauge is a physical precipitation station. Rows are created or refreshed on
// every successful FOPR import and never deleted by the importer.
type Gauge struct {
	StationID          string     `gorm:"primaryKey;size:16" json:"station_id"`
	Name               string     `gorm:"not null" json:"name"`
	PreviousStationIDs StringList `gorm:"type:jsonb" json:"previous_station_ids"`
	StationType        string     `json:"station_type"`

	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	ElevationFt         *int    `json:"elevation_ft"`
	County              string  `json:"county"`
	City                *string `json:"city"`
	LocationDescription *string `json:"location_description"`

	InstallationDate *time.Time `json:"installation_date"`
	DataBeginsDate   *time.Time `json:"data_begins_date"`
	Status           string     `json:"status"`

	AvgAnnualPrecipInches *float64 `json:"avg_annual_precipitation_inches"`
	CompleteYearsCount    *int     `json:"complete_years_count"`
	IncompleteMonthsCount int      `json:"incomplete_months_count"`
	MissingMonthsCount    int      `json:"missing_months_count"`
	DataQualityRemarks    *string  `json:"data_quality_remarks"`

	FoprMetadata      MetadataMap `gorm:"type:jsonb" json:"fopr_metadata"`
	MetadataSource    string      `json:"metadata_source"`
	MetadataUpdatedAt time.Time   `json:"metadata_updated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Gauge) TableName() string {
	return "gauges"
}

func (g *Gauge) IsValid() bool {
	return g.StationID != "" && g.Name != ""
}

// GaugeSnapshot is the summary of a gauge as seen by the scraper that
// requested an import. Stored verbatim on the job row for operator context.
type GaugeSnapshot struct {
	StationID            string   `json:"station_id"`
	GaugeName            string   `json:"gauge_name"`
	CityTown             *string  `json:"city_town,omitempty"`
	ElevationFt          *int     `json:"elevation_ft,omitempty"`
	GeneralLocation      *string  `json:"general_location,omitempty"`
	RainfallPast6hInches *float64 `json:"rainfall_past_6h_inches,omitempty"`
	RainfallPast24hInch  *float64 `json:"rainfall_past_24h_inches,omitempty"`
}

func (s *GaugeSnapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (s *GaugeSnapshot) Scan(value interface{}) error {
	if value == nil {
		return nil
	}

	var fieldBytes []byte
	switch v := value.(type) {
	case []byte:
		fieldBytes = v
	case string:
		fieldBytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into GaugeSnapshot", value)
	}

	return json.Unmarshal(fieldBytes, s)
}
