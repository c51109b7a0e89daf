package fopr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"rain-gauge-sync/internal/models"
)

// MetaStatsSheet is the workbook sheet carrying gauge metadata in a fixed
// cell layout.
const MetaStatsSheet = "Meta_Stats"

const (
	minLatitude    = 32.0
	maxLatitude    = 34.0
	minLongitude   = -113.0
	maxLongitude   = -111.0
	minElevationFt = 500
	maxElevationFt = 4000
	minPrecip      = 0.0
	maxPrecip      = 20.0
)

var completeYearsRe = regexp.MustCompile(`for\s+(\d+)\s+Complete Years`)

// ValidationError marks metadata that parsed but violates the geographic or
// climatic bounds. Retrying the import will not fix it.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ParseMetadata extracts gauge metadata from the Meta_Stats sheet.
//
// Cell layout (fixed by the agency): B3 name, B4 station-id lineage, B6 type,
// B7 years since installation, D7 reference date serial, B8 data-begins date,
// B9 city, B10 county, C11 latitude, C12 longitude, B13 elevation text,
// B14 location, A15 complete-years label, D15 average annual precipitation,
// B16/B17 incomplete and missing month counts, B18 remarks, C25-C27 storm
// counts, rows 31-36 frequency statistic triples.
func ParseMetadata(f *excelize.File) (*models.Gauge, error) {
	lineage := cellString(f, "B4")
	if lineage == "" {
		return nil, fmt.Errorf("missing required field: station id lineage (B4)")
	}
	stationID, previousIDs := parseLineage(lineage)
	if stationID == "" {
		return nil, fmt.Errorf("empty station id in lineage %q", lineage)
	}

	name := cellString(f, "B3")
	if name == "" {
		return nil, fmt.Errorf("missing required field: station name (B3)")
	}

	latitude, ok := cellFloat(f, "C11")
	if !ok {
		return nil, fmt.Errorf("missing required field: latitude (C11)")
	}
	if latitude < minLatitude || latitude > maxLatitude {
		return nil, &ValidationError{
			Field:   "latitude",
			Message: fmt.Sprintf("%v outside range [%v, %v]", latitude, minLatitude, maxLatitude),
		}
	}

	longitude, ok := cellFloat(f, "C12")
	if !ok {
		return nil, fmt.Errorf("missing required field: longitude (C12)")
	}
	if longitude < minLongitude || longitude > maxLongitude {
		return nil, &ValidationError{
			Field:   "longitude",
			Message: fmt.Sprintf("%v outside range [%v, %v]", longitude, minLongitude, maxLongitude),
		}
	}

	gauge := &models.Gauge{
		StationID:          stationID,
		Name:               name,
		PreviousStationIDs: previousIDs,
		StationType:        defaultString(cellString(f, "B6"), "Rain"),
		Latitude:           latitude,
		Longitude:          longitude,
		County:             defaultString(cellString(f, "B10"), "Maricopa"),
		City:               optionalString(cellString(f, "B9")),
		LocationDescription: optionalString(
			cellString(f, "B14"),
		),
		Status:       "Active",
		FoprMetadata: models.MetadataMap{},
	}

	if elevation := parseElevation(cellString(f, "B13")); elevation != nil {
		if *elevation < minElevationFt || *elevation > maxElevationFt {
			return nil, &ValidationError{
				Field:   "elevation_ft",
				Message: fmt.Sprintf("%d outside range [%d, %d]", *elevation, minElevationFt, maxElevationFt),
			}
		}
		gauge.ElevationFt = elevation
	}

	if precip, ok := cellFloat(f, "D15"); ok {
		if precip < minPrecip || precip > maxPrecip {
			return nil, &ValidationError{
				Field:   "avg_annual_precipitation_inches",
				Message: fmt.Sprintf("%v outside range [%v, %v]", precip, minPrecip, maxPrecip),
			}
		}
		gauge.AvgAnnualPrecipInches = &precip
	}

	if years := extractCompleteYears(cellString(f, "A15")); years != nil {
		gauge.CompleteYearsCount = years
	}

	gauge.IncompleteMonthsCount = parseQualityCount(cellString(f, "B16"))
	gauge.MissingMonthsCount = parseQualityCount(cellString(f, "B17"))
	gauge.DataQualityRemarks = optionalString(cellString(f, "B18"))

	if begins, ok := cellDate(f, "B8"); ok {
		gauge.DataBeginsDate = &begins
	}

	if yearsSince, ok := cellFloat(f, "B7"); ok {
		if refSerial, ok := cellFloat(f, "D7"); ok {
			installed := installationDate(yearsSince, refSerial)
			gauge.InstallationDate = &installed
		}
	}

	parseStormCounts(f, gauge.FoprMetadata)
	parseFrequencyStats(f, gauge.FoprMetadata)

	return gauge, nil
}

// parseLineage splits an identity cell such as
// "59700; 4695 prior to 2/20/2018" into the current station id and the
// leading token of each prior segment.
func parseLineage(value string) (string, models.StringList) {
	parts := strings.Split(value, ";")
	current := strings.TrimSpace(parts[0])

	previous := models.StringList{}
	for _, part := range parts[1:] {
		fields := strings.Fields(part)
		if len(fields) > 0 {
			previous = append(previous, fields[0])
		}
	}

	return current, previous
}

// parseElevation handles text like "1,465 ft." by stripping commas and
// parsing the first integer token.
func parseElevation(value string) *int {
	stripped := strings.ReplaceAll(value, ",", "")
	fields := strings.Fields(stripped)
	if len(fields) == 0 {
		return nil
	}

	elevation, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil
	}
	return &elevation
}

// extractCompleteYears pulls the year count out of a label cell such as
// "Average Annual Precipitation for 26 Complete Years (in):".
func extractCompleteYears(label string) *int {
	match := completeYearsRe.FindStringSubmatch(label)
	if match == nil {
		return nil
	}

	years, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &years
}

// parseQualityCount maps "None" to 0 and otherwise parses an integer,
// defaulting to 0.
func parseQualityCount(value string) int {
	if value == "" || strings.EqualFold(value, "none") {
		return 0
	}

	count, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return count
}

// installationDate derives the installation date by walking back
// years x 365.25 days from the reference date.
func installationDate(yearsSince, referenceSerial float64) time.Time {
	reference := SerialDate(referenceSerial)
	days := int(yearsSince * 365.25)
	return reference.AddDate(0, 0, -days)
}

func parseStormCounts(f *excelize.File, metadata models.MetadataMap) {
	stormCells := map[string]string{
		"storms_gt_1in_24h": "C25",
		"storms_gt_2in_24h": "C26",
		"storms_gt_3in_24h": "C27",
	}

	for key, cell := range stormCells {
		if value, ok := cellFloat(f, cell); ok {
			metadata[key] = int(value)
		}
	}
}

// parseFrequencyStats reads the six frequency-statistic rows (31-36): column
// B holds inches, C the event date, D the return period in years.
func parseFrequencyStats(f *excelize.File, metadata models.MetadataMap) {
	periods := []struct {
		name string
		row  int
	}{
		{"15min", 31},
		{"1hr", 32},
		{"3hr", 33},
		{"6hr", 34},
		{"24hr", 35},
		{"72hr", 36},
	}

	for _, period := range periods {
		if inches, ok := cellFloat(f, fmt.Sprintf("B%d", period.row)); ok {
			metadata[fmt.Sprintf("freq_%s_inches", period.name)] = inches
		}
		if date, ok := cellDate(f, fmt.Sprintf("C%d", period.row)); ok {
			metadata[fmt.Sprintf("freq_%s_date", period.name)] = date.Format("2006-01-02")
		}
		if returnPeriod, ok := cellFloat(f, fmt.Sprintf("D%d", period.row)); ok {
			metadata[fmt.Sprintf("freq_%s_return_period_yrs", period.name)] = int(returnPeriod)
		}
	}
}

// cellString returns the trimmed raw value of a Meta_Stats cell, or "" when
// the cell is absent or unreadable.
func cellString(f *excelize.File, cell string) string {
	value, err := f.GetCellValue(MetaStatsSheet, cell, excelize.Options{RawCellValue: true})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func cellFloat(f *excelize.File, cell string) (float64, bool) {
	value := cellString(f, cell)
	if value == "" {
		return 0, false
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// cellDate reads a date cell. In raw mode both native datetime cells and
// plain numeric cells surface as a date serial.
func cellDate(f *excelize.File, cell string) (time.Time, bool) {
	serial, ok := cellFloat(f, cell)
	if !ok || serial <= 0 {
		return time.Time{}, false
	}
	return SerialDate(serial), true
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
