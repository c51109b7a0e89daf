package fopr

import (
	"errors"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Year sheets outside this range are ignored; the agency's records start in
// the 1990s and sheets beyond it are layout artifacts.
const (
	minWaterYear = 1990
	maxWaterYear = 2030
)

const (
	minRainfallInches = 0.0
	maxRainfallInches = 20.0
)

// ErrNoYearSheets means the workbook contained no sheet named as a water
// year, so there is nothing to import.
var ErrNoYearSheets = errors.New("no year sheets found in workbook")

// DailyReading is one parsed daily measurement before storage. Date is
// midnight UTC of the measurement day.
type DailyReading struct {
	StationID string
	Date      time.Time
	Inches    float64
	Footnote  *string
}

// DailyDataParser extracts daily rainfall rows from every year sheet of a
// FOPR workbook. Parsing is CPU-bound and synchronous; callers run it off
// the polling path.
type DailyDataParser struct {
	clock  clockwork.Clock
	logger zerolog.Logger
}

func NewDailyDataParser(clock clockwork.Clock, logger zerolog.Logger) *DailyDataParser {
	return &DailyDataParser{clock: clock, logger: logger}
}

// ParseAllYears walks every sheet whose name parses as a water year and
// collects the daily readings. A sheet that fails to parse is logged and
// skipped; the remaining sheets still proceed.
func (p *DailyDataParser) ParseAllYears(f *excelize.File, stationID string) ([]DailyReading, error) {
	var readings []DailyReading
	yearSheets := 0

	for _, sheetName := range f.GetSheetList() {
		year, err := strconv.Atoi(sheetName)
		if err != nil {
			p.logger.Debug().Str("sheet", sheetName).Msg("Skipping non-year sheet")
			continue
		}
		if year < minWaterYear || year > maxWaterYear {
			p.logger.Debug().Str("sheet", sheetName).Msg("Skipping sheet, year out of range")
			continue
		}

		yearSheets++
		sheetReadings, err := p.parseYearSheet(f, sheetName, stationID)
		if err != nil {
			p.logger.Warn().Err(err).Str("sheet", sheetName).Msg("Failed to parse year sheet")
			continue
		}

		readings = append(readings, sheetReadings...)
	}

	if yearSheets == 0 {
		return nil, ErrNoYearSheets
	}

	p.logger.Info().
		Str("station_id", stationID).
		Int("year_sheets", yearSheets).
		Int("readings", len(readings)).
		Msg("Parsed daily data")

	return readings, nil
}

// parseYearSheet reads one year sheet: column A is a date serial, column B
// the incremental inches for that day, column C an optional footnote marker.
// There is no header row.
func (p *DailyDataParser) parseYearSheet(f *excelize.File, sheetName, stationID string) ([]DailyReading, error) {
	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	today := p.clock.Now().UTC()
	var readings []DailyReading

	for rowIdx, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}

		serial, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			p.logger.Debug().
				Str("sheet", sheetName).
				Int("row", rowIdx).
				Msg("Skipping row with non-numeric date")
			continue
		}

		inches := 0.0
		if len(row) > 1 && row[1] != "" {
			parsed, err := strconv.ParseFloat(row[1], 64)
			if err != nil {
				p.logger.Warn().
					Str("sheet", sheetName).
					Int("row", rowIdx).
					Str("value", row[1]).
					Msg("Unreadable rainfall cell, treating as zero")
			} else {
				inches = parsed
			}
		}

		if inches < minRainfallInches || inches > maxRainfallInches {
			p.logger.Warn().
				Str("sheet", sheetName).
				Int("row", rowIdx).
				Float64("inches", inches).
				Msg("Suspicious rainfall value, skipping row")
			continue
		}

		date := SerialDate(serial)
		if date.After(today) {
			p.logger.Debug().
				Str("sheet", sheetName).
				Int("row", rowIdx).
				Time("date", date).
				Msg("Future date, skipping row")
			continue
		}

		// Zero-rain days are not stored; the monthly summary treats missing
		// days as zero.
		if inches == 0.0 {
			continue
		}

		reading := DailyReading{
			StationID: stationID,
			Date:      date,
			Inches:    inches,
		}
		if len(row) > 2 && row[2] != "" {
			footnote := row[2]
			reading.Footnote = &footnote
		}

		readings = append(readings, reading)
	}

	return readings, nil
}
