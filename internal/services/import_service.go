package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"rain-gauge-sync/internal/database/postgres/repositories"
	"rain-gauge-sync/internal/downloader"
	"rain-gauge-sync/internal/fopr"
	"rain-gauge-sync/internal/models"
	"rain-gauge-sync/internal/observability"
)

// MetadataSource tags gauge rows refreshed by this pipeline.
const MetadataSource = "fopr"

// ImportService runs one FOPR import end to end: download, parse, upsert
// gauge metadata, insert readings, recompute the touched monthly summaries.
// It never recovers errors locally; every failure is classified and surfaced
// to the worker, which owns the retry decision.
type ImportService struct {
	downloader  *downloader.Downloader
	gaugeRepo   *repositories.GaugeRepository
	readingRepo *repositories.ReadingRepository
	monthlyRepo *repositories.MonthlySummaryRepository
	jobRepo     *repositories.ImportJobRepository
	dailyParser *fopr.DailyDataParser
	clock       clockwork.Clock
	logger      zerolog.Logger
	metrics     *observability.Metrics
}

func NewImportService(
	downloader *downloader.Downloader,
	gaugeRepo *repositories.GaugeRepository,
	readingRepo *repositories.ReadingRepository,
	monthlyRepo *repositories.MonthlySummaryRepository,
	jobRepo *repositories.ImportJobRepository,
	dailyParser *fopr.DailyDataParser,
	clock clockwork.Clock,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *ImportService {
	return &ImportService{
		downloader:  downloader,
		gaugeRepo:   gaugeRepo,
		readingRepo: readingRepo,
		monthlyRepo: monthlyRepo,
		jobRepo:     jobRepo,
		dailyParser: dailyParser,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
	}
}

// Import downloads and imports the full period of record for one station.
func (s *ImportService) Import(ctx context.Context, stationID string) (*models.ImportStats, error) {
	start := s.clock.Now()
	s.logger.Info().Str("station_id", stationID).Msg("Starting FOPR import")

	workbookBytes, err := s.downloader.FetchFOPR(ctx, stationID)
	if err != nil {
		return nil, newImportError(classifyDownloadError(err), err)
	}

	// The parser is file-oriented; spill the workbook to a temp file for the
	// duration of the import.
	tempFile, err := os.CreateTemp("", fmt.Sprintf("fopr_%s_*.xlsx", stationID))
	if err != nil {
		return nil, newImportError(ErrKindStorage, err)
	}
	tempPath := tempFile.Name()
	defer os.Remove(tempPath)

	if _, err := tempFile.Write(workbookBytes); err != nil {
		tempFile.Close()
		return nil, newImportError(ErrKindStorage, err)
	}
	if err := tempFile.Close(); err != nil {
		return nil, newImportError(ErrKindStorage, err)
	}

	workbook, err := excelize.OpenFile(tempPath)
	if err != nil {
		return nil, newImportError(ErrKindParse, fmt.Errorf("opening workbook: %w", err))
	}
	defer workbook.Close()

	gauge, err := fopr.ParseMetadata(workbook)
	if err != nil {
		var validationErr *fopr.ValidationError
		if errors.As(err, &validationErr) {
			return nil, newImportError(ErrKindValidation, err)
		}
		return nil, newImportError(ErrKindParse, err)
	}

	gauge.MetadataSource = MetadataSource
	gauge.MetadataUpdatedAt = s.clock.Now().UTC()

	if err := s.gaugeRepo.Upsert(ctx, gauge); err != nil {
		return nil, newImportError(ErrKindStorage, err)
	}

	s.logger.Info().
		Str("station_id", gauge.StationID).
		Str("name", gauge.Name).
		Msg("Upserted gauge metadata")

	dailyReadings, err := s.dailyParser.ParseAllYears(workbook, stationID)
	if err != nil {
		if errors.Is(err, fopr.ErrNoYearSheets) {
			return nil, newImportError(ErrKindNoReadings, err)
		}
		return nil, newImportError(ErrKindParse, err)
	}
	if len(dailyReadings) == 0 {
		return nil, newImportError(ErrKindNoReadings, errors.New("no usable readings in workbook"))
	}

	result, err := s.insertReadings(ctx, stationID, dailyReadings)
	if err != nil {
		return nil, newImportError(ErrKindStorage, err)
	}
	s.metrics.ReadingsInserted.Add(float64(result.Inserted))
	s.metrics.ReadingsDuplicate.Add(float64(result.Duplicates))

	for month := range result.AffectedMonths {
		if err := s.monthlyRepo.Recompute(ctx, stationID, month.Year, month.Month); err != nil {
			return nil, newImportError(ErrKindStorage, err)
		}
	}

	stats := buildStats(dailyReadings, result.Inserted, s.clock.Since(start).Seconds())

	s.logger.Info().
		Str("station_id", stationID).
		Int("readings_imported", stats.ReadingsImported).
		Int("months_recomputed", len(result.AffectedMonths)).
		Float64("duration_seconds", stats.DurationSeconds).
		Msg("FOPR import complete")

	return stats, nil
}

// Enqueue creates a pending import job for the station unless it already has
// a pending or in-progress one. Returns the job id and whether a job was
// created.
func (s *ImportService) Enqueue(ctx context.Context, stationID, source string, priority, maxRetries int, summary *models.GaugeSnapshot) (uint, bool, error) {
	active, err := s.jobRepo.ExistsActive(ctx, stationID)
	if err != nil {
		return 0, false, err
	}
	if active {
		s.logger.Debug().Str("station_id", stationID).Msg("Active job exists, not enqueueing")
		return 0, false, nil
	}

	jobID, err := s.jobRepo.Create(ctx, stationID, source, priority, maxRetries, summary)
	if err != nil {
		return 0, false, err
	}
	return jobID, true, nil
}

// insertReadings maps parsed rows to storage rows and bulk-inserts them. All
// rows of one import share a data source tag so the origin of every reading
// stays traceable.
func (s *ImportService) insertReadings(ctx context.Context, stationID string, dailyReadings []fopr.DailyReading) (*repositories.BulkInsertResult, error) {
	dataSource := fmt.Sprintf("fopr_import_%s", stationID)

	readings := make([]*models.Reading, 0, len(dailyReadings))
	for _, daily := range dailyReadings {
		reading := &models.Reading{
			StationID:         stationID,
			ReadingInstant:    daily.Date,
			IncrementalInches: daily.Inches,
			CumulativeInches:  0,
			DataSource:        dataSource,
		}
		if daily.Footnote != nil {
			reading.ImportMetadata = models.MetadataMap{"footnote_marker": *daily.Footnote}
		}
		readings = append(readings, reading)
	}

	return s.readingRepo.BulkInsert(ctx, readings)
}

func buildStats(dailyReadings []fopr.DailyReading, inserted int, durationSeconds float64) *models.ImportStats {
	stats := &models.ImportStats{
		ReadingsImported: inserted,
		DurationSeconds:  durationSeconds,
	}

	if len(dailyReadings) > 0 {
		earliest := dailyReadings[0].Date
		latest := dailyReadings[0].Date
		for _, daily := range dailyReadings[1:] {
			if daily.Date.Before(earliest) {
				earliest = daily.Date
			}
			if daily.Date.After(latest) {
				latest = daily.Date
			}
		}

		startDate := earliest.Format("2006-01-02")
		endDate := latest.Format("2006-01-02")
		stats.StartDate = &startDate
		stats.EndDate = &endDate
	}

	return stats
}

func classifyDownloadError(err error) ImportErrorKind {
	switch {
	case errors.Is(err, downloader.ErrNotFound):
		return ErrKindDownloadNotFound
	case errors.Is(err, downloader.ErrServerError):
		return ErrKindDownloadServer
	default:
		return ErrKindDownloadTransport
	}
}
