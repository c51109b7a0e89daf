package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"rain-gauge-sync/internal/config"
)

// ErrNotFound means the agency has no FOPR workbook for the station.
var ErrNotFound = errors.New("file not found")

// ErrServerError means the agency returned a 5xx response.
var ErrServerError = errors.New("server error")

// Downloader fetches per-station FOPR workbooks from the flood-control
// agency. It performs no retries; retry policy belongs to the worker.
type Downloader struct {
	client  *http.Client
	baseURL string
	logger  zerolog.Logger
}

func NewDownloader(cfg config.DownloadConfig, logger zerolog.Logger) *Downloader {
	return &Downloader{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		logger:  logger,
	}
}

// FetchFOPR downloads the full period-of-record workbook for a station and
// returns the raw bytes.
func (d *Downloader) FetchFOPR(ctx context.Context, stationID string) ([]byte, error) {
	filename := fmt.Sprintf("%s_FOPR.xlsx", stationID)
	url := fmt.Sprintf("%s/FOPR/%s", d.baseURL, filename)

	d.logger.Debug().Str("url", url).Msg("Downloading FOPR workbook")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", filename, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", filename, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", filename, ErrNotFound)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%s returned status %d: %w", filename, resp.StatusCode, ErrServerError)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d downloading %s", resp.StatusCode, filename)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}

	d.logger.Info().
		Str("station_id", stationID).
		Int("bytes", len(body)).
		Msg("Downloaded FOPR workbook")

	return body, nil
}
