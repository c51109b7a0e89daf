package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"rain-gauge-sync/internal/config"
	"rain-gauge-sync/internal/database/postgres"
	"rain-gauge-sync/internal/database/postgres/repositories"
	"rain-gauge-sync/internal/logger"
)

// enqueue creates FOPR import jobs for one or more stations. Stations that
// already have a pending or in-progress job are skipped.
func main() {
	stations := flag.String("stations", "", "comma-separated station ids, e.g. 59700,11000")
	stationList := flag.String("station-list", "", "path to a file with one station id per line")
	source := flag.String("source", "manual_enqueue", "source tag recorded on the jobs")
	priority := flag.Int("priority", 0, "job priority, higher first")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	logger.NewLogger(cfg.Logger)

	stationIDs, err := collectStationIDs(*stations, *stationList)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read station ids")
	}
	if len(stationIDs) == 0 {
		log.Fatal().Msg("No station ids given; use -stations or -station-list")
	}

	db, err := postgres.NewConnection(cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not connect to PostgreSQL")
	}
	defer db.Close()

	jobRepo := repositories.NewImportJobRepository(
		db.GetDB(),
		clockwork.NewRealClock(),
		logger.GetLogger("job-repository"),
	)

	ctx := context.Background()
	created, skipped := 0, 0

	for _, stationID := range stationIDs {
		active, err := jobRepo.ExistsActive(ctx, stationID)
		if err != nil {
			log.Fatal().Err(err).Str("station_id", stationID).Msg("Failed to check active jobs")
		}
		if active {
			log.Info().Str("station_id", stationID).Msg("Active job exists, skipping")
			skipped++
			continue
		}

		jobID, err := jobRepo.Create(ctx, stationID, *source, *priority, cfg.Worker.MaxRetries, nil)
		if err != nil {
			log.Fatal().Err(err).Str("station_id", stationID).Msg("Failed to create job")
		}
		log.Info().Uint("job_id", jobID).Str("station_id", stationID).Msg("Enqueued import job")
		created++
	}

	fmt.Printf("enqueued %d job(s), skipped %d station(s) with active jobs\n", created, skipped)
}

func collectStationIDs(stations, stationList string) ([]string, error) {
	var ids []string

	for _, id := range strings.Split(stations, ",") {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}

	if stationList != "" {
		file, err := os.Open(stationList)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			id := strings.TrimSpace(scanner.Text())
			if id != "" && !strings.HasPrefix(id, "#") {
				ids = append(ids, id)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	return ids, nil
}
