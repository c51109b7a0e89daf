package repositories

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rain-gauge-sync/internal/models"
)

func newJobRepo(t *testing.T, clock clockwork.Clock) *ImportJobRepository {
	t.Helper()
	return NewImportJobRepository(newTestDB(t), clock, zerolog.Nop())
}

func TestImportJobCreateAndGet(t *testing.T) {
	repo := newJobRepo(t, clockwork.NewRealClock())
	ctx := context.Background()

	city := "Cave Creek"
	summary := &models.GaugeSnapshot{
		StationID: "59700",
		GaugeName: "CAVE CREEK @ SPUR CROSS RANCH",
		CityTown:  &city,
	}

	jobID, err := repo.Create(ctx, "59700", "scraper", 5, 3, summary)
	require.NoError(t, err)
	require.NotZero(t, jobID)

	job, err := repo.GetByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "59700", job.StationID)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, 5, job.Priority)
	assert.Equal(t, 3, job.MaxRetries)
	assert.Equal(t, 0, job.RetryCount)
	assert.Equal(t, "scraper", job.Source)
	assert.Empty(t, job.ErrorHistory)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.False(t, job.IsTerminal())

	require.NotNil(t, job.GaugeSummary)
	assert.Equal(t, "CAVE CREEK @ SPUR CROSS RANCH", job.GaugeSummary.GaugeName)
	require.NotNil(t, job.GaugeSummary.CityTown)
	assert.Equal(t, "Cave Creek", *job.GaugeSummary.CityTown)
}

func TestExistsActive(t *testing.T) {
	clock := clockwork.NewFakeClock()
	repo := newJobRepo(t, clock)
	ctx := context.Background()

	active, err := repo.ExistsActive(ctx, "59700")
	require.NoError(t, err)
	assert.False(t, active)

	jobID, err := repo.Create(ctx, "59700", "scraper", 0, 3, nil)
	require.NoError(t, err)

	active, err = repo.ExistsActive(ctx, "59700")
	require.NoError(t, err)
	assert.True(t, active, "pending job counts as active")

	claimed, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	active, err = repo.ExistsActive(ctx, "59700")
	require.NoError(t, err)
	assert.True(t, active, "in-progress job counts as active")

	require.NoError(t, repo.MarkCompleted(ctx, jobID, &models.ImportStats{}))

	active, err = repo.ExistsActive(ctx, "59700")
	require.NoError(t, err)
	assert.False(t, active, "completed job is not active")

	active, err = repo.ExistsActive(ctx, "11000")
	require.NoError(t, err)
	assert.False(t, active, "other stations unaffected")
}

func TestClaimNextOrdering(t *testing.T) {
	repo := newJobRepo(t, clockwork.NewRealClock())
	ctx := context.Background()

	create := func(stationID string, priority int) uint {
		jobID, err := repo.Create(ctx, stationID, "scraper", priority, 3, nil)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
		return jobID
	}

	low := create("10000", 0)
	highFirst := create("20000", 5)
	highSecond := create("30000", 5)
	mid := create("40000", 1)

	var order []uint
	for {
		job, err := repo.ClaimNext(ctx)
		require.NoError(t, err)
		if job == nil {
			break
		}
		order = append(order, job.ID)
	}

	assert.Equal(t, []uint{highFirst, highSecond, mid, low}, order)
}

func TestClaimNextEmptyQueue(t *testing.T) {
	repo := newJobRepo(t, clockwork.NewRealClock())

	job, err := repo.ClaimNext(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestClaimNextMovesJobToInProgress(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC))
	repo := newJobRepo(t, clock)
	ctx := context.Background()

	jobID, err := repo.Create(ctx, "59700", "scraper", 0, 3, nil)
	require.NoError(t, err)

	claimed, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, jobID, claimed.ID)
	assert.Equal(t, models.JobStatusInProgress, claimed.Status)
	require.NotNil(t, claimed.StartedAt)

	stored, err := repo.GetByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusInProgress, stored.Status)
	require.NotNil(t, stored.StartedAt)

	// An in-progress job is not claimable again.
	next, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestClaimNextHonorsRetryWindow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC))
	repo := newJobRepo(t, clock)
	ctx := context.Background()

	jobID, err := repo.Create(ctx, "59700", "scraper", 0, 3, nil)
	require.NoError(t, err)

	claimed, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, repo.MarkFailed(ctx, jobID, "download_server_error: 503", 1))

	// Backoff for the first failure is at most 6 minutes with jitter.
	job, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, job, "retry window has not opened yet")

	clock.Advance(10 * time.Minute)

	job, err = repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, 1, job.RetryCount)
}

func TestClaimNextSkipsExhaustedJobs(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC))
	repo := newJobRepo(t, clock)
	ctx := context.Background()

	jobID, err := repo.Create(ctx, "59700", "scraper", 0, 1, nil)
	require.NoError(t, err)

	claimed, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.NoError(t, repo.MarkFailed(ctx, jobID, "parse: bad workbook", 1))

	clock.Advance(24 * time.Hour)

	job, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Nil(t, job, "job at max retries stays failed")

	stored, err := repo.GetByID(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, stored.IsTerminal())
}

func TestMarkCompleted(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC))
	repo := newJobRepo(t, clock)
	ctx := context.Background()

	jobID, err := repo.Create(ctx, "59700", "scraper", 0, 3, nil)
	require.NoError(t, err)

	claimed, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	startDate := "1994-10-01"
	endDate := "2025-05-30"
	stats := &models.ImportStats{
		ReadingsImported: 2847,
		DurationSeconds:  12.4,
		StartDate:        &startDate,
		EndDate:          &endDate,
	}
	require.NoError(t, repo.MarkCompleted(ctx, jobID, stats))

	job, err := repo.GetByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.True(t, job.IsTerminal())
	require.NotNil(t, job.CompletedAt)
	assert.Nil(t, job.ErrorMessage)
	assert.Nil(t, job.NextRetryAt)

	require.NotNil(t, job.ImportStats)
	assert.Equal(t, 2847, job.ImportStats.ReadingsImported)
	require.NotNil(t, job.ImportStats.StartDate)
	assert.Equal(t, "1994-10-01", *job.ImportStats.StartDate)
	require.NotNil(t, job.ImportStats.EndDate)
	assert.Equal(t, "2025-05-30", *job.ImportStats.EndDate)
}

func TestMarkFailedRecordsHistoryAndBackoff(t *testing.T) {
	start := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	repo := newJobRepo(t, clock)
	ctx := context.Background()

	jobID, err := repo.Create(ctx, "59700", "scraper", 0, 3, nil)
	require.NoError(t, err)

	_, err = repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, jobID, "download_transport: timeout", 1))

	job, err := repo.GetByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "download_transport: timeout", *job.ErrorMessage)

	require.Len(t, job.ErrorHistory, 1)
	assert.Equal(t, "download_transport: timeout", job.ErrorHistory[0].Error)
	assert.Equal(t, 1, job.ErrorHistory[0].Attempt)

	require.NotNil(t, job.NextRetryAt)
	delay := job.NextRetryAt.Sub(start)
	assert.GreaterOrEqual(t, delay, 4*time.Minute, "first retry delay is 5 minutes minus at most 20 percent jitter")
	assert.LessOrEqual(t, delay, 6*time.Minute, "first retry delay is 5 minutes plus at most 20 percent jitter")

	clock.Advance(10 * time.Minute)
	_, err = repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, jobID, "download_transport: timeout", 2))

	job, err = repo.GetByID(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, 2, job.RetryCount)
	require.Len(t, job.ErrorHistory, 2, "history length tracks retry count")
	assert.Equal(t, 2, job.ErrorHistory[1].Attempt)

	require.NotNil(t, job.NextRetryAt)
	delay = job.NextRetryAt.Sub(clock.Now())
	assert.GreaterOrEqual(t, delay, 12*time.Minute)
	assert.LessOrEqual(t, delay, 18*time.Minute)
}

func TestClaimNextConcurrent(t *testing.T) {
	repo := newJobRepo(t, clockwork.NewRealClock())
	ctx := context.Background()

	const jobCount = 20
	for i := 0; i < jobCount; i++ {
		_, err := repo.Create(ctx, "59700", "scraper", 0, 3, nil)
		require.NoError(t, err)
	}

	var mu sync.Mutex
	claimed := make(map[uint]int)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := repo.ClaimNext(ctx)
				if err != nil || job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, jobCount, "every job claimed exactly once")
	for jobID, count := range claimed {
		assert.Equal(t, 1, count, "job %d claimed more than once", jobID)
	}
}

func TestListPending(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC))
	repo := newJobRepo(t, clock)
	ctx := context.Background()

	first, err := repo.Create(ctx, "10000", "scraper", 0, 3, nil)
	require.NoError(t, err)
	second, err := repo.Create(ctx, "20000", "scraper", 2, 3, nil)
	require.NoError(t, err)

	jobs, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, second, jobs[0].ID, "higher priority listed first")
	assert.Equal(t, first, jobs[1].ID)

	claimedJob, err := repo.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimedJob)

	jobs, err = repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1, "in-progress jobs are not pending")
	assert.Equal(t, first, jobs[0].ID)

	require.NoError(t, repo.MarkFailed(ctx, claimedJob.ID, "storage: disk full", 1))

	jobs, err = repo.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 2, "retryable failed jobs are listed")
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{1, 5 * time.Minute},
		{2, 15 * time.Minute},
		{3, 45 * time.Minute},
		{7, 45 * time.Minute},
	}

	for _, tt := range tests {
		for i := 0; i < 50; i++ {
			delay := retryDelay(tt.attempt)
			assert.GreaterOrEqual(t, delay, time.Duration(float64(tt.base)*0.8), "attempt %d", tt.attempt)
			assert.LessOrEqual(t, delay, time.Duration(float64(tt.base)*1.2), "attempt %d", tt.attempt)
		}
	}
}
