package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

const DefaultPreserveTopHits = 10000

// CleanupGeocodingCacheArgs defines the job for cleaning expired geocoding cache entries.
type CleanupGeocodingCacheArgs struct{}

func (CleanupGeocodingCacheArgs) Kind() string { return JobKindGeocodingCacheCleanup }

// ExpiredCacheDeleter removes expired geocoding cache and failure rows.
type ExpiredCacheDeleter interface {
	DeleteExpired(ctx context.Context, preserveTop int) (cacheDeleted, failuresDeleted int64, err error)
}

// CleanupGeocodingCacheWorker removes expired cache entries while keeping
// the most popular queries past their TTL.
type CleanupGeocodingCacheWorker struct {
	river.WorkerDefaults[CleanupGeocodingCacheArgs]
	Cache            ExpiredCacheDeleter
	Logger           *slog.Logger
	PreserveTopCount int
}

func (w CleanupGeocodingCacheWorker) Work(ctx context.Context, job *river.Job[CleanupGeocodingCacheArgs]) error {
	if w.Cache == nil {
		return fmt.Errorf("geocoding cache not configured")
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	preserve := w.PreserveTopCount
	if preserve <= 0 {
		preserve = DefaultPreserveTopHits
	}

	start := time.Now()
	logger.Info("starting geocoding cache cleanup job", "preserve_top_count", preserve, "attempt", job.Attempt)

	cacheDeleted, failuresDeleted, err := w.Cache.DeleteExpired(ctx, preserve)
	if err != nil {
		logger.Error("geocoding cache cleanup failed", "error", err)
		return fmt.Errorf("cleanup geocoding cache: %w", err)
	}

	logger.Info("geocoding cache cleanup job completed",
		"cache_deleted", cacheDeleted,
		"failures_deleted", failuresDeleted,
		"duration_seconds", time.Since(start).Seconds(),
	)
	return nil
}
