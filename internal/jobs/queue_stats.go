package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// QueueStats summarizes River's job table for readiness checks.
type QueueStats struct {
	Active int64
	// DiscardedReleases counts asset releases that ran out of attempts
	// within the lookback window; each one is an orphaned image.
	DiscardedReleases int64
}

// ReadQueueStats queries river_job directly so that readiness does not
// depend on a started client.
func ReadQueueStats(ctx context.Context, pool *pgxpool.Pool, lookback time.Duration) (QueueStats, error) {
	var tableExists bool
	const tableQuery = `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = 'river_job'
	)`
	if err := pool.QueryRow(ctx, tableQuery).Scan(&tableExists); err != nil {
		return QueueStats{}, fmt.Errorf("check river_job table: %w", err)
	}
	if !tableExists {
		return QueueStats{}, fmt.Errorf("river_job table not found")
	}

	var stats QueueStats
	const query = `SELECT
		COUNT(*) FILTER (WHERE state IN ('available', 'running')),
		COUNT(*) FILTER (WHERE state = 'discarded' AND kind = $1 AND finalized_at > now() - make_interval(secs => $2))
	FROM river_job`
	if err := pool.QueryRow(ctx, query, JobKindAssetRelease, lookback.Seconds()).Scan(&stats.Active, &stats.DiscardedReleases); err != nil {
		return QueueStats{}, fmt.Errorf("query river_job: %w", err)
	}
	return stats, nil
}
