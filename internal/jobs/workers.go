package jobs

import (
	"log/slog"

	"github.com/Togather-Foundation/places/internal/assets"
	"github.com/riverqueue/river"
)

// WorkerDeps carries what the registered workers need. A nil Cache skips the
// cleanup worker.
type WorkerDeps struct {
	Assets           assets.Store
	Cache            ExpiredCacheDeleter
	Logger           *slog.Logger
	PreserveTopCount int
}

func NewWorkers(deps WorkerDeps) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[AssetReleaseArgs](workers, AssetReleaseWorker{Store: deps.Assets, Logger: deps.Logger})
	if deps.Cache != nil {
		river.AddWorker[CleanupGeocodingCacheArgs](workers, CleanupGeocodingCacheWorker{
			Cache:            deps.Cache,
			Logger:           deps.Logger,
			PreserveTopCount: deps.PreserveTopCount,
		})
	}
	return workers
}
