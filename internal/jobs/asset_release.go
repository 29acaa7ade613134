package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Togather-Foundation/places/internal/assets"
	"github.com/Togather-Foundation/places/internal/metrics"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

// AssetReleaseArgs asks for deletion of a stored asset whose place is gone.
type AssetReleaseArgs struct {
	Ref string `json:"ref"`
}

func (AssetReleaseArgs) Kind() string { return JobKindAssetRelease }

// AssetReleaseWorker deletes the asset. A missing asset counts as released;
// an unparseable reference is cancelled since retrying cannot help.
type AssetReleaseWorker struct {
	river.WorkerDefaults[AssetReleaseArgs]
	Store  assets.Store
	Logger *slog.Logger
}

func (w AssetReleaseWorker) Work(ctx context.Context, job *river.Job[AssetReleaseArgs]) error {
	if w.Store == nil {
		return fmt.Errorf("asset store not configured")
	}
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ref := job.Args.Ref
	err := w.Store.Delete(ctx, ref)
	switch {
	case err == nil:
		metrics.AssetReleasesTotal.WithLabelValues("queue", "released").Inc()
		logger.Info("asset released", "ref", ref, "attempt", job.Attempt)
		return nil
	case errors.Is(err, assets.ErrNotFound):
		metrics.AssetReleasesTotal.WithLabelValues("queue", "missing").Inc()
		logger.Warn("asset already absent", "ref", ref)
		return nil
	case errors.Is(err, assets.ErrInvalidRef):
		metrics.AssetReleasesTotal.WithLabelValues("queue", "failed").Inc()
		return river.JobCancel(err)
	default:
		metrics.AssetReleasesTotal.WithLabelValues("queue", "failed").Inc()
		return fmt.Errorf("release asset %s: %w", ref, err)
	}
}

// Inserter is the part of the River client used to enqueue jobs.
type Inserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// ReleaseScheduler enqueues asset_release jobs so that releases survive
// process restarts. Inserts run on background goroutines; a failed enqueue
// is logged and the asset is then orphaned.
type ReleaseScheduler struct {
	inserter Inserter
	policy   *RetryPolicy
	logger   zerolog.Logger
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewReleaseScheduler(inserter Inserter, policy *RetryPolicy, logger zerolog.Logger) *ReleaseScheduler {
	if policy == nil {
		policy = NewRetryPolicy(0)
	}
	return &ReleaseScheduler{
		inserter: inserter,
		policy:   policy,
		logger:   logger.With().Str("component", "release_scheduler").Logger(),
		timeout:  5 * time.Second,
	}
}

// Release enqueues the job in the background and returns immediately.
func (s *ReleaseScheduler) Release(ctx context.Context, ref string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		metrics.AssetReleasesTotal.WithLabelValues("queue", "failed").Inc()
		s.logger.Error().Str("ref", ref).Msg("asset release dropped: scheduler closed")
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		s.enqueue(insertCtx, ref)
	}()
}

func (s *ReleaseScheduler) enqueue(ctx context.Context, ref string) {
	result, err := s.inserter.Insert(ctx, AssetReleaseArgs{Ref: ref}, s.policy.InsertOpts(JobKindAssetRelease))
	if err != nil {
		metrics.AssetReleasesTotal.WithLabelValues("queue", "failed").Inc()
		s.logger.Error().Err(err).Str("ref", ref).Msg("failed to enqueue asset release; asset orphaned")
		return
	}
	metrics.AssetReleasesTotal.WithLabelValues("queue", "enqueued").Inc()
	ev := s.logger.Debug().Str("ref", ref)
	if result != nil && result.Job != nil {
		ev = ev.Int64("job_id", result.Job.ID)
	}
	ev.Msg("asset release enqueued")
}

// Close stops accepting releases and waits for pending inserts until ctx ends.
func (s *ReleaseScheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
