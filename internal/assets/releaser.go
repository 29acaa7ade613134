package assets

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Togather-Foundation/places/internal/metrics"
	"github.com/rs/zerolog"
)

const DefaultReleaseTimeout = 30 * time.Second

// AsyncReleaser deletes assets on background goroutines. Failures are logged
// and counted; they are never reported to the caller.
type AsyncReleaser struct {
	store   Store
	logger  zerolog.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncReleaser(store Store, logger zerolog.Logger, timeout time.Duration) *AsyncReleaser {
	if timeout <= 0 {
		timeout = DefaultReleaseTimeout
	}
	return &AsyncReleaser{
		store:   store,
		logger:  logger.With().Str("component", "asset_releaser").Logger(),
		timeout: timeout,
	}
}

// Release schedules deletion of ref and returns immediately.
func (r *AsyncReleaser) Release(ctx context.Context, ref string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		metrics.AssetReleasesTotal.WithLabelValues("inline", "failed").Inc()
		r.logger.Error().Str("ref", ref).Msg("asset release dropped: releaser closed")
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		r.release(releaseCtx, ref)
	}()
}

func (r *AsyncReleaser) release(ctx context.Context, ref string) {
	start := time.Now()
	err := r.store.Delete(ctx, ref)
	switch {
	case err == nil:
		metrics.AssetReleasesTotal.WithLabelValues("inline", "released").Inc()
		r.logger.Info().Str("ref", ref).Dur("duration", time.Since(start)).Msg("asset released")
	case errors.Is(err, ErrNotFound):
		metrics.AssetReleasesTotal.WithLabelValues("inline", "missing").Inc()
		r.logger.Warn().Str("ref", ref).Msg("asset already absent")
	default:
		metrics.AssetReleasesTotal.WithLabelValues("inline", "failed").Inc()
		r.logger.Error().Err(err).Str("ref", ref).Msg("asset release failed; asset orphaned")
	}
}

// Close stops accepting releases and waits for in-flight ones until ctx ends.
func (r *AsyncReleaser) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
