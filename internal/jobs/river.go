package jobs

import (
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindAssetRelease          = "asset_release"
	JobKindGeocodingCacheCleanup = "geocoding_cache_cleanup"
)

const (
	AssetReleaseMaxAttempts = 8
	CleanupMaxAttempts      = 3
)

// RetryConfig controls per-kind retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryPolicy implements River's ClientRetryPolicy with per-kind exponential backoff.
type RetryPolicy struct {
	Default RetryConfig
	ByKind  map[string]RetryConfig
}

// NewRetryPolicy returns the default retry policy. assetReleaseMaxAttempts
// overrides the asset release attempt budget when positive.
func NewRetryPolicy(assetReleaseMaxAttempts int) *RetryPolicy {
	if assetReleaseMaxAttempts <= 0 {
		assetReleaseMaxAttempts = AssetReleaseMaxAttempts
	}
	return &RetryPolicy{
		Default: RetryConfig{
			MaxAttempts: CleanupMaxAttempts,
			BaseDelay:   30 * time.Second,
			MaxDelay:    30 * time.Minute,
		},
		ByKind: map[string]RetryConfig{
			JobKindAssetRelease: {
				MaxAttempts: assetReleaseMaxAttempts,
				BaseDelay:   15 * time.Second,
				MaxDelay:    1 * time.Hour,
			},
			JobKindGeocodingCacheCleanup: {
				MaxAttempts: CleanupMaxAttempts,
				BaseDelay:   5 * time.Minute,
				MaxDelay:    1 * time.Hour,
			},
		},
	}
}

// NextRetry determines the next retry time for a failed job.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	config := p.configFor(job.Kind)
	if config.BaseDelay == 0 {
		return time.Now()
	}

	attempt := job.Attempt
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(delay)
	}
	return time.Now().Add(delay)
}

// InsertOpts returns the insert options for kind under this policy.
func (p *RetryPolicy) InsertOpts(kind string) *river.InsertOpts {
	return &river.InsertOpts{MaxAttempts: p.configFor(kind).MaxAttempts}
}

func (p *RetryPolicy) configFor(kind string) RetryConfig {
	if p == nil {
		return RetryConfig{MaxAttempts: CleanupMaxAttempts, BaseDelay: 1 * time.Minute, MaxDelay: 1 * time.Hour}
	}
	if config, ok := p.ByKind[kind]; ok {
		return config
	}
	return p.Default
}

// ClientOptions configures NewClient.
type ClientOptions struct {
	Workers      *river.Workers
	Logger       *slog.Logger
	Hooks        []rivertype.Hook
	PeriodicJobs []*river.PeriodicJob
	Policy       *RetryPolicy
	MaxWorkers   int
}

// NewClientConfig builds a River client configuration with retry policy.
func NewClientConfig(opts ClientOptions) *river.Config {
	policy := opts.Policy
	if policy == nil {
		policy = NewRetryPolicy(0)
	}
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	config := &river.Config{
		Workers:      opts.Workers,
		RetryPolicy:  policy,
		MaxAttempts:  policy.Default.MaxAttempts,
		PeriodicJobs: opts.PeriodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Hooks: opts.Hooks,
	}
	if opts.Logger != nil {
		config.Logger = opts.Logger
		config.ErrorHandler = NewAlertingErrorHandler(opts.Logger, nil)
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, opts ClientOptions) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(opts))
}

// NewPeriodicJobs returns the periodic schedule. Geocoding cache cleanup runs
// daily and only when the cache lives in PostgreSQL.
func NewPeriodicJobs(geocodingCacheCleanup bool) []*river.PeriodicJob {
	var periodic []*river.PeriodicJob
	if geocodingCacheCleanup {
		periodic = append(periodic, river.NewPeriodicJob(
			river.PeriodicInterval(24*time.Hour),
			func() (river.JobArgs, *river.InsertOpts) {
				return CleanupGeocodingCacheArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		))
	}
	return periodic
}
