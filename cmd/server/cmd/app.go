package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Togather-Foundation/places/internal/api"
	"github.com/Togather-Foundation/places/internal/api/handlers"
	"github.com/Togather-Foundation/places/internal/api/middleware"
	"github.com/Togather-Foundation/places/internal/assets"
	"github.com/Togather-Foundation/places/internal/auth"
	"github.com/Togather-Foundation/places/internal/config"
	"github.com/Togather-Foundation/places/internal/domain/places"
	"github.com/Togather-Foundation/places/internal/domain/users"
	"github.com/Togather-Foundation/places/internal/geocoding"
	"github.com/Togather-Foundation/places/internal/geocoding/google"
	"github.com/Togather-Foundation/places/internal/geocoding/nominatim"
	"github.com/Togather-Foundation/places/internal/jobs"
	"github.com/Togather-Foundation/places/internal/metrics"
	"github.com/Togather-Foundation/places/internal/storage/memory"
	"github.com/Togather-Foundation/places/internal/storage/postgres"
	redisstore "github.com/Togather-Foundation/places/internal/storage/redis"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
)

// backend is the opened persistence layer.
type backend struct {
	places places.Repository
	users  users.Repository
	pinger handlers.Pinger
	// pool is nil for the memory driver.
	pool *pgxpool.Pool
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	if cfg.Storage.Driver == config.DriverMemory {
		store := memory.New()
		return &backend{places: store, users: store, pinger: store}, nil
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := postgres.Open(openCtx, cfg.Database.URL, postgres.PoolConfig{
		MaxConns:        int32(cfg.Database.MaxConnections),
		MaxConnLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	store, err := postgres.NewStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return &backend{places: store, users: store, pinger: store, pool: pool}, nil
}

// app is the assembled server. Close releases everything in reverse order
// of construction.
type app struct {
	handler http.Handler
	health  *handlers.HealthChecker
	river   *river.Client[pgx.Tx]
	closers []func(ctx context.Context)
	logger  zerolog.Logger
}

func (a *app) onClose(fn func(ctx context.Context)) {
	a.closers = append(a.closers, fn)
}

func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

func buildApp(ctx context.Context, cfg config.Config, b *backend, logger zerolog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	cache, err := newGeocodingCache(ctx, cfg, b, a)
	if err != nil {
		return nil, err
	}
	geocoder := newGeocoder(cfg.Geocoding, cache, logger)

	store, uploads, err := newAssetStore(ctx, cfg.Assets, a)
	if err != nil {
		return nil, err
	}

	policy := jobs.NewRetryPolicy(cfg.Jobs.AssetReleaseMaxTry)
	if cfg.Jobs.Enabled {
		if b.pool == nil {
			logger.Warn().Msg("jobs require the postgres driver; background jobs disabled")
		} else {
			var deleter jobs.ExpiredCacheDeleter
			if repo, ok := cache.(*postgres.GeocodingCacheRepository); ok {
				deleter = repo
			}
			client, err := newRiverClient(cfg, b.pool, store, deleter, policy)
			if err != nil {
				return nil, fmt.Errorf("create river client: %w", err)
			}
			a.river = client
		}
	}

	var releaser places.AssetReleaser
	if cfg.Assets.ReleaseMode == "queue" && a.river != nil {
		scheduler := jobs.NewReleaseScheduler(a.river, policy, logger)
		a.onClose(func(ctx context.Context) {
			if err := scheduler.Close(ctx); err != nil {
				logger.Warn().Err(err).Msg("pending asset release inserts abandoned")
			}
		})
		releaser = scheduler
	} else {
		async := assets.NewAsyncReleaser(store, logger, cfg.Assets.ReleaseTimeout)
		a.onClose(func(ctx context.Context) {
			if err := async.Close(ctx); err != nil {
				logger.Warn().Err(err).Msg("pending asset releases abandoned")
			}
		})
		releaser = async
	}

	a.health = handlers.NewHealthChecker(Version, GitCommit)
	a.health.Add("storage", handlers.PingCheck(b.pinger, "storage"))
	if b.pool != nil {
		a.health.Add("migrations", handlers.MigrationCheck(func(ctx context.Context) (uint, bool, error) {
			return postgres.MigrateVersion(cfg.Database.URL)
		}))
	}
	if a.river != nil {
		pool := b.pool
		a.health.Add("job_queue", handlers.JobQueueCheck(func(ctx context.Context) (int64, int64, error) {
			stats, err := jobs.ReadQueueStats(ctx, pool, 24*time.Hour)
			return stats.Active, stats.DiscardedReleases, err
		}))
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit, cfg.Environment)
	a.onClose(func(context.Context) { limiter.Stop() })

	a.handler = api.NewRouter(api.Deps{
		Places:      places.NewService(b.places, geocoder, releaser, logger),
		Users:       users.NewService(b.users, logger),
		Assets:      store,
		Releaser:    releaser,
		Uploads:     uploads,
		JWT:         auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer),
		Health:      a.health,
		RateLimiter: limiter,
		Config:      cfg,
		Version:     Version,
		GitCommit:   GitCommit,
		BuildDate:   BuildDate,
		Logger:      logger,
	})
	return a, nil
}

func newGeocodingCache(ctx context.Context, cfg config.Config, b *backend, a *app) (geocoding.Cache, error) {
	switch cfg.Geocoding.Cache {
	case "postgres":
		if b.pool == nil {
			return nil, fmt.Errorf("geocoding cache %q requires the postgres driver", cfg.Geocoding.Cache)
		}
		return postgres.NewGeocodingCacheRepository(b.pool), nil
	case "redis":
		rdb, err := redisstore.Dial(ctx, cfg.Geocoding.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.onClose(func(context.Context) { _ = rdb.Close() })
		return redisstore.NewGeocodingCache(rdb), nil
	default:
		return nil, nil
	}
}

func newGeocoder(cfg config.GeocodingConfig, cache geocoding.Cache, logger zerolog.Logger) *geocoding.Service {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var provider geocoding.Provider
	switch cfg.Provider {
	case "google":
		provider = google.NewClient(cfg.GoogleURL, cfg.GoogleAPIKey,
			google.WithHTTPClient(httpClient),
			google.WithRateLimit(cfg.RateLimitRPS),
		)
	default:
		provider = nominatim.NewClient(cfg.NominatimURL, cfg.NominatimEmail,
			nominatim.WithHTTPClient(httpClient),
			nominatim.WithRateLimit(cfg.RateLimitRPS),
		)
	}

	opts := []geocoding.Option{
		geocoding.WithCountryCodes(cfg.CountryCodes),
		geocoding.WithTTLs(cfg.CacheTTL, cfg.FailureTTL),
	}
	if cache != nil {
		opts = append(opts, geocoding.WithCache(cache))
	}
	return geocoding.NewService(provider, logger.With().Str("component", "geocoding").Logger(), opts...)
}

// newAssetStore returns the image store and, for local storage, the same
// store again for the uploads route.
func newAssetStore(ctx context.Context, cfg config.AssetsConfig, a *app) (assets.Store, assets.Store, error) {
	if cfg.Backend == "gcs" {
		store, err := assets.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSEndpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs store: %w", err)
		}
		a.onClose(func(context.Context) { _ = store.Close() })
		return store, nil, nil
	}
	store, err := assets.NewLocalStore(cfg.LocalDir)
	if err != nil {
		return nil, nil, fmt.Errorf("create local store: %w", err)
	}
	return store, store, nil
}

func newRiverClient(cfg config.Config, pool *pgxpool.Pool, store assets.Store, deleter jobs.ExpiredCacheDeleter, policy *jobs.RetryPolicy) (*river.Client[pgx.Tx], error) {
	logger := newSlogLogger(cfg.Logging)
	workers := jobs.NewWorkers(jobs.WorkerDeps{
		Assets:           store,
		Cache:            deleter,
		Logger:           logger,
		PreserveTopCount: cfg.Geocoding.PreserveTopHits,
	})
	return jobs.NewClient(pool, jobs.ClientOptions{
		Workers:      workers,
		Logger:       logger,
		Hooks:        []rivertype.Hook{metrics.NewRiverMetricsHook()},
		PeriodicJobs: jobs.NewPeriodicJobs(deleter != nil),
		Policy:       policy,
		MaxWorkers:   cfg.Jobs.MaxWorkers,
	})
}

// newSlogLogger builds the logger River requires, matching the configured level.
func newSlogLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug", "trace":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error", "fatal", "panic":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
