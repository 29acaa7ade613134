package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/places/internal/geocoding"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GeocodingCacheRepository implements geocoding.Cache on the
// geocoding_cache and geocoding_failures tables.
type GeocodingCacheRepository struct {
	db queryer
}

func NewGeocodingCacheRepository(pool *pgxpool.Pool) *GeocodingCacheRepository {
	return &GeocodingCacheRepository{db: pool}
}

// GetCachedGeocode returns nil when no unexpired entry exists.
func (r *GeocodingCacheRepository) GetCachedGeocode(ctx context.Context, queryNormalized, countryCodes string) (*geocoding.CachedGeocode, error) {
	const query = `
		SELECT id, query_normalized, country_codes, latitude, longitude,
		       display_name, place_type, raw_response, source,
		       hit_count, created_at, expires_at
		FROM geocoding_cache
		WHERE query_normalized = $1
		  AND country_codes = $2
		  AND (expires_at IS NULL OR expires_at > NOW())
		LIMIT 1
	`

	var cached geocoding.CachedGeocode
	err := r.db.QueryRow(ctx, query, queryNormalized, countryCodes).Scan(
		&cached.ID,
		&cached.QueryNormalized,
		&cached.CountryCodes,
		&cached.Latitude,
		&cached.Longitude,
		&cached.DisplayName,
		&cached.PlaceType,
		&cached.RawResponse,
		&cached.Source,
		&cached.HitCount,
		&cached.CreatedAt,
		&cached.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached geocode: %w", err)
	}
	return &cached, nil
}

// CacheGeocode upserts a forward geocoding result.
func (r *GeocodingCacheRepository) CacheGeocode(ctx context.Context, entry geocoding.CachedGeocode) error {
	const query = `
		INSERT INTO geocoding_cache (
			query_normalized, country_codes, latitude, longitude,
			display_name, place_type, raw_response, source,
			hit_count, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (query_normalized, country_codes)
		DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			display_name = EXCLUDED.display_name,
			place_type = EXCLUDED.place_type,
			raw_response = EXCLUDED.raw_response,
			source = EXCLUDED.source,
			expires_at = EXCLUDED.expires_at
	`

	expiresAt := entry.ExpiresAt
	if expiresAt == nil {
		defaultExpiry := time.Now().Add(geocoding.DefaultCacheTTL)
		expiresAt = &defaultExpiry
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var raw any
	if len(entry.RawResponse) > 0 {
		raw = entry.RawResponse
	}

	_, err := r.db.Exec(ctx, query,
		entry.QueryNormalized,
		entry.CountryCodes,
		entry.Latitude,
		entry.Longitude,
		entry.DisplayName,
		entry.PlaceType,
		raw,
		entry.Source,
		entry.HitCount,
		createdAt,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("cache geocode: %w", err)
	}
	return nil
}

// IncrementHitCount bumps the popularity counter used by cleanup.
func (r *GeocodingCacheRepository) IncrementHitCount(ctx context.Context, entry geocoding.CachedGeocode) error {
	_, err := r.db.Exec(ctx, `UPDATE geocoding_cache SET hit_count = hit_count + 1 WHERE id = $1`, entry.ID)
	if err != nil {
		return fmt.Errorf("increment hit count: %w", err)
	}
	return nil
}

// RecordFailure remembers a not-found answer; repeated failures extend it.
func (r *GeocodingCacheRepository) RecordFailure(ctx context.Context, failure geocoding.Failure) error {
	const query = `
		INSERT INTO geocoding_failures (
			query_normalized, country_codes, failure_reason,
			attempt_count, created_at, expires_at
		) VALUES ($1, $2, $3, 1, NOW(), $4)
		ON CONFLICT (query_normalized, country_codes)
		DO UPDATE SET
			failure_reason = EXCLUDED.failure_reason,
			attempt_count = geocoding_failures.attempt_count + 1,
			expires_at = EXCLUDED.expires_at
	`

	expiresAt := failure.ExpiresAt
	if expiresAt == nil {
		defaultExpiry := time.Now().Add(geocoding.DefaultFailureTTL)
		expiresAt = &defaultExpiry
	}

	_, err := r.db.Exec(ctx, query, failure.QueryNormalized, failure.CountryCodes, failure.FailureReason, expiresAt)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// GetRecentFailure returns nil when the query has no unexpired failure.
func (r *GeocodingCacheRepository) GetRecentFailure(ctx context.Context, queryNormalized, countryCodes string) (*geocoding.Failure, error) {
	const query = `
		SELECT query_normalized, country_codes, failure_reason,
		       attempt_count, created_at, expires_at
		FROM geocoding_failures
		WHERE query_normalized = $1
		  AND country_codes = $2
		  AND (expires_at IS NULL OR expires_at > NOW())
		LIMIT 1
	`

	var failure geocoding.Failure
	err := r.db.QueryRow(ctx, query, queryNormalized, countryCodes).Scan(
		&failure.QueryNormalized,
		&failure.CountryCodes,
		&failure.FailureReason,
		&failure.AttemptCount,
		&failure.CreatedAt,
		&failure.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get recent failure: %w", err)
	}
	return &failure, nil
}

// DeleteExpired removes expired cache rows except the preserveTop most hit
// ones, and all expired failure rows.
func (r *GeocodingCacheRepository) DeleteExpired(ctx context.Context, preserveTop int) (cacheDeleted, failuresDeleted int64, err error) {
	const deleteCache = `
		DELETE FROM geocoding_cache
		WHERE expires_at < NOW()
		AND id NOT IN (
			SELECT id FROM geocoding_cache
			ORDER BY hit_count DESC
			LIMIT $1
		)
	`
	tag, err := r.db.Exec(ctx, deleteCache, preserveTop)
	if err != nil {
		return 0, 0, fmt.Errorf("delete expired cache: %w", err)
	}
	cacheDeleted = tag.RowsAffected()

	tag, err = r.db.Exec(ctx, `DELETE FROM geocoding_failures WHERE expires_at < NOW()`)
	if err != nil {
		return cacheDeleted, 0, fmt.Errorf("delete expired failures: %w", err)
	}
	return cacheDeleted, tag.RowsAffected(), nil
}
