// Package redis provides a geocoding cache for deployments that do not keep
// cache tables in PostgreSQL. Entries expire through Redis TTLs, so no
// cleanup job is needed.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Togather-Foundation/places/internal/geocoding"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "places:geocode:v1"

type GeocodingCache struct {
	rdb *goredis.Client
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewGeocodingCache(rdb *goredis.Client) *GeocodingCache {
	return &GeocodingCache{rdb: rdb}
}

func entryKey(queryNormalized, countryCodes string) string {
	return fmt.Sprintf("%s:hit:%s:%s", keyPrefix, countryCodes, queryNormalized)
}

func hitsKey(queryNormalized, countryCodes string) string {
	return fmt.Sprintf("%s:hits:%s:%s", keyPrefix, countryCodes, queryNormalized)
}

func failureKey(queryNormalized, countryCodes string) string {
	return fmt.Sprintf("%s:fail:%s:%s", keyPrefix, countryCodes, queryNormalized)
}

func ttlUntil(expiresAt *time.Time, fallback time.Duration) time.Duration {
	if expiresAt == nil {
		return fallback
	}
	ttl := time.Until(*expiresAt)
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}

func (c *GeocodingCache) GetCachedGeocode(ctx context.Context, queryNormalized, countryCodes string) (*geocoding.CachedGeocode, error) {
	raw, err := c.rdb.Get(ctx, entryKey(queryNormalized, countryCodes)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached geocode: %w", err)
	}

	var entry geocoding.CachedGeocode
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cached geocode: %w", err)
	}

	hits, err := c.rdb.Get(ctx, hitsKey(queryNormalized, countryCodes)).Int()
	if err == nil {
		entry.HitCount = hits
	}
	return &entry, nil
}

func (c *GeocodingCache) CacheGeocode(ctx context.Context, entry geocoding.CachedGeocode) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cached geocode: %w", err)
	}
	ttl := ttlUntil(entry.ExpiresAt, geocoding.DefaultCacheTTL)
	if err := c.rdb.Set(ctx, entryKey(entry.QueryNormalized, entry.CountryCodes), raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache geocode: %w", err)
	}
	return nil
}

func (c *GeocodingCache) IncrementHitCount(ctx context.Context, entry geocoding.CachedGeocode) error {
	key := hitsKey(entry.QueryNormalized, entry.CountryCodes)
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttlUntil(entry.ExpiresAt, geocoding.DefaultCacheTTL))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment hit count: %w", err)
	}
	return nil
}

func (c *GeocodingCache) GetRecentFailure(ctx context.Context, queryNormalized, countryCodes string) (*geocoding.Failure, error) {
	raw, err := c.rdb.Get(ctx, failureKey(queryNormalized, countryCodes)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recent failure: %w", err)
	}

	var failure geocoding.Failure
	if err := json.Unmarshal(raw, &failure); err != nil {
		return nil, fmt.Errorf("decode failure: %w", err)
	}
	return &failure, nil
}

func (c *GeocodingCache) RecordFailure(ctx context.Context, failure geocoding.Failure) error {
	key := failureKey(failure.QueryNormalized, failure.CountryCodes)
	if previous, err := c.GetRecentFailure(ctx, failure.QueryNormalized, failure.CountryCodes); err == nil && previous != nil {
		failure.AttemptCount = previous.AttemptCount + 1
	}
	if failure.AttemptCount == 0 {
		failure.AttemptCount = 1
	}

	raw, err := json.Marshal(failure)
	if err != nil {
		return fmt.Errorf("encode failure: %w", err)
	}
	if err := c.rdb.Set(ctx, key, raw, ttlUntil(failure.ExpiresAt, geocoding.DefaultFailureTTL)).Err(); err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}
