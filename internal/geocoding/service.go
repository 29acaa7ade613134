package geocoding

import (
	"context"
	"errors"
	"time"

	"github.com/Togather-Foundation/places/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	DefaultCacheTTL   = 30 * 24 * time.Hour
	DefaultFailureTTL = 7 * 24 * time.Hour
)

// Service resolves addresses through a cache in front of a Provider.
type Service struct {
	provider     Provider
	cache        Cache
	countryCodes string
	cacheTTL     time.Duration
	failureTTL   time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache puts a cache in front of the provider. A nil cache disables caching.
func WithCache(cache Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithCountryCodes restricts lookups to comma-separated ISO 3166-1 alpha-2 codes.
func WithCountryCodes(codes string) Option {
	return func(s *Service) {
		s.countryCodes = codes
	}
}

// WithTTLs overrides positive and negative cache lifetimes.
func WithTTLs(cacheTTL, failureTTL time.Duration) Option {
	return func(s *Service) {
		if cacheTTL > 0 {
			s.cacheTTL = cacheTTL
		}
		if failureTTL > 0 {
			s.failureTTL = failureTTL
		}
	}
}

// NewService creates a new geocoding service.
func NewService(provider Provider, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		provider:   provider,
		cacheTTL:   DefaultCacheTTL,
		failureTTL: DefaultFailureTTL,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GeocodeResult is the detailed outcome of a lookup.
type GeocodeResult struct {
	Coordinates
	DisplayName string
	Source      string // "cache" or the provider name
	Cached      bool
}

// Geocode resolves address to coordinates. Every failure is a *GeocodeError.
func (s *Service) Geocode(ctx context.Context, address string) (Coordinates, error) {
	result, err := s.Lookup(ctx, address)
	if err != nil {
		return Coordinates{}, err
	}
	return result.Coordinates, nil
}

// Lookup is Geocode with cache and provider details.
func (s *Service) Lookup(ctx context.Context, address string) (*GeocodeResult, error) {
	normalized := NormalizeQuery(address)
	if normalized == "" {
		return nil, &GeocodeError{Kind: KindNotFound, Address: address, Err: errors.New("empty address")}
	}

	if s.cache != nil {
		if result, err := s.fromCache(ctx, address, normalized); result != nil || err != nil {
			return result, err
		}
	}

	metrics.GeocodingCacheMissesTotal.Inc()

	providerName := s.provider.Name()
	start := time.Now()
	results, err := s.provider.Lookup(ctx, address, s.countryCodes)
	metrics.GeocodingProviderLatency.WithLabelValues(providerName).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GeocodingProviderRequestsTotal.WithLabelValues(providerName, "error").Inc()
		metrics.GeocodingFailuresTotal.WithLabelValues("unavailable").Inc()
		s.logger.Error().
			Err(err).
			Str("query", address).
			Str("provider", providerName).
			Dur("latency", time.Since(start)).
			Msg("geocoding provider failed")
		return nil, &GeocodeError{Kind: KindServiceUnavailable, Address: address, Err: err}
	}
	metrics.GeocodingProviderRequestsTotal.WithLabelValues(providerName, "success").Inc()

	if len(results) == 0 {
		metrics.GeocodingFailuresTotal.WithLabelValues("not_found").Inc()
		s.logger.Warn().
			Str("query", address).
			Str("provider", providerName).
			Msg("geocoding returned no results")
		s.rememberFailure(ctx, normalized, "no results found")
		return nil, &GeocodeError{Kind: KindNotFound, Address: address}
	}

	best := results[0]
	metrics.GeocodingRequestsTotal.WithLabelValues(providerName).Inc()
	s.logger.Info().
		Str("query", address).
		Float64("lat", best.Lat).
		Float64("lng", best.Lng).
		Str("display_name", best.DisplayName).
		Dur("latency", time.Since(start)).
		Msg("geocoding successful")

	if s.cache != nil {
		expiresAt := s.now().Add(s.cacheTTL)
		entry := CachedGeocode{
			QueryNormalized: normalized,
			CountryCodes:    s.countryCodes,
			Latitude:        best.Lat,
			Longitude:       best.Lng,
			DisplayName:     best.DisplayName,
			PlaceType:       best.PlaceType,
			RawResponse:     best.RawResponse,
			Source:          providerName,
			CreatedAt:       s.now(),
			ExpiresAt:       &expiresAt,
		}
		if err := s.cache.CacheGeocode(ctx, entry); err != nil {
			s.logger.Warn().Err(err).Str("query", address).Msg("failed to cache geocoding result")
		}
	}

	return &GeocodeResult{
		Coordinates: best.Coordinates,
		DisplayName: best.DisplayName,
		Source:      providerName,
	}, nil
}

// fromCache returns a result or a not-found error when the cache can answer,
// and (nil, nil) when the provider has to be asked. Cache errors never fail
// the lookup.
func (s *Service) fromCache(ctx context.Context, address, normalized string) (*GeocodeResult, error) {
	failure, err := s.cache.GetRecentFailure(ctx, normalized, s.countryCodes)
	if err != nil {
		s.logger.Warn().Err(err).Str("query", address).Msg("failed to check geocoding failure cache")
	}
	if failure != nil {
		metrics.GeocodingRequestsTotal.WithLabelValues("failure_cache").Inc()
		return nil, &GeocodeError{Kind: KindNotFound, Address: address, Err: errors.New(failure.FailureReason)}
	}

	cached, err := s.cache.GetCachedGeocode(ctx, normalized, s.countryCodes)
	if err != nil {
		s.logger.Warn().Err(err).Str("query", address).Msg("failed to check geocoding cache")
		return nil, nil
	}
	if cached == nil {
		return nil, nil
	}

	metrics.GeocodingCacheHitsTotal.Inc()
	metrics.GeocodingRequestsTotal.WithLabelValues("cache").Inc()

	// Hit counts feed the cleanup job's keep-popular rule; losing one is harmless.
	go func(entry CachedGeocode) {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.cache.IncrementHitCount(bgCtx, entry); err != nil {
			s.logger.Warn().Err(err).Int64("id", entry.ID).Msg("failed to increment cache hit count")
		}
	}(*cached)

	s.logger.Debug().
		Str("query", address).
		Float64("lat", cached.Latitude).
		Float64("lng", cached.Longitude).
		Msg("geocoding cache hit")

	return &GeocodeResult{
		Coordinates: Coordinates{Lat: cached.Latitude, Lng: cached.Longitude},
		DisplayName: cached.DisplayName,
		Source:      "cache",
		Cached:      true,
	}, nil
}

func (s *Service) rememberFailure(ctx context.Context, normalized, reason string) {
	if s.cache == nil {
		return
	}
	expiresAt := s.now().Add(s.failureTTL)
	failure := Failure{
		QueryNormalized: normalized,
		CountryCodes:    s.countryCodes,
		FailureReason:   reason,
		AttemptCount:    1,
		CreatedAt:       s.now(),
		ExpiresAt:       &expiresAt,
	}
	if err := s.cache.RecordFailure(ctx, failure); err != nil {
		s.logger.Warn().Err(err).Str("query", normalized).Msg("failed to cache geocoding failure")
	}
}
