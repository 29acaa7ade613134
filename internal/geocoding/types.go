package geocoding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Coordinates is a resolved WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Result is a single candidate returned by a Provider.
type Result struct {
	Coordinates
	DisplayName string
	PlaceType   string
	RawResponse []byte
}

// Provider resolves a free-text address against an external service.
// An empty slice with a nil error means the address is unknown.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, address, countryCodes string) ([]Result, error)
}

// CachedGeocode is a cached forward geocoding result.
type CachedGeocode struct {
	ID              int64
	QueryNormalized string
	CountryCodes    string
	Latitude        float64
	Longitude       float64
	DisplayName     string
	PlaceType       string
	RawResponse     []byte
	Source          string
	HitCount        int
	CreatedAt       time.Time
	ExpiresAt       *time.Time
}

// Failure is a remembered "address not found" answer.
type Failure struct {
	QueryNormalized string
	CountryCodes    string
	FailureReason   string
	AttemptCount    int
	CreatedAt       time.Time
	ExpiresAt       *time.Time
}

// Cache stores positive and negative geocoding answers. Lookups return
// (nil, nil) on a miss.
type Cache interface {
	GetCachedGeocode(ctx context.Context, queryNormalized, countryCodes string) (*CachedGeocode, error)
	CacheGeocode(ctx context.Context, entry CachedGeocode) error
	IncrementHitCount(ctx context.Context, entry CachedGeocode) error
	GetRecentFailure(ctx context.Context, queryNormalized, countryCodes string) (*Failure, error)
	RecordFailure(ctx context.Context, failure Failure) error
}

// ErrorKind classifies a geocoding failure.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "not_found"
	KindServiceUnavailable ErrorKind = "service_unavailable"
)

var (
	// ErrNotFound matches any GeocodeError of kind KindNotFound.
	ErrNotFound = errors.New("address not found")
	// ErrServiceUnavailable matches any GeocodeError of kind KindServiceUnavailable.
	ErrServiceUnavailable = errors.New("geocoding service unavailable")
)

// GeocodeError is returned by Service.Geocode for every failure.
type GeocodeError struct {
	Kind    ErrorKind
	Address string
	Err     error
}

func (e *GeocodeError) Error() string {
	msg := "geocoding service unavailable"
	if e.Kind == KindNotFound {
		msg = "could not find location for the specified address"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%q): %v", msg, e.Address, e.Err)
	}
	return fmt.Sprintf("%s (%q)", msg, e.Address)
}

func (e *GeocodeError) Unwrap() error { return e.Err }

func (e *GeocodeError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrServiceUnavailable:
		return e.Kind == KindServiceUnavailable
	}
	return false
}

// NormalizeQuery lowercases, trims and collapses whitespace so equivalent
// addresses share a cache entry.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
