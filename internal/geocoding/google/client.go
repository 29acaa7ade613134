// Package google implements geocoding.Provider on the Google Maps Geocoding API.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Togather-Foundation/places/internal/geocoding"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://maps.googleapis.com"
	DefaultTimeout   = 5 * time.Second
	DefaultRateLimit = rate.Limit(10)
)

// API status values that matter to callers.
const (
	statusOK             = "OK"
	statusZeroResults    = "ZERO_RESULTS"
	statusOverQueryLimit = "OVER_QUERY_LIMIT"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(DefaultRateLimit, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Results      []result `json:"results"`
}

type result struct {
	FormattedAddress string   `json:"formatted_address"`
	PlaceID          string   `json:"place_id"`
	Types            []string `json:"types"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

func (c *Client) Name() string { return "google" }

// Lookup implements geocoding.Provider. ZERO_RESULTS is reported as an empty
// slice; every other non-OK status is an error.
func (c *Client) Lookup(ctx context.Context, address, countryCodes string) ([]geocoding.Result, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("address cannot be empty")
	}

	params := url.Values{}
	params.Set("address", address)
	params.Set("key", c.apiKey)
	if countryCodes != "" {
		components := make([]string, 0)
		for _, code := range strings.Split(countryCodes, ",") {
			if code = strings.TrimSpace(code); code != "" {
				components = append(components, "country:"+code)
			}
		}
		params.Set("components", strings.Join(components, "|"))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	requestURL := fmt.Sprintf("%s/maps/api/geocode/json?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	switch parsed.Status {
	case statusOK:
	case statusZeroResults:
		return nil, nil
	case statusOverQueryLimit:
		return nil, fmt.Errorf("google geocoding rate limited: %s", parsed.ErrorMessage)
	default:
		return nil, fmt.Errorf("google geocoding status %s: %s", parsed.Status, parsed.ErrorMessage)
	}

	out := make([]geocoding.Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		raw, _ := json.Marshal(r)
		placeType := ""
		if len(r.Types) > 0 {
			placeType = r.Types[0]
		}
		out = append(out, geocoding.Result{
			Coordinates: geocoding.Coordinates{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
			DisplayName: r.FormattedAddress,
			PlaceType:   placeType,
			RawResponse: raw,
		})
	}
	return out, nil
}
