package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_OK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/maps/api/geocode/json", r.URL.Path)
		assert.Equal(t, "1600 Amphitheatre Parkway", r.URL.Query().Get("address"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "country:us|country:ca", r.URL.Query().Get("components"))
		_, _ = w.Write([]byte(`{
			"status": "OK",
			"results": [{
				"formatted_address": "1600 Amphitheatre Pkwy, Mountain View, CA 94043, USA",
				"place_id": "abc",
				"types": ["street_address"],
				"geometry": {"location": {"lat": 37.4, "lng": -122.08}}
			}]
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", WithRateLimit(100))
	results, err := client.Lookup(context.Background(), "1600 Amphitheatre Parkway", "us, ca")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 37.4, results[0].Lat)
	assert.Equal(t, -122.08, results[0].Lng)
	assert.Equal(t, "street_address", results[0].PlaceType)
	assert.Equal(t, "google", client.Name())
}

func TestLookup_StatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		code      int
		wantEmpty bool
		wantErr   string
	}{
		{name: "zero results", body: `{"status":"ZERO_RESULTS","results":[]}`, code: 200, wantEmpty: true},
		{name: "over limit", body: `{"status":"OVER_QUERY_LIMIT","error_message":"slow down"}`, code: 200, wantErr: "rate limited"},
		{name: "denied", body: `{"status":"REQUEST_DENIED","error_message":"bad key"}`, code: 200, wantErr: "REQUEST_DENIED"},
		{name: "http error", body: `oops`, code: 502, wantErr: "unexpected status code 502"},
		{name: "bad json", body: `{`, code: 200, wantErr: "parse json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			results, err := NewClient(server.URL, "k", WithRateLimit(100)).Lookup(context.Background(), "somewhere", "")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.wantEmpty {
				assert.Empty(t, results)
			}
		})
	}
}

func TestLookup_EmptyAddress(t *testing.T) {
	_, err := NewClient("", "k").Lookup(context.Background(), " ", "")
	require.Error(t, err)
}
