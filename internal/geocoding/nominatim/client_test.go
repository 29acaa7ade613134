package nominatim

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string) *Client {
	return NewClient(url, "test@example.com", WithRateLimit(100), WithRetryDelay(time.Millisecond))
}

func TestClient_Lookup_Success(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Places/1.0 (test@example.com)") {
			t.Errorf("unexpected User-Agent: %s", ua)
		}
		query := r.URL.Query()
		if query.Get("q") != "1600 Amphitheatre Parkway" {
			t.Errorf("unexpected query: %s", query.Get("q"))
		}
		if query.Get("format") != "jsonv2" {
			t.Errorf("unexpected format: %s", query.Get("format"))
		}
		if query.Get("countrycodes") != "us" {
			t.Errorf("unexpected countrycodes: %s", query.Get("countrycodes"))
		}
		if query.Get("limit") != "1" {
			t.Errorf("unexpected limit: %s", query.Get("limit"))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]SearchResult{{
			PlaceID:     1,
			Lat:         "37.4",
			Lon:         "-122.08",
			DisplayName: "Google Building 40, Mountain View",
			Type:        "office",
		}})
	}))
	defer mockServer.Close()

	results, err := newTestClient(mockServer.URL).Lookup(context.Background(), "1600 Amphitheatre Parkway", "us")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Lat != 37.4 || results[0].Lng != -122.08 {
		t.Errorf("unexpected coordinates: %+v", results[0].Coordinates)
	}
	if results[0].PlaceType != "office" {
		t.Errorf("unexpected place type: %s", results[0].PlaceType)
	}
	if len(results[0].RawResponse) == 0 {
		t.Error("expected raw response to be kept")
	}
}

func TestClient_Lookup_NoResults(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer mockServer.Close()

	results, err := newTestClient(mockServer.URL).Lookup(context.Background(), "nowhere", "")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestClient_Lookup_BadCoordinates(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"lat":"north","lon":"1"}]`))
	}))
	defer mockServer.Close()

	if _, err := newTestClient(mockServer.URL).Lookup(context.Background(), "x", ""); err == nil {
		t.Fatal("expected error for unparsable latitude")
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"lat":"1.5","lon":"2.5"}]`))
	}))
	defer mockServer.Close()

	results, err := newTestClient(mockServer.URL).Lookup(context.Background(), "retry me", "")
	if err != nil {
		t.Fatalf("Lookup failed after retries: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 calls, got %d", got)
	}
	if len(results) != 1 || results[0].Lat != 1.5 {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestClient_GivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer mockServer.Close()

	_, err := newTestClient(mockServer.URL).Lookup(context.Background(), "busy", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "max retries exceeded") {
		t.Errorf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != MaxRetries+1 {
		t.Errorf("expected %d calls, got %d", MaxRetries+1, got)
	}
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer mockServer.Close()

	_, err := newTestClient(mockServer.URL).Search(context.Background(), "bad", SearchOptions{})
	if err == nil || !strings.Contains(err.Error(), "unexpected status code 400") {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestClient_SearchRejectsEmptyQuery(t *testing.T) {
	if _, err := NewClient(DefaultBaseURL, "").Search(context.Background(), "", SearchOptions{}); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer mockServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestClient(mockServer.URL).Search(ctx, "cancelled", SearchOptions{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
