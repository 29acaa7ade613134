package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Check
		wantStatus int
		wantState  string
	}{
		{
			name:       "no checks",
			checks:     nil,
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "all pass",
			checks: map[string]Check{
				"storage": PingCheck(pingerFunc(func(ctx context.Context) error { return nil }), "storage"),
			},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name: "warning degrades",
			checks: map[string]Check{
				"migrations": MigrationCheck(func(ctx context.Context) (uint, bool, error) { return 0, false, nil }),
			},
			wantStatus: http.StatusOK,
			wantState:  "degraded",
		},
		{
			name: "failure is unavailable",
			checks: map[string]Check{
				"storage":    PingCheck(pingerFunc(func(ctx context.Context) error { return errors.New("dial tcp: connection refused") }), "storage"),
				"migrations": MigrationCheck(func(ctx context.Context) (uint, bool, error) { return 2, false, nil }),
			},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewHealthChecker("1.0.0", "abc")
			for name, check := range tt.checks {
				checker.Add(name, check)
			}

			rec := httptest.NewRecorder()
			checker.Readyz().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body HealthCheck
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantState, body.Status)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}

func TestMigrationCheck_Dirty(t *testing.T) {
	result := MigrationCheck(func(ctx context.Context) (uint, bool, error) { return 2, true, nil })(context.Background())
	assert.Equal(t, "fail", result.Status)
	assert.Equal(t, true, result.Details["dirty"])
}

func TestReadyz_ShuttingDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	NewHealthChecker("", "").Readyz().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "shutting_down")
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Healthz().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestJobQueueCheck(t *testing.T) {
	tests := []struct {
		name      string
		active    int64
		discarded int64
		err       error
		want      string
	}{
		{name: "operational", active: 3, want: "pass"},
		{name: "discarded releases", discarded: 2, want: "warn"},
		{name: "unreadable", err: errors.New("relation river_job does not exist"), want: "fail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := JobQueueCheck(func(ctx context.Context) (int64, int64, error) {
				return tt.active, tt.discarded, tt.err
			})
			result := check(context.Background())
			assert.Equal(t, tt.want, result.Status)
			if tt.err == nil {
				assert.Equal(t, tt.active, result.Details["active_jobs"])
			}
		})
	}
}
