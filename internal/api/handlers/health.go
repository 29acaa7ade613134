package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type HealthCheck struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	GitCommit string                 `json:"git_commit"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

type CheckResult struct {
	Status    string         `json:"status"` // pass, warn or fail
	Message   string         `json:"message,omitempty"`
	LatencyMs int64          `json:"latency_ms,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Check probes one dependency. It receives a context bounded per check.
type Check func(ctx context.Context) CheckResult

// HealthChecker runs the registered checks for the readiness endpoint.
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]Check
	version   string
	gitCommit string
	timeout   time.Duration
}

func NewHealthChecker(version, gitCommit string) *HealthChecker {
	return &HealthChecker{
		checks:    map[string]Check{},
		version:   version,
		gitCommit: gitCommit,
		timeout:   2 * time.Second,
	}
}

func (h *HealthChecker) Add(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Run executes every check concurrently.
func (h *HealthChecker) Run(ctx context.Context) HealthCheck {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()
	sort.Strings(names)

	results := make([]CheckResult, len(names))
	var g errgroup.Group
	for i, name := range names {
		h.mu.RLock()
		check := h.checks[name]
		h.mu.RUnlock()

		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			results[i] = check(checkCtx)
			return nil
		})
	}
	_ = g.Wait()

	overall := "healthy"
	checks := make(map[string]CheckResult, len(names))
	for i, name := range names {
		checks[name] = results[i]
		switch results[i].Status {
		case "fail":
			overall = "unhealthy"
		case "warn":
			if overall == "healthy" {
				overall = "degraded"
			}
		}
	}

	return HealthCheck{
		Status:    overall,
		Version:   h.version,
		GitCommit: h.gitCommit,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Readyz reports 503 when any check fails or the server is shutting down.
func (h *HealthChecker) Readyz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Err() != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
			return
		}

		result := h.Run(r.Context())
		status := http.StatusOK
		if result.Status == "unhealthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, result)
	}
}

// Healthz is the liveness probe; it never touches dependencies.
func Healthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be reached.
func PingCheck(p Pinger, component string) Check {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		err := p.Ping(ctx)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			details := map[string]any{"error": err.Error()}
			message := component + " unreachable"
			switch {
			case ctx.Err() == context.DeadlineExceeded:
				message = component + " timed out"
			case strings.Contains(err.Error(), "connection refused"):
				details["remediation"] = "Verify the service is running and the configured host and port are correct"
			case strings.Contains(err.Error(), "authentication failed"):
				details["remediation"] = "Verify the configured credentials"
			}
			return CheckResult{Status: "fail", Message: message, LatencyMs: latency, Details: details}
		}
		return CheckResult{Status: "pass", Message: component + " reachable", LatencyMs: latency}
	}
}

// MigrationCheck fails on a dirty schema and warns when none is applied.
func MigrationCheck(version func(ctx context.Context) (uint, bool, error)) Check {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		v, dirty, err := version(ctx)
		latency := time.Since(start).Milliseconds()
		switch {
		case err != nil:
			return CheckResult{Status: "fail", Message: "Failed to read migration version", LatencyMs: latency,
				Details: map[string]any{"error": err.Error(), "remediation": "Run: server migrate up"}}
		case dirty:
			return CheckResult{Status: "fail", Message: "Database in dirty migration state - manual intervention required", LatencyMs: latency,
				Details: map[string]any{"version": v, "dirty": true}}
		case v == 0:
			return CheckResult{Status: "warn", Message: "No migrations applied", LatencyMs: latency}
		}
		return CheckResult{Status: "pass", Message: fmt.Sprintf("Migrations applied successfully (version %d)", v), LatencyMs: latency,
			Details: map[string]any{"version": v}}
	}
}

// JobQueueCheck fails when the queue cannot be read and warns when asset
// releases were discarded recently.
func JobQueueCheck(stats func(ctx context.Context) (active, discardedReleases int64, err error)) Check {
	return func(ctx context.Context) CheckResult {
		start := time.Now()
		active, discarded, err := stats(ctx)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			return CheckResult{Status: "fail", Message: "Failed to query job queue", LatencyMs: latency,
				Details: map[string]any{"error": err.Error(), "remediation": "Run: server migrate river"}}
		}
		details := map[string]any{"active_jobs": active, "discarded_releases": discarded}
		if discarded > 0 {
			return CheckResult{Status: "warn", Message: "Asset releases discarded after final attempt", LatencyMs: latency, Details: details}
		}
		return CheckResult{Status: "pass", Message: "River job queue operational", LatencyMs: latency, Details: details}
	}
}
