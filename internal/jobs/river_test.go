package jobs

import (
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

func TestNewRetryPolicy(t *testing.T) {
	policy := NewRetryPolicy(0)

	tests := []struct {
		kind                string
		expectedMaxAttempts int
		expectedBaseDelay   time.Duration
		expectedMaxDelay    time.Duration
	}{
		{
			kind:                JobKindAssetRelease,
			expectedMaxAttempts: AssetReleaseMaxAttempts,
			expectedBaseDelay:   15 * time.Second,
			expectedMaxDelay:    1 * time.Hour,
		},
		{
			kind:                JobKindGeocodingCacheCleanup,
			expectedMaxAttempts: CleanupMaxAttempts,
			expectedBaseDelay:   5 * time.Minute,
			expectedMaxDelay:    1 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			config := policy.configFor(tt.kind)
			if config.MaxAttempts != tt.expectedMaxAttempts {
				t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, tt.expectedMaxAttempts)
			}
			if config.BaseDelay != tt.expectedBaseDelay {
				t.Errorf("BaseDelay = %v, want %v", config.BaseDelay, tt.expectedBaseDelay)
			}
			if config.MaxDelay != tt.expectedMaxDelay {
				t.Errorf("MaxDelay = %v, want %v", config.MaxDelay, tt.expectedMaxDelay)
			}
		})
	}

	if got := policy.configFor("unknown"); got != policy.Default {
		t.Errorf("unknown kind should use default config, got %+v", got)
	}
}

func TestNewRetryPolicy_AssetReleaseOverride(t *testing.T) {
	policy := NewRetryPolicy(3)
	if got := policy.InsertOpts(JobKindAssetRelease).MaxAttempts; got != 3 {
		t.Errorf("MaxAttempts = %d, want 3", got)
	}
}

func TestRetryPolicy_NextRetry(t *testing.T) {
	policy := NewRetryPolicy(0)
	attemptedAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 15 * time.Second},
		{attempt: 1, want: 15 * time.Second},
		{attempt: 2, want: 30 * time.Second},
		{attempt: 4, want: 2 * time.Minute},
		{attempt: 20, want: time.Hour},
	}

	for _, tt := range tests {
		job := &rivertype.JobRow{Kind: JobKindAssetRelease, Attempt: tt.attempt, AttemptedAt: &attemptedAt}
		got := policy.NextRetry(job).Sub(attemptedAt)
		if got != tt.want {
			t.Errorf("attempt %d: delay = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryPolicy_NilUsesFallback(t *testing.T) {
	var policy *RetryPolicy
	if got := policy.configFor(JobKindAssetRelease).MaxAttempts; got != CleanupMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", got, CleanupMaxAttempts)
	}
}

func TestNewClientConfig(t *testing.T) {
	workers := NewWorkers(WorkerDeps{})
	config := NewClientConfig(ClientOptions{Workers: workers, MaxWorkers: 4})

	if config.Queues[river.QueueDefault].MaxWorkers != 4 {
		t.Errorf("default queue MaxWorkers = %d, want 4", config.Queues[river.QueueDefault].MaxWorkers)
	}
	if config.MaxAttempts != CleanupMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, CleanupMaxAttempts)
	}
	if config.ErrorHandler != nil {
		t.Error("ErrorHandler should be nil without a logger")
	}
}

func TestNewPeriodicJobs(t *testing.T) {
	if got := len(NewPeriodicJobs(false)); got != 0 {
		t.Errorf("periodic jobs without postgres cache = %d, want 0", got)
	}
	if got := len(NewPeriodicJobs(true)); got != 1 {
		t.Errorf("periodic jobs with postgres cache = %d, want 1", got)
	}
}
