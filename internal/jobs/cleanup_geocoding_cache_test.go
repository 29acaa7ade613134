package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDeleter struct {
	preserve int
	err      error
}

func (s *stubDeleter) DeleteExpired(ctx context.Context, preserveTop int) (int64, int64, error) {
	s.preserve = preserveTop
	if s.err != nil {
		return 0, 0, s.err
	}
	return 3, 1, nil
}

func cleanupJob() *river.Job[CleanupGeocodingCacheArgs] {
	return &river.Job[CleanupGeocodingCacheArgs]{JobRow: &rivertype.JobRow{Kind: JobKindGeocodingCacheCleanup, Attempt: 1}}
}

func TestCleanupGeocodingCacheWorker(t *testing.T) {
	deleter := &stubDeleter{}
	worker := CleanupGeocodingCacheWorker{Cache: deleter}

	require.NoError(t, worker.Work(context.Background(), cleanupJob()))
	assert.Equal(t, DefaultPreserveTopHits, deleter.preserve)

	worker.PreserveTopCount = 50
	require.NoError(t, worker.Work(context.Background(), cleanupJob()))
	assert.Equal(t, 50, deleter.preserve)
}

func TestCleanupGeocodingCacheWorker_Errors(t *testing.T) {
	err := CleanupGeocodingCacheWorker{}.Work(context.Background(), cleanupJob())
	require.Error(t, err)

	deleter := &stubDeleter{err: errors.New("relation does not exist")}
	err = CleanupGeocodingCacheWorker{Cache: deleter}.Work(context.Background(), cleanupJob())
	require.ErrorContains(t, err, "relation does not exist")
}

func TestArgsKinds(t *testing.T) {
	assert.Equal(t, JobKindAssetRelease, AssetReleaseArgs{}.Kind())
	assert.Equal(t, JobKindGeocodingCacheCleanup, CleanupGeocodingCacheArgs{}.Kind())
}
