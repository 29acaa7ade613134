package jobs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/places/internal/assets"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAssetStore struct {
	deleteErr error
	deleted   []string
}

func (s *stubAssetStore) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	return name, nil
}

func (s *stubAssetStore) Delete(ctx context.Context, ref string) error {
	s.deleted = append(s.deleted, ref)
	return s.deleteErr
}

func (s *stubAssetStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	return nil, assets.ErrNotFound
}

func releaseJob(ref string) *river.Job[AssetReleaseArgs] {
	return &river.Job[AssetReleaseArgs]{
		JobRow: &rivertype.JobRow{ID: 1, Kind: JobKindAssetRelease, Attempt: 1},
		Args:   AssetReleaseArgs{Ref: ref},
	}
}

func TestAssetReleaseWorker(t *testing.T) {
	tests := []struct {
		name      string
		deleteErr error
		wantErr   bool
	}{
		{name: "released", deleteErr: nil},
		{name: "already gone", deleteErr: assets.ErrNotFound},
		{name: "transient failure retries", deleteErr: errors.New("503 from bucket"), wantErr: true},
		{name: "invalid ref cancels", deleteErr: assets.ErrInvalidRef, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &stubAssetStore{deleteErr: tt.deleteErr}
			worker := AssetReleaseWorker{Store: store, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

			err := worker.Work(context.Background(), releaseJob("uploads/images/a.png"))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, []string{"uploads/images/a.png"}, store.deleted)
		})
	}
}

func TestAssetReleaseWorker_NoStore(t *testing.T) {
	err := AssetReleaseWorker{}.Work(context.Background(), releaseJob("x"))
	require.Error(t, err)
}

type stubInserter struct {
	mu     sync.Mutex
	args   []river.JobArgs
	opts   []*river.InsertOpts
	err    error
	ctxErr error
	// block, when set, holds Insert until it is closed.
	block chan struct{}
}

func (s *stubInserter) Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErr = ctx.Err()
	s.args = append(s.args, args)
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return nil, s.err
	}
	return &rivertype.JobInsertResult{Job: &rivertype.JobRow{ID: 7}}, nil
}

func TestReleaseScheduler_Enqueues(t *testing.T) {
	inserter := &stubInserter{}
	scheduler := NewReleaseScheduler(inserter, NewRetryPolicy(4), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scheduler.Release(ctx, "gs://bucket/images/a.png")
	require.NoError(t, scheduler.Close(context.Background()))

	require.Len(t, inserter.args, 1)
	assert.Equal(t, AssetReleaseArgs{Ref: "gs://bucket/images/a.png"}, inserter.args[0])
	assert.Equal(t, 4, inserter.opts[0].MaxAttempts)
	assert.NoError(t, inserter.ctxErr, "enqueue must not inherit request cancellation")
}

func TestReleaseScheduler_DoesNotBlockCaller(t *testing.T) {
	inserter := &stubInserter{block: make(chan struct{})}
	scheduler := NewReleaseScheduler(inserter, nil, zerolog.Nop())

	returned := make(chan struct{})
	go func() {
		scheduler.Release(context.Background(), "uploads/images/a.png")
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Release waited for the insert")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, scheduler.Close(closeCtx), context.DeadlineExceeded)

	close(inserter.block)
	require.NoError(t, scheduler.Close(context.Background()))
	assert.Len(t, inserter.args, 1)

	scheduler.Release(context.Background(), "uploads/images/b.png")
	require.NoError(t, scheduler.Close(context.Background()))
	assert.Len(t, inserter.args, 1, "releases after close are dropped")
}

func TestReleaseScheduler_LogsFailure(t *testing.T) {
	var logs bytes.Buffer
	inserter := &stubInserter{err: errors.New("pool closed")}
	scheduler := NewReleaseScheduler(inserter, nil, zerolog.New(&logs))

	scheduler.Release(context.Background(), "uploads/images/a.png")
	require.NoError(t, scheduler.Close(context.Background()))

	assert.True(t, strings.Contains(logs.String(), "failed to enqueue asset release"))
	assert.True(t, strings.Contains(logs.String(), "pool closed"))
}
