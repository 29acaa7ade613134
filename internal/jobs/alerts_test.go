package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
)

func TestAlertingErrorHandler(t *testing.T) {
	var buf bytes.Buffer
	var notified []error
	handler := NewAlertingErrorHandler(
		slog.New(slog.NewTextHandler(&buf, nil)),
		func(ctx context.Context, job *rivertype.JobRow, err error) { notified = append(notified, err) },
	)
	job := &rivertype.JobRow{ID: 9, Kind: JobKindAssetRelease, Attempt: 8, MaxAttempts: 8}

	assert.Nil(t, handler.HandleError(context.Background(), job, errors.New("bucket gone")))
	assert.Contains(t, buf.String(), "job failed permanently")

	assert.Nil(t, handler.HandlePanic(context.Background(), job, "boom", "stack"))
	assert.Contains(t, buf.String(), "job panicked")

	assert.Len(t, notified, 2)
	assert.EqualError(t, notified[1], "panic: boom")
}
