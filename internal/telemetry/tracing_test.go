package telemetry

import (
	"context"
	"testing"

	"github.com/Togather-Foundation/places/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracing_Disabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), config.TracingConfig{Enabled: false}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracing_Errors(t *testing.T) {
	_, err := InitTracing(context.Background(), config.TracingConfig{Enabled: true, Exporter: "none", SampleRate: 1.5}, "test")
	assert.ErrorContains(t, err, "invalid sample rate")

	_, err = InitTracing(context.Background(), config.TracingConfig{Enabled: true, Exporter: "zipkin", SampleRate: 1}, "test")
	assert.ErrorContains(t, err, "unsupported exporter")
}

func TestInitTracing_NoneExporter(t *testing.T) {
	cfg := config.TracingConfig{Enabled: true, Exporter: "none", ServiceName: "places-test", SampleRate: 0.5}
	shutdown, err := InitTracing(context.Background(), cfg, "test")
	require.NoError(t, err)

	_, span := GetTracer("places-test").Start(context.Background(), "lookup")
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}
