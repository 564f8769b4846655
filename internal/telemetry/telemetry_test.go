package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/xraph/irqstat/internal/config"
	"github.com/xraph/irqstat/internal/logger"
)

func TestDisabledIsNoop(t *testing.T) {
	p, err := New(context.Background(), config.TracingConfig{}, "dev", "test", logger.NewNoopLogger())
	require.NoError(t, err)

	_, span := p.Tracer("x").Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.Equal(t, p.TracerProvider(), otel.GetTracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestEnabledRecordsSpans(t *testing.T) {
	cfg := config.DefaultConfig().Tracing
	cfg.Enabled = true
	cfg.Endpoint = "127.0.0.1:1"

	p, err := New(context.Background(), cfg, "dev", "test", logger.NewNoopLogger())
	require.NoError(t, err)

	_, span := p.Tracer("x").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = p.Shutdown(ctx)
}
