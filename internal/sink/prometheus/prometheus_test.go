package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/irqstat/internal/logger"
	"github.com/xraph/irqstat/internal/sink"
	"github.com/xraph/irqstat/internal/sink/memory"
)

func newSink(t *testing.T) *Sink {
	t.Helper()

	s, err := New(DefaultConfig(), logger.NewNoopLogger())
	require.NoError(t, err)

	return s
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "irqstat_system_softirqs_total", MetricName("irqstat", "system.softirqs"))
	assert.Equal(t, "irqstat_cpu_cpu3_softirqs_total", MetricName("irqstat", "cpu.cpu3_softirqs"))
	assert.Equal(t, "a_b_total", MetricName("", "a-b"))
}

func TestCollectSeries(t *testing.T) {
	ctx := context.Background()
	s := newSink(t)

	require.NoError(t, s.DefineGroup(ctx, sink.GroupSpec{
		Key: "system.softirqs", Title: "System softirqs", Units: "softirqs/s", Priority: 950,
	}))

	h, err := s.FindOrCreate(ctx, "system.softirqs", "NET_RX", "NET_RX")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, h, 30))

	h2, err := s.FindOrCreate(ctx, "system.softirqs", "TIMER", "TIMER")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, h2, 5))

	expected := `
# HELP irqstat_system_softirqs_total System softirqs (softirqs/s).
# TYPE irqstat_system_softirqs_total counter
irqstat_system_softirqs_total{id="NET_RX",name="NET_RX"} 30
irqstat_system_softirqs_total{id="TIMER",name="TIMER"} 5
`
	err = testutil.GatherAndCompare(s.Registry(), strings.NewReader(expected), "irqstat_system_softirqs_total")
	assert.NoError(t, err)
}

func TestRenameChangesLabelNotSeries(t *testing.T) {
	ctx := context.Background()
	s := newSink(t)

	h, err := s.FindOrCreate(ctx, "system.softirqs", "NET_RX", "NET_RX")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, h, 1))
	require.NoError(t, s.Rename(ctx, h, "net rx"))

	count, err := testutil.GatherAndCount(s.Registry(), "irqstat_system_softirqs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := `
# HELP irqstat_system_softirqs_total Counter series for system.softirqs.
# TYPE irqstat_system_softirqs_total counter
irqstat_system_softirqs_total{id="NET_RX",name="net rx"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(s.Registry(), strings.NewReader(expected), "irqstat_system_softirqs_total"))
}

func TestCommitTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newSink(t)

	h, err := s.FindOrCreate(ctx, "g", "x", "x")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, h, 1))

	count, err := testutil.GatherAndCount(s.Registry(), "irqstat_last_commit_timestamp_seconds")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, s.Commit(ctx, "g"))

	count, err = testutil.GatherAndCount(s.Registry(), "irqstat_last_commit_timestamp_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestForeignHandle(t *testing.T) {
	ctx := context.Background()
	s := newSink(t)

	other := memory.New()
	h, err := other.FindOrCreate(ctx, "g", "x", "x")
	require.NoError(t, err)

	assert.ErrorIs(t, s.Append(ctx, h, 1), sink.ErrForeignHandle)
	assert.ErrorIs(t, s.Rename(ctx, h, "y"), sink.ErrForeignHandle)
}

func TestHandler(t *testing.T) {
	ctx := context.Background()
	s := newSink(t)

	h, err := s.FindOrCreate(ctx, "system.softirqs", "NET_RX", "NET_RX")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, h, 42))

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `irqstat_system_softirqs_total{id="NET_RX",name="NET_RX"} 42`)
}
