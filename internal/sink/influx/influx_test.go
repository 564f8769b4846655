package influx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/irqstat/internal/logger"
	"github.com/xraph/irqstat/internal/sink"
)

type mockWriteAPI struct {
	batches [][]*write.Point
	err     error
}

func (m *mockWriteAPI) WriteRecord(context.Context, ...string) error { return nil }

func (m *mockWriteAPI) WritePoint(_ context.Context, points ...*write.Point) error {
	if m.err != nil {
		return m.err
	}

	m.batches = append(m.batches, points)

	return nil
}

func (m *mockWriteAPI) EnableBatching() {}

func (m *mockWriteAPI) Flush(context.Context) error { return nil }

func newTestSink() (*Sink, *mockWriteAPI) {
	w := &mockWriteAPI{}
	s := NewWithWriter(w, "host-1", logger.NewNoopLogger())
	s.now = func() time.Time { return time.Unix(100, 0) }

	return s, w
}

func TestCommitWritesBatch(t *testing.T) {
	ctx := context.Background()
	s, w := newTestSink()

	require.NoError(t, s.DefineGroup(ctx, sink.GroupSpec{Key: "system.softirqs", Family: "softirqs"}))

	for id, v := range map[string]uint64{"NET_RX": 30, "TIMER": 5} {
		h, err := s.FindOrCreate(ctx, "system.softirqs", id, id)
		require.NoError(t, err)
		require.NoError(t, s.Append(ctx, h, v))
	}

	assert.Equal(t, 2, s.Pending())
	assert.Empty(t, w.batches)

	require.NoError(t, s.Commit(ctx, "system.softirqs"))
	assert.Zero(t, s.Pending())
	require.Len(t, w.batches, 1)
	require.Len(t, w.batches[0], 2)

	line := write.PointToLineProtocol(w.batches[0][0], time.Second)
	assert.Contains(t, line, "system.softirqs,")
	assert.Contains(t, line, "family=softirqs")
	assert.Contains(t, line, "instance=host-1")
	assert.Contains(t, line, " 100\n")
}

func TestCommitEmptyGroupSkipsWrite(t *testing.T) {
	s, w := newTestSink()

	require.NoError(t, s.Commit(context.Background(), "nothing"))
	assert.Empty(t, w.batches)
}

func TestRenameAffectsLaterPoints(t *testing.T) {
	ctx := context.Background()
	s, w := newTestSink()

	h, err := s.FindOrCreate(ctx, "g", "NET_RX", "NET_RX")
	require.NoError(t, err)
	require.NoError(t, s.Rename(ctx, h, "net_rx_renamed"))
	require.NoError(t, s.Append(ctx, h, 1))
	require.NoError(t, s.Commit(ctx, "g"))

	line := write.PointToLineProtocol(w.batches[0][0], time.Second)
	assert.Contains(t, line, "name=net_rx_renamed")
	assert.Contains(t, line, "value=1u")
}

func TestWriteFailureDropsBatch(t *testing.T) {
	ctx := context.Background()
	s, w := newTestSink()
	w.err = errors.New("unreachable")

	h, err := s.FindOrCreate(ctx, "g", "x", "x")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, h, 1))

	err = s.Commit(ctx, "g")
	require.Error(t, err)
	assert.ErrorIs(t, err, w.err)
	assert.Zero(t, s.Pending())
}

func TestPingWithoutClient(t *testing.T) {
	s, _ := newTestSink()
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}
