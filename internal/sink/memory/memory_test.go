package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/irqstat/internal/sink"
)

type strayHandle struct{}

func (strayHandle) Group() string { return "g" }
func (strayHandle) ID() string    { return "id" }
func (strayHandle) Name() string  { return "name" }

func TestFindOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.DefineGroup(ctx, sink.GroupSpec{Key: "system.softirqs", Priority: 950}))

	h1, err := s.FindOrCreate(ctx, "system.softirqs", "NET_RX", "NET_RX")
	require.NoError(t, err)

	h2, err := s.FindOrCreate(ctx, "system.softirqs", "NET_RX", "other label")
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, "NET_RX", h2.Name(), "existing series keeps its name")

	st := s.Stats()
	assert.EqualValues(t, 2, st.Lookups)
	assert.EqualValues(t, 1, st.Creates)
	assert.Equal(t, 1, st.Series)
}

func TestRenameKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	s := New()

	h, err := s.FindOrCreate(ctx, "g", "TIMER", "TIMER")
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, h, 7))

	require.NoError(t, s.Rename(ctx, h, "timer ticks"))
	assert.Equal(t, "timer ticks", h.Name())

	again, err := s.FindOrCreate(ctx, "g", "TIMER", "TIMER")
	require.NoError(t, err)
	assert.Equal(t, "timer ticks", again.Name())

	v, ok := s.Value("g", "TIMER")
	assert.True(t, ok)
	assert.EqualValues(t, 7, v)
}

func TestForeignHandleRejected(t *testing.T) {
	ctx := context.Background()
	s := New()

	assert.ErrorIs(t, s.Append(ctx, strayHandle{}, 1), sink.ErrForeignHandle)
	assert.ErrorIs(t, s.Rename(ctx, strayHandle{}, "x"), sink.ErrForeignHandle)

	other := New()
	h, err := other.FindOrCreate(ctx, "g", "a", "a")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Append(ctx, h, 1), sink.ErrForeignHandle)
}

func TestSnapshotAndExport(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.DefineGroup(ctx, sink.GroupSpec{Key: "cpu.cpu0_softirqs", Priority: 3000}))
	require.NoError(t, s.DefineGroup(ctx, sink.GroupSpec{Key: "system.softirqs", Priority: 950, Units: "softirqs/s"}))

	for _, id := range []string{"NET_RX", "TIMER"} {
		h, err := s.FindOrCreate(ctx, "system.softirqs", id, id)
		require.NoError(t, err)
		require.NoError(t, s.Append(ctx, h, uint64(len(id))))
	}
	require.NoError(t, s.Commit(ctx, "system.softirqs"))

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "system.softirqs", snap[0].Key, "ordered by priority")
	require.Len(t, snap[0].Series, 2)
	assert.Equal(t, "NET_RX", snap[0].Series[0].ID)
	assert.EqualValues(t, 5, snap[0].Series[1].Value)
	assert.Empty(t, snap[1].Series)

	data, err := s.Export(JSONConfig{IncludeMetadata: true, Namespace: "irqstat"})
	require.NoError(t, err)

	var decoded JSONExport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 2, decoded.Summary.TotalGroups)
	assert.Equal(t, 2, decoded.Summary.TotalSeries)
	assert.EqualValues(t, 1, decoded.Summary.Stats.Commits)
	require.NotNil(t, decoded.Metadata)
	assert.Equal(t, "irqstat", decoded.Metadata.Namespace)
	assert.Equal(t, "softirqs/s", decoded.Groups[0].Units)
}

func TestHas(t *testing.T) {
	s := New()
	assert.False(t, s.Has("g"))

	require.NoError(t, s.DefineGroup(context.Background(), sink.GroupSpec{Key: "g"}))
	assert.True(t, s.Has("g"))
}
