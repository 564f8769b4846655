package sink_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/irqstat/internal/sink"
	"github.com/xraph/irqstat/internal/sink/memory"
)

func TestIndexDefineReplacesBareSpec(t *testing.T) {
	ix := sink.NewIndex()

	_, created := ix.FindOrCreate("system.softirqs", "HI", "HI")
	assert.True(t, created)

	spec, ok := ix.Group("system.softirqs")
	require.True(t, ok)
	assert.Equal(t, sink.GroupSpec{Key: "system.softirqs"}, spec)

	assert.True(t, ix.Define(sink.GroupSpec{Key: "system.softirqs", Title: "System softirqs"}))
	assert.False(t, ix.Define(sink.GroupSpec{Key: "system.softirqs", Title: "ignored"}))

	spec, _ = ix.Group("system.softirqs")
	assert.Equal(t, "System softirqs", spec.Title)
}

func TestIndexSeriesOrder(t *testing.T) {
	ix := sink.NewIndex()

	for _, id := range []string{"b", "a", "c"} {
		ix.FindOrCreate("g", id, id)
	}

	series := ix.Series("g")
	require.Len(t, series, 3)
	assert.Equal(t, "b", series[0].ID())
	assert.Equal(t, "c", series[2].ID())
	assert.Equal(t, 3, ix.Count())
}

func TestIndexGroupsOrdering(t *testing.T) {
	ix := sink.NewIndex()
	ix.Define(sink.GroupSpec{Key: "cpu.cpu1_softirqs", Priority: 3001})
	ix.Define(sink.GroupSpec{Key: "cpu.cpu0_softirqs", Priority: 3000})
	ix.Define(sink.GroupSpec{Key: "system.softirqs", Priority: 950})

	groups := ix.Groups()
	require.Len(t, groups, 3)
	assert.Equal(t, "system.softirqs", groups[0].Key)
	assert.Equal(t, "cpu.cpu0_softirqs", groups[1].Key)
}

func TestMultiFansOut(t *testing.T) {
	ctx := context.Background()
	a, b := memory.New(), memory.New()
	m := sink.NewMulti(a, b)

	assert.Equal(t, "multi(memory,memory)", m.Name())
	require.NoError(t, m.DefineGroup(ctx, sink.GroupSpec{Key: "g"}))

	h, err := m.FindOrCreate(ctx, "g", "NET_RX", "NET_RX")
	require.NoError(t, err)
	assert.Equal(t, "g", h.Group())
	assert.Equal(t, "NET_RX", h.ID())

	require.NoError(t, m.Append(ctx, h, 42))
	require.NoError(t, m.Rename(ctx, h, "net rx"))
	require.NoError(t, m.Commit(ctx, "g"))

	for _, s := range []*memory.Sink{a, b} {
		v, ok := s.Value("g", "NET_RX")
		assert.True(t, ok)
		assert.EqualValues(t, 42, v)
		assert.EqualValues(t, 1, s.Stats().Commits)
	}

	assert.Equal(t, "net rx", h.Name())
	require.NoError(t, m.Close())
}

func TestMultiSingleSinkUnwrapped(t *testing.T) {
	a := memory.New()
	assert.Same(t, a, sink.NewMulti(a))
}

func TestMultiRejectsForeignHandle(t *testing.T) {
	ctx := context.Background()
	a, b := memory.New(), memory.New()
	m := sink.NewMulti(a, b)

	h, err := a.FindOrCreate(ctx, "g", "x", "x")
	require.NoError(t, err)

	err = m.Append(ctx, h, 1)
	assert.True(t, errors.Is(err, sink.ErrForeignHandle))
}
