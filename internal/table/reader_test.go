package table

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	irqerrors "github.com/xraph/irqstat/internal/errors"
)

const softirqs = `                    CPU0       CPU1
          HI:          1          0
       TIMER:    1043411     975522
      NET_TX:          5         12
      NET_RX:      42213      51002
`

func TestParse(t *testing.T) {
	snap := Parse([]byte(softirqs), DefaultColumnPrefix)

	assert.Equal(t, 5, snap.Rows)
	assert.Equal(t, 2, snap.Columns)
	assert.Equal(t, []string{"CPU0", "CPU1"}, snap.Header())
	assert.Equal(t, []string{"TIMER:", "1043411", "975522"}, snap.Line(2))
	assert.Nil(t, snap.Line(5))
	assert.Nil(t, snap.Line(-1))
}

func TestParseKeepsBlankLines(t *testing.T) {
	snap := Parse([]byte("CPU0\nA: 1\n\nB: 2"), DefaultColumnPrefix)

	assert.Equal(t, 4, snap.Rows)
	assert.Empty(t, snap.Line(2))
	assert.Equal(t, []string{"B:", "2"}, snap.Line(3))
}

func TestParseEmpty(t *testing.T) {
	snap := Parse(nil, DefaultColumnPrefix)
	assert.Zero(t, snap.Rows)
	assert.Zero(t, snap.Columns)
}

func TestCountColumns(t *testing.T) {
	header := []string{"CPU0", "CPU1", "CPU2", "junk"}

	assert.Equal(t, 3, CountColumns(header, "CPU"))
	assert.Equal(t, 4, CountColumns(header, ""))
	assert.Equal(t, 0, CountColumns([]string{"foo"}, "CPU"))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"NET_RX:", "10", "20"}, Tokenize(" NET_RX:\t10   20\r"))
	assert.Empty(t, Tokenize("   \t "))
}

func TestFileReader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "proc"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "proc", "softirqs"), []byte(softirqs), 0o644))

	r := NewFileReader(dir, "/proc/softirqs", DefaultColumnPrefix)
	assert.Equal(t, filepath.Join(dir, "proc", "softirqs"), r.Source())

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Rows)
	assert.Equal(t, 2, snap.Columns)
}

func TestFileReaderMissingFileIsTransient(t *testing.T) {
	r := NewFileReader("", filepath.Join(t.TempDir(), "missing"), DefaultColumnPrefix)

	_, err := r.Snapshot(context.Background())
	require.Error(t, err)
	assert.True(t, irqerrors.IsTransient(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestFileReaderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileReader("", "/proc/softirqs", DefaultColumnPrefix).Snapshot(ctx)
	assert.True(t, irqerrors.IsTransient(err))
}

func TestStaticReader(t *testing.T) {
	r := NewStaticReader("fixture", DefaultColumnPrefix, "CPU0\nA: 1")

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Rows)

	r.Fail(errors.New("gone"))
	_, err = r.Snapshot(context.Background())
	assert.True(t, irqerrors.IsTransient(err))

	r.Set("CPU0 CPU1\nA: 1 2\nB: 3 4")
	snap, err = r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Rows)
	assert.Equal(t, 2, snap.Columns)
}
