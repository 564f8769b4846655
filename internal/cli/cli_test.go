package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/irqstat/internal/config"
	"github.com/xraph/irqstat/internal/logger"
)

const softirqs = `                    CPU0       CPU1
          HI:          5          0
       TIMER:        100        200
      NET_TX:          0          0
      NET_RX:         30         12
`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand(BuildInfo{Version: "1.2.3", Commit: "abc123", BuildDate: "2026-01-01"})

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func writeTable(t *testing.T, text string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "softirqs")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))

	return path
}

func TestOnceJSON(t *testing.T) {
	out, err := execute(t, "", "once", "--file", writeTable(t, softirqs), "--format", "json", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, `"system.softirqs"`)
	assert.Contains(t, out, `"NET_RX"`)
	assert.Contains(t, out, `"cpu.cpu0_softirqs"`)
	assert.Contains(t, out, `"cpu.cpu1_softirqs"`)
}

func TestOnceTextFromStdin(t *testing.T) {
	out, err := execute(t, softirqs, "once", "--file", "-", "--no-color", "--log-level", "error")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.NotEmpty(t, lines)
	assert.True(t, strings.HasPrefix(lines[0], "GROUP"))

	assert.Contains(t, out, "TIMER")
	assert.Contains(t, out, "300")
	assert.Contains(t, out, "softirqs: 5 rows, 2 columns, 4 used")
	assert.NotContains(t, out, "\x1b[", "output to a buffer is never colored")
}

func TestOnceUnknownTable(t *testing.T) {
	_, err := execute(t, "", "once", "--table", "nope", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown table")
}

func TestOnceStructuralFault(t *testing.T) {
	_, err := execute(t, "", "once", "--file", writeTable(t, "no columns here\n"), "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table softirqs")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "irqstat 1.2.3")
	assert.Contains(t, out, "abc123")

	out, err = execute(t, "", "version", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "1.2.3"`)
	assert.Contains(t, out, `"build_date": "2026-01-01"`)
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "", "version", "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestBuildCollector(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.Enabled = false

	c, err := BuildCollector(context.Background(), cfg, BuildInfo{Version: "test"}, "test-instance", logger.NewNoopLogger())
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close(context.Background()) })

	assert.Len(t, c.Engines, 1)
	assert.Equal(t, "softirqs", c.Engines[0].Name())
	assert.Equal(t, "multi(memory,prometheus)", c.Sink.Name())
	assert.NotNil(t, c.Memory)
	assert.NotNil(t, c.Prometheus)
	assert.Nil(t, c.Influx)
	assert.Nil(t, c.Redis)
}

func TestBuildCollectorRequiresSink(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sinks.Memory.Enabled = false
	cfg.Sinks.Prometheus.Enabled = false

	_, err := BuildCollector(context.Background(), cfg, BuildInfo{}, "x", logger.NewNoopLogger())
	require.Error(t, err)
}

func TestPrinterClip(t *testing.T) {
	var out bytes.Buffer

	p := newPrinter(&out, true)
	p.width = 20
	p.table([]string{"ID", "NAME", "VALUE"}, [][]string{{"A", strings.Repeat("x", 40), "1"}}, nil)

	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), 20)
	}

	assert.Contains(t, out.String(), "…")
}

func TestBuildCollectorGuardsRemoteSinks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sinks.Redis.Enabled = true
	cfg.Sinks.Redis.Addr = "127.0.0.1:1"
	cfg.Sinks.Influx.Enabled = true
	cfg.Sinks.Influx.URL = "http://127.0.0.1:1"
	cfg.Sinks.Influx.Org = "org"
	cfg.Sinks.Influx.Bucket = "irq"

	c, err := BuildCollector(context.Background(), cfg, BuildInfo{}, "x", logger.NewNoopLogger())
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close(context.Background()) })

	assert.Len(t, c.Breakers, 2)
	assert.Equal(t, "multi(memory,prometheus,influx,redis)", c.Sink.Name())
}
