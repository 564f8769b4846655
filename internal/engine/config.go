package engine

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/xraph/irqstat/internal/sink"
	"github.com/xraph/irqstat/internal/store"
	"github.com/xraph/irqstat/internal/table"
)

// MaxDisplayNameLength bounds display names. Identifiers are never truncated.
const MaxDisplayNameLength = 50

// Config describes one counter table and how it is published.
type Config struct {
	// Table names the engine in logs, spans and debug output.
	Table string

	// ColumnPrefix marks per-column header tokens.
	ColumnPrefix string

	// Aggregate is the group holding one series per row.
	Aggregate sink.GroupSpec

	// Column is the template for per-column groups. Key and Title may
	// contain one %d verb for the column index; Priority is the base to
	// which the index is added.
	Column sink.GroupSpec

	// PerColumn enables per-column emission.
	PerColumn bool

	// Names overrides display names by identifier.
	Names map[string]string

	Limits store.Limits
}

// DefaultConfig returns the settings for /proc/softirqs.
func DefaultConfig() Config {
	return Config{
		Table:        "softirqs",
		ColumnPrefix: table.DefaultColumnPrefix,
		Aggregate: sink.GroupSpec{
			Key:      "system.softirqs",
			Title:    "System softirqs",
			Units:    "softirqs/s",
			Family:   "softirqs",
			Context:  "system.softirqs",
			Priority: 950,
			Type:     sink.ChartStacked,
		},
		Column: sink.GroupSpec{
			Key:      "cpu.cpu%d_softirqs",
			Title:    "CPU%d softirqs",
			Units:    "softirqs/s",
			Family:   "softirqs",
			Context:  "cpu.softirqs",
			Priority: 3000,
			Type:     sink.ChartStacked,
		},
		PerColumn: true,
		Limits:    store.DefaultLimits(),
	}
}

// ColumnGroup instantiates the per-column template for column c.
func ColumnGroup(template sink.GroupSpec, c int) sink.GroupSpec {
	spec := template
	spec.Key = formatIndex(template.Key, c, ".")
	spec.Title = formatIndex(template.Title, c, " ")
	spec.Priority = template.Priority + c

	return spec
}

func formatIndex(pattern string, c int, sep string) string {
	if strings.Contains(pattern, "%d") {
		return fmt.Sprintf(pattern, c)
	}

	return pattern + sep + strconv.Itoa(c)
}

// NormalizeIdentifier strips one trailing ':' from the first token of a row.
func NormalizeIdentifier(token string) string {
	return strings.TrimSuffix(token, ":")
}

// DisplayName resolves the label for id: an override when one exists,
// otherwise id itself, truncated to MaxDisplayNameLength runes.
func DisplayName(id string, names map[string]string) string {
	name := id
	if override, ok := names[id]; ok && override != "" {
		name = override
	}

	return truncate(name, MaxDisplayNameLength)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[:n])
}

func cloneNames(names map[string]string) map[string]string {
	if len(names) == 0 {
		return nil
	}

	return maps.Clone(names)
}
