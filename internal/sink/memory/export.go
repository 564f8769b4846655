package memory

import (
	"runtime"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xraph/irqstat/internal/sink"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// =============================================================================
// SNAPSHOT
// =============================================================================

// SeriesSnapshot is a point-in-time copy of one series.
type SeriesSnapshot struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Value   uint64    `json:"value"`
	Appends int64     `json:"appends"`
	Updated time.Time `json:"updated"`
}

// GroupSnapshot is a point-in-time copy of one group.
type GroupSnapshot struct {
	sink.GroupSpec
	Series []SeriesSnapshot `json:"series"`
}

// Snapshot copies every group ordered by priority, series in creation order.
func (s *Sink) Snapshot() []GroupSnapshot {
	groups := s.index.Groups()
	out := make([]GroupSnapshot, 0, len(groups))

	for _, spec := range groups {
		series := s.index.Series(spec.Key)
		gs := GroupSnapshot{GroupSpec: spec, Series: make([]SeriesSnapshot, 0, len(series))}

		for _, ser := range series {
			gs.Series = append(gs.Series, SeriesSnapshot{
				ID:      ser.ID(),
				Name:    ser.Name(),
				Value:   ser.Value(),
				Appends: ser.Appends(),
				Updated: ser.Updated(),
			})
		}

		out = append(out, gs)
	}

	return out
}

// =============================================================================
// JSON EXPORT
// =============================================================================

// JSONConfig contains configuration for the JSON export.
type JSONConfig struct {
	Pretty          bool   `json:"pretty"           yaml:"pretty"`
	IncludeMetadata bool   `json:"include_metadata" yaml:"include_metadata"`
	Namespace       string `json:"namespace"        yaml:"namespace"`
}

// JSONExport represents the complete JSON export.
type JSONExport struct {
	Metadata *ExportMetadata `json:"metadata,omitempty"`
	Groups   []GroupSnapshot `json:"groups"`
	Summary  ExportSummary   `json:"summary"`
}

// ExportMetadata contains metadata about the export.
type ExportMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	Namespace string    `json:"namespace,omitempty"`
	Exporter  string    `json:"exporter"`
	System    string    `json:"system"`
}

// ExportSummary contains summary information about the export.
type ExportSummary struct {
	TotalGroups int   `json:"total_groups"`
	TotalSeries int   `json:"total_series"`
	Stats       Stats `json:"stats"`
}

// DefaultJSONConfig returns default JSON configuration.
func DefaultJSONConfig() JSONConfig {
	return JSONConfig{
		Pretty:          true,
		IncludeMetadata: true,
	}
}

// Export renders the sink contents as JSON.
func (s *Sink) Export(config JSONConfig) ([]byte, error) {
	groups := s.Snapshot()

	export := JSONExport{
		Groups: groups,
		Summary: ExportSummary{
			TotalGroups: len(groups),
			Stats:       s.Stats(),
		},
	}

	for _, g := range groups {
		export.Summary.TotalSeries += len(g.Series)
	}

	if config.IncludeMetadata {
		export.Metadata = &ExportMetadata{
			Timestamp: time.Now(),
			Namespace: config.Namespace,
			Exporter:  "memory",
			System:    runtime.GOOS,
		}
	}

	if config.Pretty {
		return json.MarshalIndent(export, "", "  ")
	}

	return json.Marshal(export)
}
