// Package sink defines the contract between the collection engine and the
// metric backends it publishes to.
//
// A sink stores series grouped under a group key (one group per chart, e.g.
// "system.softirqs"). Series are identified by (group, id) and carry a
// display name that may change without changing identity. The engine only
// ever supplies cumulative counter values; rate conversion belongs to the
// backend.
package sink

import (
	"context"
)

// ChartType describes how a group's series are meant to be rendered.
type ChartType string

const (
	ChartStacked ChartType = "stacked"
	ChartLine    ChartType = "line"
	ChartArea    ChartType = "area"
)

// GroupSpec describes a group of series.
type GroupSpec struct {
	Key      string    `json:"key"                yaml:"key"`
	Title    string    `json:"title,omitempty"    yaml:"title"`
	Units    string    `json:"units,omitempty"    yaml:"units"`
	Family   string    `json:"family,omitempty"   yaml:"family"`
	Context  string    `json:"context,omitempty"  yaml:"context"`
	Priority int       `json:"priority,omitempty" yaml:"priority"`
	Type     ChartType `json:"type,omitempty"     yaml:"type"`
}

// Handle is an opaque reference to a series, valid for the sink that issued it.
type Handle interface {
	Group() string
	ID() string
	// Name is the display name the sink currently holds for the series.
	Name() string
}

// Sink is a metrics backend.
type Sink interface {
	// Name identifies the sink in logs and errors.
	Name() string

	// DefineGroup declares a group. Idempotent by spec.Key.
	DefineGroup(ctx context.Context, spec GroupSpec) error

	// FindOrCreate returns the series (group, id), creating it with the given
	// display name if it does not exist. An existing series keeps its
	// current name; callers rename explicitly.
	FindOrCreate(ctx context.Context, group, id, name string) (Handle, error)

	// Rename changes the display name of a series without changing its identity.
	Rename(ctx context.Context, h Handle, name string) error

	// Append records the latest cumulative value of a series.
	Append(ctx context.Context, h Handle, value uint64) error

	// Commit closes the group's batch for the current cycle.
	Commit(ctx context.Context, group string) error

	// Close releases backend resources.
	Close() error
}
