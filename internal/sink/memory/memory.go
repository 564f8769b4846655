package memory

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xraph/irqstat/internal/sink"
)

// Sink keeps every series in process memory. It backs the debug endpoints,
// the one-shot CLI mode and tests.
type Sink struct {
	index *sink.Index
	stats stats
}

type stats struct {
	defines      atomic.Int64
	lookups      atomic.Int64
	creates      atomic.Int64
	renames      atomic.Int64
	appends      atomic.Int64
	commits      atomic.Int64
	lastCommitNs atomic.Int64
}

// Stats contains call statistics.
type Stats struct {
	Defines    int64     `json:"defines"`
	Lookups    int64     `json:"lookups"`
	Creates    int64     `json:"creates"`
	Renames    int64     `json:"renames"`
	Appends    int64     `json:"appends"`
	Commits    int64     `json:"commits"`
	Series     int       `json:"series"`
	LastCommit time.Time `json:"last_commit"`
}

// New creates an empty memory sink.
func New() *Sink {
	return &Sink{index: sink.NewIndex()}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "memory"
}

func (s *Sink) DefineGroup(_ context.Context, spec sink.GroupSpec) error {
	s.stats.defines.Add(1)
	s.index.Define(spec)

	return nil
}

func (s *Sink) FindOrCreate(_ context.Context, group, id, name string) (sink.Handle, error) {
	s.stats.lookups.Add(1)

	series, created := s.index.FindOrCreate(group, id, name)
	if created {
		s.stats.creates.Add(1)
	}

	return series, nil
}

func (s *Sink) Rename(_ context.Context, h sink.Handle, name string) error {
	series, ok := s.index.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %T", sink.ErrForeignHandle, h)
	}

	s.stats.renames.Add(1)
	s.index.Rename(series, name)

	return nil
}

func (s *Sink) Append(_ context.Context, h sink.Handle, value uint64) error {
	series, ok := s.index.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %T", sink.ErrForeignHandle, h)
	}

	s.stats.appends.Add(1)
	s.index.Set(series, value)

	return nil
}

func (s *Sink) Commit(_ context.Context, _ string) error {
	s.stats.commits.Add(1)
	s.stats.lastCommitNs.Store(time.Now().UnixNano())

	return nil
}

func (s *Sink) Close() error {
	return nil
}

// Stats returns a copy of the call statistics.
func (s *Sink) Stats() Stats {
	st := Stats{
		Defines: s.stats.defines.Load(),
		Lookups: s.stats.lookups.Load(),
		Creates: s.stats.creates.Load(),
		Renames: s.stats.renames.Load(),
		Appends: s.stats.appends.Load(),
		Commits: s.stats.commits.Load(),
		Series:  s.index.Count(),
	}

	if ns := s.stats.lastCommitNs.Load(); ns != 0 {
		st.LastCommit = time.Unix(0, ns)
	}

	return st
}

// Index exposes the underlying series index for read access.
func (s *Sink) Index() *sink.Index {
	return s.index
}

// Value returns the latest value of (group, id).
func (s *Sink) Value(group, id string) (uint64, bool) {
	for _, series := range s.index.Series(group) {
		if series.ID() == id {
			return series.Value(), true
		}
	}

	return 0, false
}

// Has reports whether the group has been defined or received series.
func (s *Sink) Has(group string) bool {
	_, ok := s.index.Group(group)

	return ok
}
