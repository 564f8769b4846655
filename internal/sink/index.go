package sink

import (
	"sort"
	"sync"
	"time"
)

// Series is the Handle implementation shared by the built-in sinks. It keeps
// the latest value so pull-based sinks can serve it between cycles.
type Series struct {
	group   string
	id      string
	mu      sync.RWMutex
	name    string
	value   uint64
	appends int64
	created time.Time
	updated time.Time
}

func (s *Series) Group() string { return s.group }

func (s *Series) ID() string { return s.id }

func (s *Series) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.name
}

// Value returns the latest appended value.
func (s *Series) Value() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.value
}

// Appends returns how many values were appended.
func (s *Series) Appends() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.appends
}

// Updated returns when the series last received a value.
func (s *Series) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.updated
}

// Created returns when the series was first created.
func (s *Series) Created() time.Time { return s.created }

func (s *Series) set(value uint64, now time.Time) {
	s.mu.Lock()
	s.value = value
	s.appends++
	s.updated = now
	s.mu.Unlock()
}

func (s *Series) rename(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.name
	s.name = name

	return old
}

type seriesKey struct {
	group string
	id    string
}

// Index is a concurrency-safe find-or-create registry of groups and series.
type Index struct {
	mu      sync.RWMutex
	groups  map[string]GroupSpec
	series  map[seriesKey]*Series
	byGroup map[string][]*Series
	now     func() time.Time
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		groups:  make(map[string]GroupSpec),
		series:  make(map[seriesKey]*Series),
		byGroup: make(map[string][]*Series),
		now:     time.Now,
	}
}

// Define registers a group. The first full definition wins; a bare spec left
// behind by FindOrCreate is replaced. It reports whether the spec was stored.
func (ix *Index) Define(spec GroupSpec) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if existing, ok := ix.groups[spec.Key]; ok && existing != (GroupSpec{Key: spec.Key}) {
		return false
	}

	ix.groups[spec.Key] = spec

	return true
}

// Group returns the spec registered for key.
func (ix *Index) Group(key string) (GroupSpec, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	spec, ok := ix.groups[key]

	return spec, ok
}

// FindOrCreate returns the series (group, id), creating it when missing.
// Groups that were never defined are registered with a bare spec.
func (ix *Index) FindOrCreate(group, id, name string) (*Series, bool) {
	key := seriesKey{group: group, id: id}

	ix.mu.RLock()
	s, ok := ix.series[key]
	ix.mu.RUnlock()

	if ok {
		return s, false
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if s, ok := ix.series[key]; ok {
		return s, false
	}

	if _, ok := ix.groups[group]; !ok {
		ix.groups[group] = GroupSpec{Key: group}
	}

	s = &Series{
		group:   group,
		id:      id,
		name:    name,
		created: ix.now(),
	}
	ix.series[key] = s
	ix.byGroup[group] = append(ix.byGroup[group], s)

	return s, true
}

// Lookup resolves a handle issued by this index.
func (ix *Index) Lookup(h Handle) (*Series, bool) {
	s, ok := h.(*Series)
	if !ok || s == nil {
		return nil, false
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	owned, ok := ix.series[seriesKey{group: s.group, id: s.id}]

	return owned, ok && owned == s
}

// Rename sets a series display name and returns the previous one.
func (ix *Index) Rename(s *Series, name string) string {
	return s.rename(name)
}

// Set records a value on a series.
func (ix *Index) Set(s *Series, value uint64) {
	s.set(value, ix.now())
}

// Groups returns all group specs ordered by priority, then key.
func (ix *Index) Groups() []GroupSpec {
	ix.mu.RLock()
	groups := make([]GroupSpec, 0, len(ix.groups))

	for _, spec := range ix.groups {
		groups = append(groups, spec)
	}
	ix.mu.RUnlock()

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Priority != groups[j].Priority {
			return groups[i].Priority < groups[j].Priority
		}

		return groups[i].Key < groups[j].Key
	})

	return groups
}

// Series returns the series of a group in creation order.
func (ix *Index) Series(group string) []*Series {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]*Series, len(ix.byGroup[group]))
	copy(out, ix.byGroup[group])

	return out
}

// Count returns the number of series across all groups.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return len(ix.series)
}
