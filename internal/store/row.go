package store

import (
	"fmt"

	"github.com/xraph/irqstat/internal/sink"
)

// Row is a mutable view of one record.
type Row struct {
	store      *Store
	index      int
	generation uint64
}

func (r Row) rec() *record {
	if r.store == nil {
		panic("store: zero Row")
	}

	if r.generation != r.store.generation {
		panic(fmt.Sprintf("store: row %d used after rebuild (generation %d, store at %d)",
			r.index, r.generation, r.store.generation))
	}

	return &r.store.records[r.index]
}

// Valid reports whether the view still refers to the current generation.
func (r Row) Valid() bool {
	return r.store != nil && r.generation == r.store.generation
}

// Index returns the row position in the table.
func (r Row) Index() int { return r.index }

// Used reports whether the row was filled this cycle.
func (r Row) Used() bool { return r.rec().used }

// ID returns the row identifier.
func (r Row) ID() string { return r.rec().id }

// DisplayName returns the label for the row.
func (r Row) DisplayName() string { return r.rec().displayName }

// Total returns the sum of the row's values.
func (r Row) Total() uint64 { return r.rec().total }

// Value returns the value of column c.
func (r Row) Value(c int) uint64 { return r.rec().cells[c].value }

// MarkUnused excludes the row from emission this cycle. The slot and its
// cached handles are kept.
func (r Row) MarkUnused() {
	rec := r.rec()
	rec.used = false
	rec.total = 0
}

// Fill stores this cycle's parse of the row: identifier, display name and
// one value per column. The total is recomputed from values. Columns beyond
// len(values) are zero.
func (r Row) Fill(id, displayName string, values []uint64) {
	rec := r.rec()
	rec.id = id
	rec.displayName = displayName
	rec.total = 0

	for c := range rec.cells {
		var v uint64
		if c < len(values) {
			v = values[c]
		}

		rec.cells[c].value = v
		rec.total += v
	}

	rec.used = true
}

// AggregateHandle returns the cached aggregate handle, or nil.
func (r Row) AggregateHandle() sink.Handle { return r.rec().handle }

// AggregateStale reports whether the aggregate handle must be resolved again:
// it was never resolved since the last rebuild, or it was resolved under a
// different display name.
func (r Row) AggregateStale() bool {
	rec := r.rec()

	return rec.handle == nil || rec.handleName != rec.displayName
}

// SetAggregateHandle caches h as resolved under the current display name.
func (r Row) SetAggregateHandle(h sink.Handle) {
	rec := r.rec()
	rec.handle = h
	rec.handleName = rec.displayName
}

// ColumnHandle returns the cached handle for column c, or nil.
func (r Row) ColumnHandle(c int) sink.Handle { return r.rec().cells[c].handle }

// ColumnStale applies the aggregate staleness rule to column c.
func (r Row) ColumnStale(c int) bool {
	rec := r.rec()
	cl := &rec.cells[c]

	return cl.handle == nil || cl.handleName != rec.displayName
}

// SetColumnHandle caches h for column c under the current display name.
func (r Row) SetColumnHandle(c int, h sink.Handle) {
	rec := r.rec()
	rec.cells[c].handle = h
	rec.cells[c].handleName = rec.displayName
}

// ResetColumnHandles forgets every per-column handle of the row.
func (r Row) ResetColumnHandles() {
	rec := r.rec()

	for c := range rec.cells {
		rec.cells[c].handle = nil
		rec.cells[c].handleName = ""
	}
}
