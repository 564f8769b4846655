// Package store holds the per-row records the collection engine keeps between
// cycles: parsed counters plus the sink handles resolved for each row.
//
// The store has a shape (rows x columns). Changing the shape rebuilds it from
// scratch and forgets every cached handle and name, because after rows are
// added or removed a slot no longer reliably corresponds to the same source
// line. Row views carry the generation they were issued under and panic when
// used after a rebuild.
package store

import (
	"fmt"
	"math"

	irqerrors "github.com/xraph/irqstat/internal/errors"
	"github.com/xraph/irqstat/internal/sink"
)

// Limits bounds the shape the store accepts.
type Limits struct {
	MaxRows    int `json:"max_rows"    yaml:"max_rows"`
	MaxColumns int `json:"max_columns" yaml:"max_columns"`
}

// DefaultLimits returns limits comfortably above any real /proc table.
func DefaultLimits() Limits {
	return Limits{MaxRows: 4096, MaxColumns: 4096}
}

type cell struct {
	value      uint64
	handle     sink.Handle
	handleName string
}

type record struct {
	used        bool
	id          string
	displayName string
	total       uint64
	handle      sink.Handle
	handleName  string
	cells       []cell
}

// Store is the table of per-row records.
type Store struct {
	rows       int
	columns    int
	records    []record
	generation uint64
	limits     Limits
}

// New creates an empty store. Storage is allocated by the first EnsureCapacity.
func New(limits Limits) *Store {
	return &Store{limits: limits}
}

// Rows returns the current row count.
func (s *Store) Rows() int { return s.rows }

// Columns returns the current column count.
func (s *Store) Columns() int { return s.columns }

// Generation counts rebuilds; it starts at 0 and the first allocation makes it 1.
func (s *Store) Generation() uint64 { return s.generation }

// EnsureCapacity rebuilds the store when (rows, columns) differs from the
// current shape and reports whether it did. A rebuild resets every record,
// so callers must fetch rows again afterwards. An error means the shape can
// never be held and is fatal.
func (s *Store) EnsureCapacity(rows, columns int) (rebuilt bool, err error) {
	if s.records != nil && rows == s.rows && columns == s.columns {
		return false, nil
	}

	if err := s.checkShape(rows, columns); err != nil {
		return false, err
	}

	defer func() {
		if r := recover(); r != nil {
			rebuilt = false
			err = irqerrors.ErrStoreAllocation(rows, columns, fmt.Errorf("%v", r))
		}
	}()

	records := make([]record, rows)
	for i := range records {
		records[i].cells = make([]cell, columns)
	}

	s.records = records
	s.rows = rows
	s.columns = columns
	s.generation++

	return true, nil
}

func (s *Store) checkShape(rows, columns int) error {
	switch {
	case rows < 0 || columns < 0:
		return irqerrors.ErrStoreAllocation(rows, columns, fmt.Errorf("negative shape"))
	case s.limits.MaxRows > 0 && rows > s.limits.MaxRows:
		return irqerrors.ErrStoreAllocation(rows, columns, fmt.Errorf("row limit %d exceeded", s.limits.MaxRows))
	case s.limits.MaxColumns > 0 && columns > s.limits.MaxColumns:
		return irqerrors.ErrStoreAllocation(rows, columns, fmt.Errorf("column limit %d exceeded", s.limits.MaxColumns))
	case columns > 0 && rows > math.MaxInt/columns:
		return irqerrors.ErrStoreAllocation(rows, columns, fmt.Errorf("cell count overflows"))
	}

	return nil
}

// Row returns a view of row i bound to the current generation. It panics
// before the first EnsureCapacity or when i is out of range.
func (s *Store) Row(i int) Row {
	if s.records == nil {
		panic("store: Row called before EnsureCapacity")
	}

	if i < 0 || i >= s.rows {
		panic(fmt.Sprintf("store: row %d out of range [0,%d)", i, s.rows))
	}

	return Row{store: s, index: i, generation: s.generation}
}
