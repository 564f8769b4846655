package store

// RowView is a read-only copy of a record.
type RowView struct {
	Index       int      `json:"index"`
	Used        bool     `json:"used"`
	ID          string   `json:"id,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Total       uint64   `json:"total"`
	Values      []uint64 `json:"values,omitempty"`
	Resolved    bool     `json:"resolved"`
}

// View is a read-only copy of the whole store.
type View struct {
	Rows       int       `json:"rows"`
	Columns    int       `json:"columns"`
	Generation uint64    `json:"generation"`
	Records    []RowView `json:"records"`
}

// View copies the store. Unused rows are included so slot positions are visible.
func (s *Store) View() View {
	v := View{
		Rows:       s.rows,
		Columns:    s.columns,
		Generation: s.generation,
		Records:    make([]RowView, 0, len(s.records)),
	}

	for i := range s.records {
		rec := &s.records[i]
		rv := RowView{
			Index:       i,
			Used:        rec.used,
			ID:          rec.id,
			DisplayName: rec.displayName,
			Total:       rec.total,
			Resolved:    rec.handle != nil,
		}

		if rec.used {
			rv.Values = make([]uint64, len(rec.cells))
			for c := range rec.cells {
				rv.Values[c] = rec.cells[c].value
			}
		}

		v.Records = append(v.Records, rv)
	}

	return v
}
