package mdb

import (
	"fmt"
	"slices"
)

// Relation is an in-memory table: ordered column names plus rows of values.
// Values are the types the engine and stores traffic in: int64, float64,
// string, []byte, or nil. Booleans are represented as the strings "TRUE"
// and "FALSE"; timestamps as "2006-01-02 15:04:05" strings.
type Relation struct {
	Columns []string
	Rows    [][]any
}

// NewRelation builds a relation, copying neither columns nor rows.
func NewRelation(columns []string, rows [][]any) *Relation {
	return &Relation{Columns: columns, Rows: rows}
}

// Empty reports whether the relation has no rows.
func (r *Relation) Empty() bool { return r == nil || len(r.Rows) == 0 }

// NumRows returns the row count.
func (r *Relation) NumRows() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// columnIndex returns the position of name, or -1.
func (r *Relation) columnIndex(name string) int {
	return slices.Index(r.Columns, name)
}

// Project returns a new relation restricted to the named columns, in the
// given order.
func (r *Relation) Project(columns []string) (*Relation, error) {
	idx := make([]int, len(columns))
	for i, c := range columns {
		j := r.columnIndex(c)
		if j < 0 {
			return nil, fmt.Errorf("column %q not present in relation: %w", c, ErrValidation)
		}
		idx[i] = j
	}
	rows := make([][]any, len(r.Rows))
	for i, row := range r.Rows {
		out := make([]any, len(idx))
		for k, j := range idx {
			out[k] = row[j]
		}
		rows[i] = out
	}
	return &Relation{Columns: slices.Clone(columns), Rows: rows}, nil
}

// WithConstColumn returns a new relation with an extra column appended,
// holding value in every row.
func (r *Relation) WithConstColumn(name string, value any) *Relation {
	cols := make([]string, 0, len(r.Columns)+1)
	cols = append(cols, r.Columns...)
	cols = append(cols, name)
	rows := make([][]any, len(r.Rows))
	for i, row := range r.Rows {
		out := make([]any, 0, len(row)+1)
		out = append(out, row...)
		out = append(out, value)
		rows[i] = out
	}
	return &Relation{Columns: cols, Rows: rows}
}

// Append unions other's rows into r. Column sets must match positionally;
// callers are expected to have checked compatibility.
func (r *Relation) Append(other *Relation) {
	if len(r.Columns) == 0 {
		r.Columns = slices.Clone(other.Columns)
	}
	r.Rows = append(r.Rows, other.Rows...)
}

// SameColumnSet reports whether the two relations have the same columns,
// ignoring order.
func (r *Relation) SameColumnSet(other *Relation) bool {
	if len(r.Columns) != len(other.Columns) {
		return false
	}
	a := slices.Clone(r.Columns)
	b := slices.Clone(other.Columns)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// concatRelations concatenates parts in order into a single relation. Parts
// must share column order (they come from the same SELECT). Returns an
// empty relation when parts is empty.
func concatRelations(parts []*Relation) *Relation {
	out := &Relation{}
	for _, p := range parts {
		out.Append(p)
	}
	return out
}
