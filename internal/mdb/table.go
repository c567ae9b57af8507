package mdb

import (
	"fmt"
	"slices"
	"strings"
)

// tableOp is a queued query operation on a Table.
type tableOp interface{ isTableOp() }

type selectColumnsOp struct{ columns []string }
type selectRowsOp struct{ pred BoolColumn }

func (selectColumnsOp) isTableOp() {}
func (selectRowsOp) isTableOp()    {}

// Table is a resolved table version plus a queue of query operations.
// Tables are immutable: Select and Where return new Tables sharing the same
// underlying segment list. No I/O happens until the table is materialized.
type Table struct {
	versionNumber int64
	schema        *TableSchema
	dataList      []DataFileEntry
	ops           []tableOp
}

// NewTable builds a table over the given segment log. schema may be nil,
// meaning the default (no deduplication keys).
func NewTable(versionNumber int64, schema *TableSchema, dataList []DataFileEntry) *Table {
	if schema == nil {
		schema = &TableSchema{}
	}
	return &Table{versionNumber: versionNumber, schema: schema, dataList: dataList}
}

// VersionNumber is the unique identifier of this version of this table.
func (t *Table) VersionNumber() int64 { return t.versionNumber }

// Schema returns the table schema.
func (t *Table) Schema() *TableSchema { return t.schema }

// Empty reports whether the table has no segments at all. A table with
// segments may still materialize to zero rows.
func (t *Table) Empty() bool { return len(t.dataList) == 0 }

// Col returns a handle on a single column, used to build row predicates.
func (t *Table) Col(name string) Column {
	return Column{versionNumber: t.versionNumber, name: name}
}

func (t *Table) withOp(op tableOp) *Table {
	ops := make([]tableOp, 0, len(t.ops)+1)
	ops = append(ops, t.ops...)
	ops = append(ops, op)
	return &Table{versionNumber: t.versionNumber, schema: t.schema, dataList: t.dataList, ops: ops}
}

// Select restricts (and reorders) the materialized columns. Applied after a
// previous Select, the new set must be a subset of the running set.
func (t *Table) Select(columns ...string) (*Table, error) {
	if current, ok := t.currentColumns(); ok {
		var notSelected []string
		for _, c := range columns {
			if !slices.Contains(current, c) {
				notSelected = append(notSelected, c)
			}
		}
		if len(notSelected) > 0 {
			return nil, fmt.Errorf(
				"tried to select columns %s after already filtering them out: %w",
				strings.Join(notSelected, ", "), ErrValidation)
		}
	}
	return t.withOp(selectColumnsOp{columns: slices.Clone(columns)}), nil
}

// Where restricts the materialized rows. Successive filters are conjoined.
// The predicate must have been built from this table version.
func (t *Table) Where(pred BoolColumn) (*Table, error) {
	if _, err := pred.whereSQL(t.versionNumber); err != nil {
		return nil, err
	}
	return t.withOp(selectRowsOp{pred: pred}), nil
}

// currentColumns returns the running projected column set, or ok=false when
// no projection has been applied yet.
func (t *Table) currentColumns() ([]string, bool) {
	var current []string
	found := false
	for _, op := range t.ops {
		if sel, ok := op.(selectColumnsOp); ok {
			current = sel.columns
			found = true
		}
	}
	return current, found
}

// buildSQL compiles the queued operations into a select clause and a where
// clause, both containing relPlaceholder where the per-segment relation
// name goes.
func (t *Table) buildSQL() (selectClause, whereClause string, err error) {
	var projections [][]string
	var preds []BoolColumn
	for _, op := range t.ops {
		switch o := op.(type) {
		case selectColumnsOp:
			projections = append(projections, o.columns)
		case selectRowsOp:
			preds = append(preds, o.pred)
		default:
			return "", "", fmt.Errorf("programming error: unknown table op %T", op)
		}
	}

	if len(projections) == 0 {
		selectClause = fmt.Sprintf("SELECT %s.*", relPlaceholder)
	} else {
		// Select() validated each step, so the last projection is the
		// narrowest.
		current := projections[len(projections)-1]
		quoted := make([]string, len(current))
		for i, c := range current {
			quoted[i] = fmt.Sprintf("%s.%q", relPlaceholder, c)
		}
		selectClause = "SELECT " + strings.Join(quoted, ", ")
	}

	if len(preds) == 0 {
		whereClause = "TRUE"
	} else {
		combined := preds[0]
		for _, p := range preds[1:] {
			combined = combined.And(p)
		}
		whereClause, err = combined.whereSQL(t.versionNumber)
		if err != nil {
			return "", "", err
		}
	}
	return selectClause, whereClause, nil
}

// projectedColumns returns the final projected column list, or nil when the
// table materializes all columns.
func (t *Table) projectedColumns() []string {
	cols, ok := t.currentColumns()
	if !ok {
		return nil
	}
	return cols
}
