package mdb

import (
	"fmt"
	"strings"
)

// indicatorColumn is the reserved sentinel column appended to the deletes
// and dedup-keys relations so that a NULL after a left join marks a
// surviving row.
const indicatorColumn = "__mdb_reserved_indicator__"

const (
	deletesRelation   = "ds"
	dedupKeysRelation = "pks"
)

// Materialize resolves the table's queued operations against its segment
// log and returns the resulting relation.
//
// The segment list is walked newest first so that deletes and already-seen
// deduplication keys are known before older segments are scanned; the
// per-segment results are then reassembled oldest first. A delete_all
// segment stops the walk: nothing older contributes.
func (r *Reader) Materialize(t *Table) (*Relation, error) {
	eng, err := r.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("open query engine: %w", err)
	}
	defer eng.Close()

	selectClause, whereClause, err := t.buildSQL()
	if err != nil {
		return nil, err
	}

	dedupKeys := t.schema.DeduplicationKeys
	dedupSeen := &Relation{}
	deletes := &Relation{}
	var partitions []*Relation

	for i, entry := range reverseEntries(t.dataList) {
		switch entry.Type {
		case EntryWrite:
			name := fmt.Sprintf("t%d", i)
			rel, err := r.Store.LoadRelation(entry.DataFilename)
			if err != nil {
				return nil, fmt.Errorf("load segment %s: %w", entry.DataFilename, err)
			}
			if err := eng.Register(name, rel); err != nil {
				return nil, fmt.Errorf("register segment %s: %w", name, err)
			}

			query, err := segmentQuery(eng, name, selectClause, whereClause, deletes, dedupSeen, dedupKeys)
			if err != nil {
				return nil, err
			}
			result, err := eng.Query(query)
			if err != nil {
				return nil, fmt.Errorf("query segment %s: %w", name, err)
			}
			partitions = append(partitions, result)

			if len(dedupKeys) > 0 {
				keys, err := result.Project(dedupKeys)
				if err != nil {
					return nil, fmt.Errorf("project deduplication keys: %w", err)
				}
				dedupSeen.Append(keys.WithConstColumn(indicatorColumn, int64(1)))
			}

		case EntryDelete:
			rel, err := r.Store.LoadRelation(entry.DataFilename)
			if err != nil {
				return nil, fmt.Errorf("load delete segment %s: %w", entry.DataFilename, err)
			}
			tagged := rel.WithConstColumn(indicatorColumn, int64(1))
			if !deletes.Empty() {
				if !deletes.SameColumnSet(tagged) {
					return nil, fmt.Errorf("deletes on different sets of columns is not supported: %w", ErrUnsupported)
				}
				// Append is positional: line the columns up with earlier deletes.
				if tagged, err = tagged.Project(deletes.Columns); err != nil {
					return nil, fmt.Errorf("align delete segment %s: %w", entry.DataFilename, err)
				}
			}
			deletes.Append(tagged)

		case EntryDeleteAll:
			// Nothing older than a delete_all contributes rows.
			partitions = finishPartitions(partitions)
			return assemble(partitions, t)

		default:
			return nil, fmt.Errorf("data file type %q is not supported: %w", entry.Type, ErrUnsupported)
		}
	}

	partitions = finishPartitions(partitions)
	return assemble(partitions, t)
}

// reverseEntries yields the data list newest first, keyed by the reversed
// position (0 = newest).
func reverseEntries(entries []DataFileEntry) []DataFileEntry {
	out := make([]DataFileEntry, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e
	}
	return out
}

// finishPartitions restores oldest-first order.
func finishPartitions(parts []*Relation) []*Relation {
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}

func assemble(parts []*Relation, t *Table) (*Relation, error) {
	out := concatRelations(parts)
	if len(out.Columns) == 0 {
		out.Columns = t.projectedColumns()
	}
	return out, nil
}

// segmentQuery builds the SELECT for one write segment. Exactly four shapes
// exist depending on whether deletes and dedup keys have accumulated; only
// the applicable joins and predicates appear.
func segmentQuery(eng Engine, name, selectClause, whereClause string, deletes, dedupSeen *Relation, dedupKeys []string) (string, error) {
	sel := strings.ReplaceAll(selectClause, relPlaceholder, name)
	where := strings.ReplaceAll(whereClause, relPlaceholder, name)

	var b strings.Builder
	b.WriteString(sel)
	b.WriteString(" FROM ")
	b.WriteString(name)

	if !deletes.Empty() {
		if err := eng.Register(deletesRelation, deletes); err != nil {
			return "", fmt.Errorf("register deletes: %w", err)
		}
		b.WriteString(" LEFT JOIN " + deletesRelation + " ON ")
		b.WriteString(joinEquality(name, deletesRelation, deleteJoinColumns(deletes)))
	}
	if !dedupSeen.Empty() {
		if err := eng.Register(dedupKeysRelation, dedupSeen); err != nil {
			return "", fmt.Errorf("register dedup keys: %w", err)
		}
		b.WriteString(" LEFT JOIN " + dedupKeysRelation + " ON ")
		b.WriteString(joinEquality(name, dedupKeysRelation, dedupKeys))
	}

	b.WriteString(" WHERE ")
	if !deletes.Empty() {
		b.WriteString(deletesRelation + "." + indicatorColumn + " IS NULL AND ")
	}
	if !dedupSeen.Empty() {
		b.WriteString(dedupKeysRelation + "." + indicatorColumn + " IS NULL AND ")
	}
	b.WriteString(where)

	return b.String(), nil
}

// deleteJoinColumns is every column of the deletes relation except the
// indicator.
func deleteJoinColumns(deletes *Relation) []string {
	cols := make([]string, 0, len(deletes.Columns)-1)
	for _, c := range deletes.Columns {
		if c != indicatorColumn {
			cols = append(cols, c)
		}
	}
	return cols
}

func joinEquality(left, right string, columns []string) string {
	terms := make([]string, len(columns))
	for i, c := range columns {
		terms[i] = fmt.Sprintf("%s.%s = %s.%s", left, c, right, c)
	}
	return strings.Join(terms, " AND ")
}
