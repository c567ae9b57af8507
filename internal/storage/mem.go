// Package storage implements the file-store collaborator of the table
// layer: relation segments, data lists, and schemas addressed by opaque
// paths. Local persists to disk (parquet for relations, JSON for the
// rest); Mem keeps everything in memory and backs the tests.
package storage

import (
	"fmt"
	"slices"
	"sync"

	"zgrid/internal/mdb"
)

// Mem is an in-memory FileStore.
type Mem struct {
	mu        sync.Mutex
	relations map[string]*mdb.Relation
	dataLists map[string][]mdb.DataFileEntry
	schemas   map[string]*mdb.TableSchema
}

func NewMem() *Mem {
	return &Mem{
		relations: make(map[string]*mdb.Relation),
		dataLists: make(map[string][]mdb.DataFileEntry),
		schemas:   make(map[string]*mdb.TableSchema),
	}
}

func (m *Mem) LoadRelation(path string) (*mdb.Relation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rel, ok := m.relations[path]
	if !ok {
		return nil, fmt.Errorf("relation %s: not found", path)
	}
	return copyRelation(rel), nil
}

func (m *Mem) SaveRelation(path string, rel *mdb.Relation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relations[path] = copyRelation(rel)
	return nil
}

func (m *Mem) LoadDataList(path string) ([]mdb.DataFileEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.dataLists[path]
	if !ok {
		return nil, fmt.Errorf("data list %s: not found", path)
	}
	return slices.Clone(entries), nil
}

func (m *Mem) SaveDataList(path string, entries []mdb.DataFileEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataLists[path] = slices.Clone(entries)
	return nil
}

func (m *Mem) LoadSchema(path string) (*mdb.TableSchema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schema, ok := m.schemas[path]
	if !ok {
		return nil, fmt.Errorf("schema %s: not found", path)
	}
	cp := *schema
	cp.DeduplicationKeys = slices.Clone(schema.DeduplicationKeys)
	return &cp, nil
}

func (m *Mem) SaveSchema(path string, schema *mdb.TableSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *schema
	cp.DeduplicationKeys = slices.Clone(schema.DeduplicationKeys)
	m.schemas[path] = &cp
	return nil
}

func copyRelation(rel *mdb.Relation) *mdb.Relation {
	rows := make([][]any, len(rel.Rows))
	for i, row := range rel.Rows {
		rows[i] = slices.Clone(row)
	}
	return &mdb.Relation{Columns: slices.Clone(rel.Columns), Rows: rows}
}
