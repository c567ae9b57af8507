package storage

import (
	"path/filepath"
	"reflect"
	"testing"

	"zgrid/internal/mdb"
)

func TestMemStoreIsolatesStoredValues(t *testing.T) {
	t.Parallel()
	store := NewMem()

	rel := mdb.NewRelation([]string{"k"}, [][]any{{int64(1)}})
	if err := store.SaveRelation("r", rel); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Mutating the original must not affect the stored copy.
	rel.Rows[0][0] = int64(99)

	loaded, err := store.LoadRelation("r")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Rows[0][0] != int64(1) {
		t.Fatalf("stored relation was aliased: %v", loaded.Rows[0][0])
	}

	if _, err := store.LoadRelation("missing"); err == nil {
		t.Fatalf("expected error for missing relation")
	}
}

func TestLocalDataListAndSchemaRoundTrip(t *testing.T) {
	t.Parallel()
	store := NewLocal()
	tmp := t.TempDir()

	entries := []mdb.DataFileEntry{
		{Type: mdb.EntryWrite, DataFilename: "w1.parquet"},
		{Type: mdb.EntryDelete, DataFilename: "d1.parquet"},
		{Type: mdb.EntryDeleteAll},
	}
	listPath := filepath.Join(tmp, "list.json")
	if err := store.SaveDataList(listPath, entries); err != nil {
		t.Fatalf("save data list: %v", err)
	}
	loaded, err := store.LoadDataList(listPath)
	if err != nil {
		t.Fatalf("load data list: %v", err)
	}
	if !reflect.DeepEqual(loaded, entries) {
		t.Fatalf("data list round trip: %+v != %+v", loaded, entries)
	}

	schema := &mdb.TableSchema{DeduplicationKeys: []string{"k1", "k2"}}
	schemaPath := filepath.Join(tmp, "schema.json")
	if err := store.SaveSchema(schemaPath, schema); err != nil {
		t.Fatalf("save schema: %v", err)
	}
	loadedSchema, err := store.LoadSchema(schemaPath)
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	if !reflect.DeepEqual(loadedSchema, schema) {
		t.Fatalf("schema round trip: %+v != %+v", loadedSchema, schema)
	}
}

func TestLocalRelationParquetRoundTrip(t *testing.T) {
	t.Parallel()
	store := NewLocal()
	path := filepath.Join(t.TempDir(), "rel.parquet")

	rel := mdb.NewRelation(
		[]string{"k", "price", "city"},
		[][]any{
			{int64(1), 9.5, "nyc"},
			{int64(2), 120.0, "sfo"},
		},
	)
	if err := store.SaveRelation(path, rel); err != nil {
		t.Fatalf("save relation: %v", err)
	}

	loaded, err := store.LoadRelation(path)
	if err != nil {
		t.Fatalf("load relation: %v", err)
	}
	if !reflect.DeepEqual(loaded.Columns, rel.Columns) {
		t.Fatalf("columns = %v, want %v", loaded.Columns, rel.Columns)
	}
	if !reflect.DeepEqual(loaded.Rows, rel.Rows) {
		t.Fatalf("rows = %v, want %v", loaded.Rows, rel.Rows)
	}
}
