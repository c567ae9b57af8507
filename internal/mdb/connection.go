package mdb

import (
	"fmt"

	"github.com/google/uuid"
)

// Connection is the write path: it appends write / delete / delete_all
// segments to a table's log and registers the resulting versions. Each
// call produces a new table version whose data list is the full segment
// log up to that point.
type Connection struct {
	Registry RegistryWriter
	Store    FileStore
}

// Write appends a write segment. When schema is non-nil it becomes the
// table's schema from this version on; otherwise the previous schema
// filename is carried forward.
func (c *Connection) Write(userspace, table string, rel *Relation, schema *TableSchema) (*TableVersion, error) {
	if rel == nil || len(rel.Columns) == 0 {
		return nil, fmt.Errorf("write requires a relation with at least one column: %w", ErrValidation)
	}
	for _, col := range rel.Columns {
		if col == indicatorColumn {
			return nil, fmt.Errorf("column name %s is reserved: %w", indicatorColumn, ErrValidation)
		}
	}

	entries, schemaFilename, err := c.currentLog(userspace, table)
	if err != nil {
		return nil, err
	}

	if schema != nil {
		schemaFilename = segmentName(userspace, table, "schema", "json")
		if err := c.Store.SaveSchema(c.Registry.PrependDataDir(schemaFilename), schema); err != nil {
			return nil, fmt.Errorf("save schema: %w", err)
		}
	}

	dataFilename := segmentName(userspace, table, "write", "parquet")
	if err := c.Store.SaveRelation(c.Registry.PrependDataDir(dataFilename), rel); err != nil {
		return nil, fmt.Errorf("save write segment: %w", err)
	}
	entries = append(entries, DataFileEntry{Type: EntryWrite, DataFilename: dataFilename})

	return c.commit(userspace, table, schemaFilename, entries)
}

// Delete appends a delete segment: rows matching rel's values on rel's
// columns are removed from the logical view. All delete segments of a
// table must share one column set; the mismatch is rejected here at write
// time as well as at read time.
func (c *Connection) Delete(userspace, table string, rel *Relation) (*TableVersion, error) {
	if rel == nil || len(rel.Columns) == 0 {
		return nil, fmt.Errorf("delete requires a relation with at least one column: %w", ErrValidation)
	}

	entries, schemaFilename, err := c.currentLog(userspace, table)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.Type != EntryDelete {
			continue
		}
		prior, err := c.Store.LoadRelation(c.Registry.PrependDataDir(e.DataFilename))
		if err != nil {
			return nil, fmt.Errorf("load prior delete segment: %w", err)
		}
		if !prior.SameColumnSet(rel) {
			return nil, fmt.Errorf("deletes on different sets of columns is not supported: %w", ErrUnsupported)
		}
		break
	}

	dataFilename := segmentName(userspace, table, "delete", "parquet")
	if err := c.Store.SaveRelation(c.Registry.PrependDataDir(dataFilename), rel); err != nil {
		return nil, fmt.Errorf("save delete segment: %w", err)
	}
	entries = append(entries, DataFileEntry{Type: EntryDelete, DataFilename: dataFilename})

	return c.commit(userspace, table, schemaFilename, entries)
}

// DeleteAll appends a delete_all marker: everything written before it stops
// contributing to reads.
func (c *Connection) DeleteAll(userspace, table string) (*TableVersion, error) {
	entries, schemaFilename, err := c.currentLog(userspace, table)
	if err != nil {
		return nil, err
	}
	entries = append(entries, DataFileEntry{Type: EntryDeleteAll})
	return c.commit(userspace, table, schemaFilename, entries)
}

// currentLog loads the table's existing segment log and schema filename for
// the userspace, or empty values when the table does not exist there yet.
func (c *Connection) currentLog(userspace, table string) ([]DataFileEntry, string, error) {
	current, err := c.Registry.GetCurrent(userspace, table, LatestVersion)
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s/%s: %w", userspace, table, err)
	}
	if current == nil {
		return nil, "", nil
	}
	entries, err := c.Store.LoadDataList(c.Registry.PrependDataDir(current.DataListFilename))
	if err != nil {
		return nil, "", fmt.Errorf("load data list: %w", err)
	}
	return entries, current.TableSchemaFilename, nil
}

func (c *Connection) commit(userspace, table, schemaFilename string, entries []DataFileEntry) (*TableVersion, error) {
	listFilename := segmentName(userspace, table, "list", "json")
	if err := c.Store.SaveDataList(c.Registry.PrependDataDir(listFilename), entries); err != nil {
		return nil, fmt.Errorf("save data list: %w", err)
	}
	version, err := c.Registry.AddVersion(userspace, table, schemaFilename, listFilename)
	if err != nil {
		return nil, fmt.Errorf("register version: %w", err)
	}
	return version, nil
}

func segmentName(userspace, table, kind, ext string) string {
	return fmt.Sprintf("%s.%s.%s.%s.%s", userspace, table, kind, uuid.NewString(), ext)
}
