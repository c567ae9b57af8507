package mdb

import (
	"fmt"
)

// Reader resolves logical tables into Tables and materializes them.
type Reader struct {
	Registry  Registry
	Store     FileStore
	NewEngine EngineFactory
}

// Read resolves (userspace, table) at or below maxVersion (LatestVersion
// for the newest) into a Table.
//
// A non-prod userspace layers on top of prod with read-committed semantics:
// prod's segment list comes first and the userspace's second, regardless of
// original write order. The returned version number is the max of the two;
// the schema is the userspace's if it has one, else prod's, else the
// default. It is an error only when both are absent.
func (r *Reader) Read(userspace, table string, maxVersion int64) (*Table, error) {
	tableVersion, err := r.Registry.GetCurrent(userspace, table, maxVersion)
	if err != nil {
		return nil, fmt.Errorf("resolve %s/%s: %w", userspace, table, err)
	}

	var schemaFilename string
	var dataListFilenames []string
	var versionNumber int64

	if userspace == ProdUserspace {
		if tableVersion == nil {
			return nil, fmt.Errorf("requested table %s/%s does not exist: %w", userspace, table, ErrValidation)
		}
		schemaFilename = tableVersion.TableSchemaFilename
		dataListFilenames = append(dataListFilenames, tableVersion.DataListFilename)
		versionNumber = tableVersion.VersionNumber
	} else {
		prodVersion, err := r.Registry.GetCurrent(ProdUserspace, table, maxVersion)
		if err != nil {
			return nil, fmt.Errorf("resolve %s/%s: %w", ProdUserspace, table, err)
		}
		if tableVersion == nil && prodVersion == nil {
			return nil, fmt.Errorf(
				"requested table %s/%s does not exist and %s/%s also does not exist: %w",
				userspace, table, ProdUserspace, table, ErrValidation)
		}

		// Schema preference: userspace, then prod, then default.
		switch {
		case tableVersion != nil && tableVersion.TableSchemaFilename != "":
			schemaFilename = tableVersion.TableSchemaFilename
		case prodVersion != nil:
			schemaFilename = prodVersion.TableSchemaFilename
		}

		// Prod's writes first, the userspace's on top.
		if prodVersion != nil {
			dataListFilenames = append(dataListFilenames, prodVersion.DataListFilename)
			versionNumber = prodVersion.VersionNumber
		}
		if tableVersion != nil {
			dataListFilenames = append(dataListFilenames, tableVersion.DataListFilename)
			versionNumber = max(versionNumber, tableVersion.VersionNumber)
		}
	}

	schema := &TableSchema{}
	if schemaFilename != "" {
		schema, err = r.Store.LoadSchema(r.Registry.PrependDataDir(schemaFilename))
		if err != nil {
			return nil, fmt.Errorf("load schema %s: %w", schemaFilename, err)
		}
	}

	var dataList []DataFileEntry
	for _, listFilename := range dataListFilenames {
		entries, err := r.Store.LoadDataList(r.Registry.PrependDataDir(listFilename))
		if err != nil {
			return nil, fmt.Errorf("load data list %s: %w", listFilename, err)
		}
		for _, e := range entries {
			if e.Type != EntryDeleteAll {
				e.DataFilename = r.Registry.PrependDataDir(e.DataFilename)
			}
			dataList = append(dataList, e)
		}
	}

	return NewTable(versionNumber, schema, dataList), nil
}
