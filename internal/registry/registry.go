// Package registry implements the table-version registry: the mapping from
// (userspace, table) to an ordered history of table versions, stored in
// SQLite next to the data directory.
package registry

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"zgrid/internal/mdb"
	"zgrid/internal/safepath"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS table_versions (
    userspace             TEXT NOT NULL,
    table_name            TEXT NOT NULL,
    version_number        INTEGER NOT NULL CHECK(version_number >= 0),
    table_schema_filename TEXT NOT NULL DEFAULT '',
    data_list_filename    TEXT NOT NULL,
    created_at            TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
    PRIMARY KEY(userspace, table_name, version_number)
);

CREATE INDEX IF NOT EXISTS idx_table_versions_table
    ON table_versions(table_name, version_number);
`

// Local is a SQLite-backed registry rooted at a data directory.
type Local struct {
	db      *sql.DB
	dataDir string
}

// Open opens (creating if needed) the registry database at dbPath. Data
// filenames handed out by this registry resolve under dataDir.
func Open(dbPath, dataDir string) (*Local, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create registry schema: %w", err)
	}
	return &Local{db: db, dataDir: dataDir}, nil
}

func (l *Local) Close() error { return l.db.Close() }

// PrependDataDir resolves a stored filename to an absolute path under the
// data directory.
func (l *Local) PrependDataDir(name string) string {
	return filepath.Join(l.dataDir, name)
}

// GetCurrent returns the newest version of userspace/table at or below
// maxVersion (mdb.LatestVersion for no bound), or nil when none exists.
func (l *Local) GetCurrent(userspace, table string, maxVersion int64) (*mdb.TableVersion, error) {
	q := `SELECT version_number, table_schema_filename, data_list_filename
	        FROM table_versions
	       WHERE userspace = ? AND table_name = ?`
	args := []any{userspace, table}
	if maxVersion >= 0 {
		q += " AND version_number <= ?"
		args = append(args, maxVersion)
	}
	q += " ORDER BY version_number DESC LIMIT 1"

	tv := &mdb.TableVersion{}
	err := l.db.QueryRow(q, args...).Scan(&tv.VersionNumber, &tv.TableSchemaFilename, &tv.DataListFilename)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s/%s: %w", userspace, table, err)
	}
	return tv, nil
}

// AddVersion registers the next version of userspace/table. Version
// numbers increase monotonically per table across all userspaces so that
// layered versions stay comparable.
func (l *Local) AddVersion(userspace, table, schemaFilename, dataListFilename string) (*mdb.TableVersion, error) {
	if schemaFilename != "" {
		if err := safepath.ValidName(schemaFilename); err != nil {
			return nil, err
		}
	}
	if err := safepath.ValidName(dataListFilename); err != nil {
		return nil, err
	}

	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin add version: %w", err)
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRow(
		"SELECT COALESCE(MAX(version_number), -1) + 1 FROM table_versions WHERE table_name = ?",
		table).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("next version for %s: %w", table, err)
	}

	_, err = tx.Exec(
		`INSERT INTO table_versions (userspace, table_name, version_number, table_schema_filename, data_list_filename)
		 VALUES (?, ?, ?, ?, ?)`,
		userspace, table, next, schemaFilename, dataListFilename)
	if err != nil {
		return nil, fmt.Errorf("insert version %d of %s/%s: %w", next, userspace, table, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit version: %w", err)
	}

	return &mdb.TableVersion{
		VersionNumber:       next,
		TableSchemaFilename: schemaFilename,
		DataListFilename:    dataListFilename,
	}, nil
}
