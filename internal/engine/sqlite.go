// Package engine provides the SQL engine the materializer drives: an
// in-memory SQLite database that relations are registered into and queried
// out of.
package engine

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"zgrid/internal/mdb"
)

// SQLite is an in-memory query engine. One instance serves exactly one
// materialization; it is not safe for concurrent use.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a fresh in-memory engine.
func NewSQLite() (mdb.Engine, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// An in-memory database exists per connection; pin to one.
	db.SetMaxOpenConns(1)
	return &SQLite{db: db}, nil
}

func (e *SQLite) Close() error { return e.db.Close() }

// Register creates (or replaces) a table named name holding rel. Column
// types are left dynamic; SQLite's affinity rules match the value types the
// relations carry (int64, float64, string, []byte).
func (e *SQLite) Register(name string, rel *mdb.Relation) error {
	if _, err := e.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", name)); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}

	quoted := make([]string, len(rel.Columns))
	for i, c := range rel.Columns {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	create := fmt.Sprintf("CREATE TABLE %q (%s)", name, strings.Join(quoted, ", "))
	if _, err := e.db.Exec(create); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	if len(rel.Rows) == 0 {
		return nil
	}

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(rel.Columns)), ", ") + ")"
	insert := fmt.Sprintf("INSERT INTO %q VALUES %s", name, placeholders)

	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert into %s: %w", name, err)
	}
	stmt, err := tx.Prepare(insert)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert into %s: %w", name, err)
	}
	for _, row := range rel.Rows {
		if len(row) != len(rel.Columns) {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("row has %d values, relation has %d columns", len(row), len(rel.Columns))
		}
		if _, err := stmt.Exec(row...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("insert into %s: %w", name, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert into %s: %w", name, err)
	}
	return nil
}

// Query runs the SQL and returns the result as a relation.
func (e *SQLite) Query(query string) (*mdb.Relation, error) {
	rows, err := e.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("result columns: %w", err)
	}

	rel := &mdb.Relation{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		scan := make([]any, len(columns))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			// TEXT comes back as []byte on some paths; normalize.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		rel.Rows = append(rel.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rel, nil
}
