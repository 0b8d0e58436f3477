// ABOUTME: Live-database schema introspection that builds the foreign-key graph.
// ABOUTME: Reads sqlite_master plus table_info/foreign_key_list pragmas; fails hard on unreadable metadata.
package schema

import (
	"database/sql"
	"fmt"
)

// IntrospectionError indicates the database metadata could not be read.
// This is fatal at startup: the system refuses to serve queries without a
// schema graph rather than operating against a stale or absent one.
type IntrospectionError struct {
	Message string
	Cause   error
}

func (e *IntrospectionError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *IntrospectionError) Unwrap() error {
	return e.Cause
}

// Build introspects the connected database and constructs the schema graph.
// Tables, columns, and foreign keys are read once; the resulting graph is
// immutable and safe to share across concurrent queries.
func Build(db *sql.DB) (*Graph, error) {
	names, err := listTables(db)
	if err != nil {
		return nil, &IntrospectionError{Message: "list tables", Cause: err}
	}
	if len(names) == 0 {
		return nil, &IntrospectionError{Message: "database has no tables"}
	}

	g := newGraph()
	for _, name := range names {
		cols, err := tableColumns(db, name)
		if err != nil {
			return nil, &IntrospectionError{Message: fmt.Sprintf("read columns for %q", name), Cause: err}
		}
		g.addTable(name, cols)
	}

	// Foreign keys reference other tables, so add edges after all tables exist.
	for _, name := range names {
		edges, err := tableForeignKeys(db, name)
		if err != nil {
			return nil, &IntrospectionError{Message: fmt.Sprintf("read foreign keys for %q", name), Cause: err}
		}
		for _, e := range edges {
			// A FK declared without an explicit target column references the
			// parent table's primary key.
			if e.ToColumn == "" {
				e.ToColumn = g.primaryKeyColumn(e.ToTable)
			}
			g.addEdge(e)
		}
	}

	g.finalize()
	return g, nil
}

// listTables returns user table names in sorted order, excluding SQLite
// internal tables.
func listTables(db *sql.DB) ([]string, error) {
	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// tableColumns reads column metadata via PRAGMA table_info.
func tableColumns(db *sql.DB, table string) ([]Column, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, Column{
			Name:       name,
			Type:       ctype,
			NotNull:    notNull != 0,
			PrimaryKey: pk != 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %q has no columns", table)
	}
	return cols, nil
}

// tableForeignKeys reads declared foreign keys via PRAGMA foreign_key_list.
func tableForeignKeys(db *sql.DB, table string) ([]FKEdge, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA foreign_key_list(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []FKEdge
	for rows.Next() {
		var (
			id, seq  int
			toTable  string
			from     string
			to       sql.NullString
			onUpdate string
			onDelete string
			match    string
		)
		if err := rows.Scan(&id, &seq, &toTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		edges = append(edges, FKEdge{
			FromTable:  table,
			FromColumn: from,
			ToTable:    toTable,
			ToColumn:   to.String,
		})
	}
	return edges, rows.Err()
}
