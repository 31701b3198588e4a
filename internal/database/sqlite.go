package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteDB implements Querier for a SQLite database file.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens the database file at path read-only and verifies
// connectivity. Every connection refuses writes, including statements
// trailing a validated SELECT.
func NewSQLiteDB(ctx context.Context, path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", readOnlyDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

func readOnlyDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=query_only(1)"
}

// NewSQLiteDBFromHandle wraps an already opened handle.
func NewSQLiteDBFromHandle(db *sql.DB) *SQLiteDB {
	return &SQLiteDB{db: db}
}

// Query runs the statement and materializes every row.
func (d *SQLiteDB) Query(ctx context.Context, query string) (*RowSet, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	rs := &RowSet{Columns: make([]Column, len(types))}
	for i, ct := range types {
		rs.Columns[i] = Column{Name: ct.Name(), Kind: kindForDeclType(ct.DatabaseTypeName())}
	}

	for rows.Next() {
		raw := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make([]Value, len(raw))
		for i, v := range raw {
			row[i] = convertValue(v)
		}
		if err := rs.Append(row); err != nil {
			return nil, err
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	inferKinds(rs)
	return rs, nil
}

// Close releases the database handle.
func (d *SQLiteDB) Close() {
	d.db.Close()
}

func kindForDeclType(decl string) Kind {
	decl = strings.ToUpper(decl)
	switch {
	case strings.Contains(decl, "INT"),
		strings.Contains(decl, "REAL"),
		strings.Contains(decl, "FLOA"),
		strings.Contains(decl, "DOUB"),
		strings.Contains(decl, "NUMERIC"),
		strings.Contains(decl, "DECIMAL"):
		return KindNumber
	default:
		return KindText
	}
}

var _ Querier = (*SQLiteDB)(nil)
