// Package database defines the read-only query collaborator used by the
// executor and its PostgreSQL and SQLite implementations.
package database

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Querier executes a single read-only statement and returns its full
// result set. Implementations must honour ctx cancellation.
type Querier interface {
	Query(ctx context.Context, sql string) (*RowSet, error)
	Close()
}

// Kind is the declared value kind of a column.
type Kind int

const (
	KindText Kind = iota
	KindNumber
)

func (k Kind) String() string {
	if k == KindNumber {
		return "number"
	}
	return "text"
}

// ValueKind tags a single cell.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueNumber
	ValueText
)

// Value is a tagged cell value: null, number or text.
type Value struct {
	Kind ValueKind
	Num  float64
	Text string
}

// Null returns a null cell.
func Null() Value { return Value{Kind: ValueNull} }

// Number returns a numeric cell.
func Number(f float64) Value { return Value{Kind: ValueNumber, Num: f} }

// Text returns a text cell.
func Text(s string) Value { return Value{Kind: ValueText, Text: s} }

// IsNull reports whether the cell is null.
func (v Value) IsNull() bool { return v.Kind == ValueNull }

// String renders the raw cell without padding.
func (v Value) String() string {
	switch v.Kind {
	case ValueNull:
		return "NULL"
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	default:
		return v.Text
	}
}

// Column is one entry of the result schema.
type Column struct {
	Name string
	Kind Kind
}

// RowSet is a fully materialized result: every row has len(Columns) values.
type RowSet struct {
	Columns []Column
	Rows    [][]Value
}

// ColumnNames returns the column names in order.
func (r *RowSet) ColumnNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Len returns the number of rows.
func (r *RowSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Append adds a row, rejecting rows whose arity differs from the schema.
func (r *RowSet) Append(row []Value) error {
	if len(row) != len(r.Columns) {
		return fmt.Errorf("row has %d values, schema has %d columns", len(row), len(r.Columns))
	}
	r.Rows = append(r.Rows, row)
	return nil
}

// NumericColumns returns the indexes of numeric columns in schema order.
func (r *RowSet) NumericColumns() []int {
	if r == nil {
		return nil
	}
	var idx []int
	for i, c := range r.Columns {
		if c.Kind == KindNumber {
			idx = append(idx, i)
		}
	}
	return idx
}

// convertValue maps a driver value to a tagged cell.
func convertValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case int:
		return Number(float64(x))
	case int8:
		return Number(float64(x))
	case int16:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint8:
		return Number(float64(x))
	case uint16:
		return Number(float64(x))
	case uint32:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case float32:
		return Number(float64(x))
	case float64:
		return Number(x)
	case bool:
		return Text(strconv.FormatBool(x))
	case string:
		return Text(x)
	case []byte:
		return Text(string(x))
	case time.Time:
		return Text(x.Format(time.RFC3339))
	case fmt.Stringer:
		return Text(x.String())
	default:
		return Text(fmt.Sprint(x))
	}
}

// inferKinds marks a column numeric when it was declared text but every
// non-null value turned out to be a number (SQLite's dynamic typing).
func inferKinds(rs *RowSet) {
	for i := range rs.Columns {
		if rs.Columns[i].Kind == KindNumber {
			continue
		}
		numeric, seen := true, false
		for _, row := range rs.Rows {
			switch row[i].Kind {
			case ValueNumber:
				seen = true
			case ValueText:
				numeric = false
			}
		}
		if numeric && seen {
			rs.Columns[i].Kind = KindNumber
		}
	}
}
