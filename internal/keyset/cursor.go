package keyset

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord is matched by every *MalformedRecordError.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError reports a row without a value for a declared key
// column. Continuing would require fabricating a key and corrupt the cursor.
type MalformedRecordError struct {
	Column string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: missing key column %q", e.Column)
}

// Is makes errors.Is(err, ErrMalformedRecord) succeed.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// Row gives the cursor access to a row's key values.
type Row interface {
	Value(column string) (any, bool)
}

// Cursor tracks the last key tuple emitted by an export.
type Cursor struct {
	columns []string
	last    []any
}

// NewCursor creates an unset cursor over the ordered key columns.
func NewCursor(columns ...string) *Cursor {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Cursor{columns: cols}
}

// Columns returns the key columns in order.
func (c *Cursor) Columns() []string {
	return c.columns
}

// Last returns the last recorded key tuple, or nil when unset.
func (c *Cursor) Last() []any {
	return c.last
}

// IsSet reports whether a row has been recorded.
func (c *Cursor) IsSet() bool {
	return c.last != nil
}

// Record replaces the cursor state with row's key values. On error the
// previous state is kept.
func (c *Cursor) Record(row Row) error {
	next := make([]any, len(c.columns))
	for i, col := range c.columns {
		v, ok := row.Value(col)
		if !ok || v == nil {
			return &MalformedRecordError{Column: col}
		}
		next[i] = v
	}
	c.last = next
	return nil
}

// Set replaces the cursor state with explicit values.
func (c *Cursor) Set(values ...any) error {
	if len(values) != len(c.columns) {
		return fmt.Errorf("cursor has %d key columns, got %d values", len(c.columns), len(values))
	}
	c.last = append([]any(nil), values...)
	return nil
}

// Reset clears the cursor for a new export.
func (c *Cursor) Reset() {
	c.last = nil
}

// Predicate returns the continuation condition, or nil when unset.
func (c *Cursor) Predicate() Expr {
	if c.last == nil {
		return nil
	}
	return After(c.columns, c.last)
}
