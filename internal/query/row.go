package query

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sdshare/sdshare/internal/mapping"
)

// TimeLayout is the wire format for timestamps: UTC, second precision.
const TimeLayout = "2006-01-02T15:04:05Z"

// Row is one result row. Values are owned by the row and stay valid after
// the result set advances.
type Row struct {
	columns []string
	values  []any
	index   map[string]int
}

// NewRow builds a row from parallel column and value slices. []byte values
// are copied into strings.
func NewRow(columns []string, values []any) Row {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return newRow(columns, values, index)
}

func newRow(columns []string, values []any, index map[string]int) Row {
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}
	return Row{columns: columns, values: values, index: index}
}

// Columns returns the column names in result order.
func (r Row) Columns() []string {
	return r.columns
}

// Value returns the raw value of column. NULL reports false.
func (r Row) Value(column string) (any, bool) {
	i, ok := r.index[column]
	if !ok || r.values[i] == nil {
		return nil, false
	}
	return r.values[i], true
}

// String returns the value of column formatted as text, or "" for NULL and
// unknown columns.
func (r Row) String(column string) string {
	v, ok := r.Value(column)
	if !ok {
		return ""
	}
	return FormatValue(v)
}

// Record returns the row as a mapping.Record.
func (r Row) Record() mapping.Record {
	rec := make(mapping.Record, len(r.columns))
	for i, c := range r.columns {
		if r.values[i] != nil {
			rec.Set(c, FormatValue(r.values[i]))
		}
	}
	return rec
}

// FormatValue renders a driver value as text. Times use TimeLayout.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(TimeLayout)
	default:
		return fmt.Sprint(x)
	}
}
