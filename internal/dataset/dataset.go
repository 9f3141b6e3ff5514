// Package dataset holds the in-memory tabular structure that flows through
// the ETL pipeline.
//
// A Dataset is an ordered sequence of rows. Rows are schema-less: each row
// maps column names to typed values, and a column may be present in some
// rows and absent in others. The package distinguishes three states the
// sources tend to blur:
//
//   - present with a typed value (number, text, bool, timestamp)
//   - present but null (the source had the column, the value was missing)
//   - absent (the source never produced the column for this row)
//
// Absence is modelled by the key not existing in the row; null is an
// explicit Value kind.
package dataset

import (
	"strconv"
	"time"
)

// Kind identifies the type carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindText
	KindBool
	KindTime
)

// Value is a single cell: a tagged union of the supported scalar types.
// The zero Value is null.
type Value struct {
	kind Kind
	num  float64
	text string
	b    bool
	t    time.Time
}

// Null returns the explicit missing-value marker.
func Null() Value { return Value{} }

// Number wraps a float64.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Bool wraps a bool.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Time wraps a timestamp.
func Time(t time.Time) Value { return Value{kind: KindTime, t: t} }

// Kind reports the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is the explicit missing marker.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Number returns the numeric payload. ok is false for any other kind.
func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Text returns the string payload. ok is false for any other kind.
func (v Value) Text() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// Bool returns the boolean payload. ok is false for any other kind.
func (v Value) Bool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Time returns the timestamp payload. ok is false for any other kind.
func (v Value) Time() (time.Time, bool) {
	if v.kind != KindTime {
		return time.Time{}, false
	}
	return v.t, true
}

// String renders the value for serialization (CSV cells, dashboard table).
// Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindText:
		return v.text
	case KindBool:
		if v.b {
			return "1"
		}
		return "0"
	case KindTime:
		return v.t.Format(time.RFC3339)
	default:
		return ""
	}
}

// Row maps column names to values. A missing key means the column is
// absent for that row.
type Row map[string]Value

// Dataset is an ordered collection of rows plus a column registry that
// preserves first-seen column order across the whole table.
type Dataset struct {
	columns []string
	colSet  map[string]bool
	rows    []Row
}

// New creates an empty dataset.
func New() *Dataset {
	return &Dataset{colSet: make(map[string]bool)}
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.rows) }

// Columns returns the column names in first-seen order.
func (d *Dataset) Columns() []string {
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out
}

// HasColumn reports whether any row has ever carried the column.
func (d *Dataset) HasColumn(name string) bool { return d.colSet[name] }

// AppendRow adds a row, registering any new columns.
func (d *Dataset) AppendRow(r Row) {
	for name := range r {
		d.registerColumn(name)
	}
	d.rows = append(d.rows, r)
}

// Row returns the i'th row for direct mutation.
func (d *Dataset) Row(i int) Row { return d.rows[i] }

// At returns the value at (row, column). ok is false when the column is
// absent from that row.
func (d *Dataset) At(i int, column string) (Value, bool) {
	v, ok := d.rows[i][column]
	return v, ok
}

// Set writes a value at (row, column), registering the column if new.
func (d *Dataset) Set(i int, column string, v Value) {
	d.registerColumn(column)
	d.rows[i][column] = v
}

// SetColumn writes the same derived column across all rows via fn,
// registering it once. fn receives the row index.
func (d *Dataset) SetColumn(column string, fn func(i int) Value) {
	d.registerColumn(column)
	for i := range d.rows {
		d.rows[i][column] = fn(i)
	}
}

// Filter removes rows for which keep returns false, preserving order.
func (d *Dataset) Filter(keep func(i int, r Row) bool) {
	kept := d.rows[:0]
	for i, r := range d.rows {
		if keep(i, r) {
			kept = append(kept, r)
		}
	}
	// Zero the tail so dropped rows can be collected.
	for i := len(kept); i < len(d.rows); i++ {
		d.rows[i] = nil
	}
	d.rows = kept
}

// Clone returns a deep copy. Stages that may fail midway work on a clone
// so the orchestrator can fall back to the previous dataset.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		columns: make([]string, len(d.columns)),
		colSet:  make(map[string]bool, len(d.colSet)),
		rows:    make([]Row, len(d.rows)),
	}
	copy(out.columns, d.columns)
	for name := range d.colSet {
		out.colSet[name] = true
	}
	for i, r := range d.rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.rows[i] = nr
	}
	return out
}

func (d *Dataset) registerColumn(name string) {
	if d.colSet == nil {
		d.colSet = make(map[string]bool)
	}
	if !d.colSet[name] {
		d.colSet[name] = true
		d.columns = append(d.columns, name)
	}
}
