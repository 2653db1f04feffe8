// Package snapshot turns API records into tabular CSV snapshots and stores them.
package snapshot

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/godhahn/data-project/internal/noaa"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// Table is an ordered set of rows sharing a column list.
// Columns appear in the order they are first seen across the rows.
type Table struct {
	Columns []string
	Rows    []noaa.Record
}

// FromRecords builds a Table over records.
func FromRecords(records []noaa.Record) *Table {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range records {
		for _, k := range r.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	return &Table{Columns: cols, Rows: records}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Column returns the string values of column, skipping rows where it is missing.
func (t *Table) Column(name string) []string {
	var out []string
	for _, r := range t.Rows {
		if v, ok := r.Get(name); ok {
			out = append(out, formatCell(v, false))
		}
	}
	return out
}

// Filter returns a new table holding the rows for which keep returns true.
// The column list is recomputed from the kept rows.
func (t *Table) Filter(keep func(noaa.Record) bool) *Table {
	var rows []noaa.Record
	for _, r := range t.Rows {
		if keep(r) {
			rows = append(rows, r)
		}
	}
	return FromRecords(rows)
}

// WriteCSV writes a header line followed by one line per row.
// Missing cells are written empty.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}

	dateOnly := make([]bool, len(t.Columns))
	for i, col := range t.Columns {
		dateOnly[i] = t.midnightOnly(col)
	}

	line := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for i, col := range t.Columns {
			v, ok := r.Get(col)
			if !ok {
				line[i] = ""
				continue
			}
			line[i] = formatCell(v, dateOnly[i])
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// midnightOnly reports whether every time value in col falls on midnight.
func (t *Table) midnightOnly(col string) bool {
	for _, r := range t.Rows {
		v, _ := r.Get(col)
		ts, ok := v.(time.Time)
		if !ok {
			continue
		}
		if h, m, s := ts.Clock(); h != 0 || m != 0 || s != 0 || ts.Nanosecond() != 0 {
			return false
		}
	}
	return true
}

func formatCell(v any, dateOnly bool) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "True"
		}
		return "False"
	case time.Time:
		if dateOnly {
			return val.Format(dateLayout)
		}
		return val.Format(dateTimeLayout)
	case int, int64, float64:
		return fmt.Sprint(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
