package report

import (
	"fmt"
)

// Cell is one table cell. Present is false when the report has no value for
// the sample/header pair; the cell then renders empty.
type Cell struct {
	Value   string
	Present bool
}

// Row is one sample. It always has one cell per table header.
type Row struct {
	Sample string
	Cells  []Cell
}

// Table is the presentation form of one report.
type Table struct {
	Report  string
	Title   string
	Headers []string
	Rows    []Row
}

// Table assembles a table for report with one row per sample, in order.
// When headers is nil the report's own column order is used.
func (d *Data) Table(report string, samples, headers []string) (Table, error) {
	r, ok := d.Reports[report]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s", ErrUnknownReport, report)
	}
	if headers == nil {
		headers = r.Headers
	}

	t := Table{
		Report:  report,
		Headers: append([]string(nil), headers...),
		Rows:    make([]Row, 0, len(samples)),
	}
	for _, sample := range samples {
		row := Row{Sample: sample, Cells: make([]Cell, len(headers))}
		values := r.Samples[sample]
		for i, h := range headers {
			if v, ok := values[h]; ok {
				row.Cells[i] = Cell{Value: v, Present: true}
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Columns returns the header row including the leading Strain column.
func (t Table) Columns(keyColumn string) []string {
	return append([]string{keyColumn}, t.Headers...)
}

// Records returns the table as string rows, sample name first. Absent cells
// are rendered as absent.
func (t Table) Records(absent string) [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := make([]string, 0, len(row.Cells)+1)
		rec = append(rec, row.Sample)
		for _, c := range row.Cells {
			if c.Present {
				rec = append(rec, c.Value)
			} else {
				rec = append(rec, absent)
			}
		}
		out[i] = rec
	}
	return out
}
