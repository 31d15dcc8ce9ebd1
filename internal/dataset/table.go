// Package dataset holds small keyed tables exported from a clinical database
// and joins them back into denormalized analysis datasets.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"trialrand/domain/randomisation"
)

// Record is one table row. A column absent from the map is null.
type Record map[string]string

// Table is an ordered set of columns and records.
type Table struct {
	Name    string
	Columns []string
	Rows    []Record
}

// HasColumn reports whether the table defines col
func (t *Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// NullToken is written for null cells and read back as null.
const NullToken = "NA"

// ReadCSV reads a header row followed by records. Empty cells and NullToken are null.
func ReadCSV(name string, r io.Reader) (*Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return fromRecords(name, records)
}

// ReadXLSX reads the given sheet, or the first sheet when sheet is empty.
func ReadXLSX(name string, r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s of %s: %w", sheet, name, err)
	}
	return fromRecords(name, records)
}

func fromRecords(name string, records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%s has no header row", name)
	}

	columns := make([]string, len(records[0]))
	seen := make(map[string]bool, len(columns))
	for i, h := range records[0] {
		col := strings.TrimSpace(h)
		if col == "" {
			return nil, fmt.Errorf("%s: column %d has no name", name, i+1)
		}
		if seen[col] {
			return nil, fmt.Errorf("%s: duplicate column %q", name, col)
		}
		seen[col] = true
		columns[i] = col
	}

	t := &Table{Name: name, Columns: columns}
	for _, rec := range records[1:] {
		row := make(Record, len(columns))
		for j, cell := range rec {
			if j >= len(columns) {
				break
			}
			cell = strings.TrimSpace(cell)
			if cell == "" || cell == NullToken {
				continue
			}
			row[columns[j]] = cell
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteCSV writes the table, rendering null cells as NullToken.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	line := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			v, ok := row[col]
			if !ok {
				v = NullToken
			}
			line[i] = v
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FromSchedule exposes allocation rows as a table keyed by "id".
func FromSchedule(name string, rows []randomisation.Row) *Table {
	t := &Table{
		Name:    name,
		Columns: []string{"id", "stratum", "block", "block_position", "block_length", "treatment"},
		Rows:    make([]Record, len(rows)),
	}
	for i, r := range rows {
		t.Rows[i] = Record{
			"id":             r.ID,
			"stratum":        r.Stratum,
			"block":          strconv.Itoa(r.Block),
			"block_position": strconv.Itoa(r.BlockPosition),
			"block_length":   strconv.Itoa(r.BlockLength),
			"treatment":      r.Treatment,
		}
	}
	return t
}
