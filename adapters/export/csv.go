package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"trialrand/domain/randomisation"
)

// Header is the column layout shared by every tabular export.
var Header = []string{"id", "stratum", "block", "block_position", "block_length", "treatment"}

// WriteCSV writes one line per allocated unit in schedule order.
func WriteCSV(w io.Writer, rows []randomisation.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(record(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a file written by WriteCSV. Positions follow line order.
func ReadCSV(r io.Reader) ([]randomisation.Row, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule CSV: %w", err)
	}
	return parseRecords(records)
}

func record(r randomisation.Row) []string {
	return []string{
		r.ID,
		r.Stratum,
		strconv.Itoa(r.Block),
		strconv.Itoa(r.BlockPosition),
		strconv.Itoa(r.BlockLength),
		r.Treatment,
	}
}

func parseRecords(records [][]string) ([]randomisation.Row, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("schedule has no header row")
	}
	header := records[0]
	if len(header) != len(Header) {
		return nil, fmt.Errorf("schedule header has %d columns, want %d", len(header), len(Header))
	}
	for i, h := range header {
		if strings.TrimSpace(strings.ToLower(h)) != Header[i] {
			return nil, fmt.Errorf("schedule column %d is %q, want %q", i+1, h, Header[i])
		}
	}

	rows := make([]randomisation.Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		line := i + 2
		if len(rec) != len(Header) {
			return nil, fmt.Errorf("line %d: %d columns, want %d", line, len(rec), len(Header))
		}
		ints := make([]int, 3)
		for j := range ints {
			v, err := strconv.Atoi(rec[2+j])
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, Header[2+j], err)
			}
			ints[j] = v
		}
		rows = append(rows, randomisation.Row{
			Position:      i + 1,
			ID:            rec[0],
			Stratum:       rec[1],
			Block:         ints[0],
			BlockPosition: ints[1],
			BlockLength:   ints[2],
			Treatment:     rec[5],
		})
	}
	return rows, nil
}
