package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"trialrand/domain/randomisation"
	"trialrand/domain/run"
)

const (
	ScheduleSheet = "Schedule"
	ManifestSheet = "Manifest"
)

// WriteXLSX writes the schedule and its manifest as two sheets of one workbook,
// so the seeds always travel with the allocation list.
func WriteXLSX(w io.Writer, rows []randomisation.Row, manifest *run.Manifest) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ScheduleSheet); err != nil {
		return err
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(ScheduleSheet, "A1", &header); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{r.ID, r.Stratum, r.Block, r.BlockPosition, r.BlockLength, r.Treatment}
		if err := f.SetSheetRow(ScheduleSheet, cell, &values); err != nil {
			return err
		}
	}

	if manifest != nil {
		if err := writeManifestSheet(f, manifest); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func writeManifestSheet(f *excelize.File, m *run.Manifest) error {
	if _, err := f.NewSheet(ManifestSheet); err != nil {
		return err
	}

	lines := [][]interface{}{
		{"study", m.Study},
		{"run_id", m.RunID.String()},
		{"fingerprint", m.Fingerprint.String()},
		{"total_rows", m.TotalRows},
		{"id_width", m.IDWidth},
		{"code_version", m.CodeVersion},
		{"created_at", m.CreatedAt.Time().Format("2006-01-02T15:04:05Z07:00")},
		{},
		{"stratum", "seed", "n", "allocated", "blocks", "policy", "levels", "prefix"},
	}
	for _, s := range m.Strata {
		lines = append(lines, []interface{}{
			s.Stratum, fmt.Sprintf("%d", s.Seed), s.N, s.Allocated, s.Blocks,
			s.Policy.String(), strings.Join(s.Levels, ";"), s.Prefix,
		})
	}

	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ManifestSheet, cell, &line); err != nil {
			return err
		}
	}
	return nil
}

// ReadXLSX parses the Schedule sheet of a workbook written by WriteXLSX.
func ReadXLSX(r io.Reader) ([]randomisation.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	records, err := f.GetRows(ScheduleSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s sheet: %w", ScheduleSheet, err)
	}
	return parseRecords(records)
}
