package export

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"trialrand/domain/randomisation"
	"trialrand/domain/run"
	"trialrand/internal/errors"
)

// Format selects which schedule files a bundle contains.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatBoth Format = "both"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatXLSX, FormatBoth:
		return f, nil
	default:
		return "", errors.InvalidInput(fmt.Sprintf("unknown export format %q", s))
	}
}

// WriteBundle writes the manifest sidecar and the schedule files into dir,
// named after the run ID. It returns the paths written.
func WriteBundle(dir string, format Format, rows []randomisation.Row, m *run.Manifest) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.ExportFailed("bundle", err)
	}

	base := filepath.Join(dir, m.RunID.String())
	var written []string

	write := func(path string, fn func(io.Writer) error) error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := fn(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		written = append(written, path)
		log.Printf("[Export] wrote %s", path)
		return nil
	}

	if err := write(base+".manifest.json", func(w io.Writer) error { return WriteManifest(w, m) }); err != nil {
		return written, errors.ExportFailed("manifest", err)
	}
	if format == FormatCSV || format == FormatBoth {
		if err := write(base+".csv", func(w io.Writer) error { return WriteCSV(w, rows) }); err != nil {
			return written, errors.ExportFailed("csv", err)
		}
	}
	if format == FormatXLSX || format == FormatBoth {
		if err := write(base+".xlsx", func(w io.Writer) error { return WriteXLSX(w, rows, m) }); err != nil {
			return written, errors.ExportFailed("xlsx", err)
		}
	}

	return written, nil
}
