package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"trialrand/domain/randomisation"
	"trialrand/domain/run"
	"trialrand/internal/testkit"
)

func hospitalSchedule(t *testing.T) (*randomisation.CombinedSchedule, *run.Manifest) {
	t.Helper()
	c, err := randomisation.Combine(testkit.HospitalRequests())
	require.NoError(t, err)
	return c, run.NewManifest("HOSP-TRIAL", c, 0, "test")
}

func TestCSV_RoundTrip(t *testing.T) {
	c, _ := hospitalSchedule(t)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, c.Rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 161)
	assert.Equal(t, "id,stratum,block,block_position,block_length,treatment", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "HOSP001,Small,1,1,4,"))

	rows, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, c.Rows, rows)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("id,stratum,block\n"))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("id,stratum,block,block_position,block_length,arm\n"))
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("id,stratum,block,block_position,block_length,treatment\nX1,A,one,1,2,Case\n"))
	assert.Error(t, err)
}

func TestXLSX_RoundTripWithManifestSheet(t *testing.T) {
	c, m := hospitalSchedule(t)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, c.Rows, m))

	rows, err := ReadXLSX(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, c.Rows, rows)

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	fp, err := f.GetCellValue(ManifestSheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, m.Fingerprint.String(), fp)

	seed, err := f.GetCellValue(ManifestSheet, "B11")
	require.NoError(t, err)
	assert.Equal(t, "2002", seed)
}

func TestManifest_RoundTrip(t *testing.T) {
	_, m := hospitalSchedule(t)

	var buf bytes.Buffer
	require.NoError(t, WriteManifest(&buf, m))

	got, err := ReadManifest(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, got.RunID)
	assert.Equal(t, m.Strata, got.Strata)

	_, err = ReadManifest(strings.NewReader(`{"run_id": ""}`))
	assert.Error(t, err)
	_, err = ReadManifest(strings.NewReader(`not json`))
	assert.Error(t, err)
}

func TestWriteBundle(t *testing.T) {
	c, m := hospitalSchedule(t)
	dir := filepath.Join(t.TempDir(), "out")

	paths, err := WriteBundle(dir, FormatBoth, c.Rows, m)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}

	paths, err = WriteBundle(dir, FormatCSV, c.Rows, m)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"csv", "xlsx", "both"} {
		f, err := ParseFormat(s)
		require.NoError(t, err)
		assert.Equal(t, Format(s), f)
	}
	_, err := ParseFormat("pdf")
	assert.Error(t, err)
}
