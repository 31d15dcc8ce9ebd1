package dataset

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"trialrand/domain/randomisation"
	"trialrand/internal/errors"
)

const sitesCSV = `site_id,event,region,note
S1,baseline,North,first
S2,baseline,South,
S3,baseline,North,late
`

const visitsCSV = `site_id,event,visits,note
S1,baseline,12,ok
S2,baseline,7,NA
S2,baseline,3,repeat
S4,baseline,5,orphan
`

func mustRead(t *testing.T, name, data string) *Table {
	t.Helper()
	tbl, err := ReadCSV(name, strings.NewReader(data))
	require.NoError(t, err)
	return tbl
}

func TestFullOuterJoin_KeepsUnmatchedBothSides(t *testing.T) {
	sites := mustRead(t, "sites", sitesCSV)
	visits := mustRead(t, "visits", visitsCSV)

	out, err := FullOuterJoin(sites, visits, []string{"site_id", "event"})
	require.NoError(t, err)

	assert.Equal(t, []string{"site_id", "event", "region", "sites.note", "visits", "visits.note"}, out.Columns)
	require.Len(t, out.Rows, 5)

	assert.Equal(t, Record{"site_id": "S1", "event": "baseline", "region": "North", "sites.note": "first", "visits": "12", "visits.note": "ok"}, out.Rows[0])
	// S2 matches twice.
	assert.Equal(t, "7", out.Rows[1]["visits"])
	assert.Equal(t, "3", out.Rows[2]["visits"])
	_, hasNote := out.Rows[1]["visits.note"]
	assert.False(t, hasNote, "NA must read as null")
	// S3 has no visits; S4 has no site.
	assert.Equal(t, Record{"site_id": "S3", "event": "baseline", "region": "North", "sites.note": "late"}, out.Rows[3])
	assert.Equal(t, Record{"site_id": "S4", "event": "baseline", "visits": "5", "visits.note": "orphan"}, out.Rows[4])
}

func TestJoin_InnerAndLeft(t *testing.T) {
	sites := mustRead(t, "sites", sitesCSV)
	visits := mustRead(t, "visits", visitsCSV)
	keys := []string{"site_id"}

	inner, err := Join(sites, visits, keys, InnerJoin)
	require.NoError(t, err)
	assert.Len(t, inner.Rows, 3)

	left, err := Join(sites, visits, keys, LeftJoin)
	require.NoError(t, err)
	assert.Len(t, left.Rows, 4)
	assert.Equal(t, "S3", left.Rows[3]["site_id"])
}

func TestJoin_NullKeysNeverMatch(t *testing.T) {
	a := mustRead(t, "a", "k,x\n,1\nK1,2\n")
	b := mustRead(t, "b", "k,y\n,3\nK1,4\n")

	out, err := FullOuterJoin(a, b, []string{"k"})
	require.NoError(t, err)
	require.Len(t, out.Rows, 3)
	assert.Equal(t, Record{"x": "1"}, out.Rows[0])
	assert.Equal(t, Record{"k": "K1", "x": "2", "y": "4"}, out.Rows[1])
	assert.Equal(t, Record{"y": "3"}, out.Rows[2])
}

func TestJoin_Errors(t *testing.T) {
	sites := mustRead(t, "sites", sitesCSV)
	visits := mustRead(t, "visits", visitsCSV)

	_, err := FullOuterJoin(sites, visits, nil)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = FullOuterJoin(sites, visits, []string{"region"})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = FullOuterJoin(sites, sites, []string{"site_id"})
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

	_, err = ParseJoinType("cross")
	assert.Error(t, err)
	jt, err := ParseJoinType("OUTER")
	require.NoError(t, err)
	assert.Equal(t, OuterJoin, jt)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV("empty", strings.NewReader(""))
	assert.Error(t, err)

	_, err = ReadCSV("dup", strings.NewReader("a,a\n1,2\n"))
	assert.Error(t, err)

	_, err = ReadCSV("blank", strings.NewReader("a,\n1,2\n"))
	assert.Error(t, err)
}

func TestWriteCSV_RendersNulls(t *testing.T) {
	sites := mustRead(t, "sites", sitesCSV)
	visits := mustRead(t, "visits", visitsCSV)
	out, err := FullOuterJoin(sites, visits, []string{"site_id", "event"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, out.WriteCSV(&buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "site_id,event,region,sites.note,visits,visits.note", lines[0])
	assert.Equal(t, "S4,baseline,NA,NA,5,orphan", lines[5])
}

func TestFromSchedule_JoinsOntoEnrolment(t *testing.T) {
	c, err := randomisation.Combine([]randomisation.Request{
		{Stratum: "All", Levels: []string{"Case", "Control"}, N: 4, Policy: randomisation.FixedBlocks(2), Prefix: "H", Seed: 1},
	})
	require.NoError(t, err)

	alloc := FromSchedule("allocation", c.Rows)
	enrolled := mustRead(t, "enrolment", "id,site_name\nH1,Alpha\nH3,Gamma\nH9,Unknown\n")

	out, err := FullOuterJoin(alloc, enrolled, []string{"id"})
	require.NoError(t, err)
	require.Len(t, out.Rows, 5)
	assert.Equal(t, "Alpha", out.Rows[0]["site_name"])
	assert.Equal(t, c.Rows[0].Treatment, out.Rows[0]["treatment"])
	_, ok := out.Rows[1]["site_name"]
	assert.False(t, ok)
	assert.Equal(t, Record{"id": "H9", "site_name": "Unknown"}, out.Rows[4])
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"site_id", "region"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"S1", "North"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"S2"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	tbl, err := ReadXLSX("sites", bytes.NewReader(buf.Bytes()), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"site_id", "region"}, tbl.Columns)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, Record{"site_id": "S2"}, tbl.Rows[1])
}
