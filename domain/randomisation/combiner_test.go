package randomisation

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trialrand/domain/core"
)

func hospitalStrata() []Request {
	return []Request{
		{Stratum: "Small", Levels: []string{"Case", "Control"}, N: 80, Policy: FixedBlocks(4), Prefix: "HOSP", Seed: 1001},
		{Stratum: "Large", Levels: []string{"Case", "Control"}, N: 80, Policy: ReplicateBlocks(1), Prefix: "HOSP", Seed: 2002},
	}
}

func TestCombine_HospitalExample(t *testing.T) {
	c, err := Combine(hospitalStrata())
	require.NoError(t, err)

	require.Equal(t, 160, c.Len())
	assert.Equal(t, 3, c.IDWidth)
	assert.Equal(t, "HOSP001", c.Rows[0].ID)
	assert.Equal(t, "HOSP160", c.Rows[159].ID)

	ids := make(map[string]bool, c.Len())
	for i, r := range c.Rows {
		assert.Equal(t, i+1, r.Position)
		assert.False(t, ids[r.ID], "duplicate id %s", r.ID)
		ids[r.ID] = true

		if i < 80 {
			assert.Equal(t, "Small", r.Stratum)
		} else {
			assert.Equal(t, "Large", r.Stratum)
		}
	}
}

func TestCombine_PreservesStratumAndBlockOrder(t *testing.T) {
	reqs := hospitalStrata()
	c, err := Combine(reqs)
	require.NoError(t, err)

	var expected []string
	total := 0
	for i, req := range reqs {
		s, err := Generate(req)
		require.NoError(t, err)
		expected = append(expected, s.Treatments()...)
		total += s.Len()
		assert.Equal(t, s.Treatments(), c.Strata[i].Treatments())
	}

	got := make([]string, len(c.Rows))
	for i, r := range c.Rows {
		got[i] = r.Treatment
	}
	assert.Equal(t, expected, got)
	assert.Equal(t, total, c.Len())

	// Block metadata rides along with each row.
	first := c.Rows[0]
	assert.Equal(t, 1, first.Block)
	assert.Equal(t, 1, first.BlockPosition)
	assert.Equal(t, 4, first.BlockLength)
	last := c.Rows[len(c.Rows)-1]
	assert.Equal(t, 40, last.Block)
	assert.Equal(t, 2, last.BlockPosition)
	assert.Equal(t, 2, last.BlockLength)
}

func TestCombine_PaddingFixedFromTotal(t *testing.T) {
	reqs := []Request{
		{Stratum: "A", Levels: []string{"X", "Y", "Z"}, N: 48, Policy: FixedBlocks(3), Prefix: "S", Seed: 1},
		{Stratum: "B", Levels: []string{"X", "Y", "Z"}, N: 51, Policy: FixedBlocks(3), Prefix: "S", Seed: 2},
	}
	c, err := Combine(reqs)
	require.NoError(t, err)
	require.Equal(t, 99, c.Len())
	assert.Equal(t, "S01", c.Rows[0].ID)
	assert.Equal(t, "S99", c.Rows[98].ID)

	// One more block crosses the power-of-ten boundary and widens every id.
	reqs[1].N = 52
	c, err = Combine(reqs)
	require.NoError(t, err)
	require.Equal(t, 102, c.Len())
	for _, r := range c.Rows {
		assert.Len(t, r.ID, 4, r.ID)
	}
	assert.Equal(t, "S001", c.Rows[0].ID)
	assert.Equal(t, "S102", c.Rows[101].ID)
}

func TestCombine_MinIDWidth(t *testing.T) {
	comb := &Combiner{MinIDWidth: 5}
	c, err := comb.Combine(context.Background(), hospitalStrata()[:1])
	require.NoError(t, err)
	assert.Equal(t, "HOSP00001", c.Rows[0].ID)
}

func TestCombine_ParallelMatchesSequential(t *testing.T) {
	reqs := append(hospitalStrata(),
		Request{Stratum: "Rural", Levels: []string{"A", "B", "C"}, N: 57, Policy: RandomBlocksUpTo(9), Prefix: "HOSP", Seed: 3003},
		Request{Stratum: "Urban", Levels: []string{"A", "B"}, N: 33, Policy: ReplicateBlocks(1, 2, 3), Prefix: "HOSP", Seed: 4004},
	)

	seq, err := (&Combiner{}).Combine(context.Background(), reqs)
	require.NoError(t, err)
	par, err := (&Combiner{Parallel: true}).Combine(context.Background(), reqs)
	require.NoError(t, err)

	assert.Equal(t, seq.Rows, par.Rows)
	assert.Equal(t, seq.Fingerprint(), par.Fingerprint())
}

func TestCombine_CustomStreams(t *testing.T) {
	calls := 0
	comb := &Combiner{Streams: func(_ context.Context, req Request) (Source, error) {
		calls++
		return rand.New(rand.NewSource(req.Seed)), nil
	}}
	c, err := comb.Combine(context.Background(), hospitalStrata())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	def, err := Combine(hospitalStrata())
	require.NoError(t, err)
	assert.Equal(t, def.Fingerprint(), c.Fingerprint())
}

func TestCombine_EmptyInput(t *testing.T) {
	c, err := Combine(nil)
	assert.Nil(t, c)
	assert.True(t, errors.Is(err, core.ErrEmptyInput))
}

func TestCombine_InvalidStratumNamesIt(t *testing.T) {
	reqs := hospitalStrata()
	reqs[1].Policy = FixedBlocks(3)

	for _, parallel := range []bool{false, true} {
		_, err := (&Combiner{Parallel: parallel}).Combine(context.Background(), reqs)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrInvalidParameter))
		assert.Contains(t, err.Error(), `"Large"`)
	}
}

func TestCombine_RejectsDuplicateStrata(t *testing.T) {
	reqs := []Request{
		{Stratum: "Site", Levels: []string{"A", "B"}, N: 4, Policy: FixedBlocks(4), Seed: 1},
		{Stratum: " Site ", Levels: []string{"A", "B"}, N: 8, Policy: FixedBlocks(4), Seed: 2},
	}

	for _, parallel := range []bool{false, true} {
		c, err := (&Combiner{Parallel: parallel}).Combine(context.Background(), reqs)
		assert.Nil(t, c)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrInvalidParameter))
		assert.Contains(t, err.Error(), `duplicate stratum "Site"`)
	}
}

func TestCombine_RejectsOversizedTotal(t *testing.T) {
	reqs := []Request{
		{Stratum: "A", Levels: []string{"X", "Y"}, N: MaxUnits, Policy: FixedBlocks(2), Seed: 1},
		{Stratum: "B", Levels: []string{"X", "Y"}, N: 2, Policy: FixedBlocks(2), Seed: 2},
	}
	_, err := Combine(reqs)
	assert.True(t, errors.Is(err, core.ErrInvalidParameter), "got %v", err)
}

func TestCombine_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Combiner{}).Combine(ctx, hospitalStrata())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFingerprint_Deterministic(t *testing.T) {
	a, err := Combine(hospitalStrata())
	require.NoError(t, err)
	b, err := Combine(hospitalStrata())
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	reqs := hospitalStrata()
	reqs[0].Seed++
	c, err := Combine(reqs)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestDuplicateSeeds(t *testing.T) {
	reqs := []Request{{Seed: 5}, {Seed: 7}, {Seed: 5}, {Seed: 9}, {Seed: 7}, {Seed: 5}}
	assert.Equal(t, []int64{5, 7}, DuplicateSeeds(reqs))
	assert.Empty(t, DuplicateSeeds(hospitalStrata()))
}

func TestScheduleRows_StandAlone(t *testing.T) {
	s, err := Generate(hospitalStrata()[0])
	require.NoError(t, err)

	rows := s.Rows(0)
	require.Len(t, rows, 80)
	assert.Equal(t, "HOSP01", rows[0].ID)
	assert.Equal(t, "HOSP80", rows[79].ID)
}

func TestPadWidth(t *testing.T) {
	assert.Equal(t, 1, PadWidth(0, 0))
	assert.Equal(t, 1, PadWidth(9, 0))
	assert.Equal(t, 2, PadWidth(10, 0))
	assert.Equal(t, 3, PadWidth(100, 0))
	assert.Equal(t, 4, PadWidth(100, 4))
	assert.Equal(t, "ID007", FormatID("ID", 7, 3))
	assert.Equal(t, "1234", FormatID("", 1234, 2))
}
