package randomisation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTally(t *testing.T) {
	c, err := Combine(hospitalStrata())
	require.NoError(t, err)

	tally := Tally(c.Rows)
	assert.Equal(t, 40, tally[TallyKey{Stratum: "Small", Level: "Case"}])
	assert.Equal(t, 40, tally[TallyKey{Stratum: "Small", Level: "Control"}])
	assert.Equal(t, 40, tally[TallyKey{Stratum: "Large", Level: "Case"}])
	assert.Equal(t, 40, tally[TallyKey{Stratum: "Large", Level: "Control"}])

	sum := 0
	for _, n := range tally {
		sum += n
	}
	assert.Equal(t, c.Len(), sum)
}

func TestAudit_BalancedSchedule(t *testing.T) {
	c, err := Combine(hospitalStrata())
	require.NoError(t, err)

	report, err := Audit(c)
	require.NoError(t, err)

	assert.True(t, report.Balanced())
	assert.Equal(t, 160, report.Total)
	require.Len(t, report.Strata, 2)

	small := report.Strata[0]
	assert.Equal(t, "Small", small.Stratum)
	assert.Equal(t, 80, small.Requested)
	assert.Equal(t, 80, small.Allocated)
	assert.Equal(t, 20, small.Blocks)
	assert.Equal(t, 0, small.Imbalance)
	assert.InDelta(t, 0, small.ChiSquare, 1e-12)
	assert.InDelta(t, 1, small.PValue, 1e-9)
	assert.InDelta(t, 4, small.MeanBlockLength, 1e-12)
	assert.InDelta(t, 0, small.SDBlockLength, 1e-12)
	assert.Equal(t, 4, small.MinBlockLength)
	assert.Equal(t, 4, small.MaxBlockLength)

	assert.Equal(t, []string{"Case", "Control"}, report.Levels())
}

func TestAudit_RandomBlockLengthSummary(t *testing.T) {
	c, err := Combine([]Request{
		{Stratum: "Mixed", Levels: []string{"A", "B"}, N: 200, Policy: RandomBlocksUpTo(6), Seed: 11},
	})
	require.NoError(t, err)

	report, err := Audit(c)
	require.NoError(t, err)
	sb := report.Strata[0]
	assert.GreaterOrEqual(t, sb.MinBlockLength, 2)
	assert.LessOrEqual(t, sb.MaxBlockLength, 6)
	assert.Greater(t, sb.SDBlockLength, 0.0)
	assert.Equal(t, 0, sb.Imbalance)
}

func TestAudit_DetectsViolation(t *testing.T) {
	s := &Schedule{
		Request: Request{Stratum: "Bad", Levels: []string{"A", "B"}, N: 4, Policy: FixedBlocks(4)},
		Blocks:  []Block{{Number: 1, Assignments: []string{"A", "A", "A", "B"}}},
	}
	c := assemble([]*Schedule{s}, 0)

	report, err := Audit(c)
	require.NoError(t, err)
	assert.False(t, report.Balanced())
	require.Len(t, report.Violations, 1)
	assert.Contains(t, report.Violations[0], `level "A" appears 3 times`)

	sb := report.Strata[0]
	assert.Equal(t, 2, sb.Imbalance)
	assert.InDelta(t, 1.0, sb.ChiSquare, 1e-12)
	assert.Less(t, sb.PValue, 1.0)
}

func TestCheckBlockBalance(t *testing.T) {
	levels := []string{"A", "B", "C"}

	assert.NoError(t, CheckBlockBalance(Block{Number: 1, Assignments: []string{"C", "A", "B"}}, levels))
	// Partial blocks may differ by one.
	assert.NoError(t, CheckBlockBalance(Block{Number: 2, Assignments: []string{"A", "B"}}, levels))
	assert.Error(t, CheckBlockBalance(Block{Number: 3, Assignments: []string{"A", "A"}}, levels))
	assert.Error(t, CheckBlockBalance(Block{Number: 4, Assignments: []string{"A", "B", "D"}}, levels))
	assert.Error(t, CheckBlockBalance(Block{Number: 5}, nil))
}

func TestAudit_CountsEachStratumFromItsOwnBlocks(t *testing.T) {
	small, err := Generate(Request{Stratum: "North", Levels: []string{"A", "B"}, N: 4, Policy: FixedBlocks(4), Seed: 1})
	require.NoError(t, err)
	large, err := Generate(Request{Stratum: "South", Levels: []string{"A", "B"}, N: 8, Policy: FixedBlocks(4), Seed: 2})
	require.NoError(t, err)

	report, err := Audit(assemble([]*Schedule{small, large}, 0))
	require.NoError(t, err)
	require.Len(t, report.Strata, 2)
	for _, sb := range report.Strata {
		sum := 0
		for _, n := range sb.Counts {
			sum += n
		}
		assert.Equal(t, sb.Allocated, sum, sb.Stratum)
		assert.Equal(t, sb.Allocated/2, sb.Counts["A"], sb.Stratum)
	}
}
