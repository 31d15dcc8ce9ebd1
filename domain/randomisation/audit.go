package randomisation

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// TallyKey identifies one cell of the allocation tally.
type TallyKey struct {
	Stratum string `json:"stratum"`
	Level   string `json:"level"`
}

// Tally counts allocations per (stratum, level).
func Tally(rows []Row) map[TallyKey]int {
	out := make(map[TallyKey]int)
	for _, r := range rows {
		out[TallyKey{Stratum: r.Stratum, Level: r.Treatment}]++
	}
	return out
}

// CheckBlockBalance verifies that every level appears floor(L/K) or ceil(L/K)
// times in the block, and exactly L/K times when K divides L.
func CheckBlockBalance(b Block, levels []string) error {
	k := len(levels)
	if k == 0 {
		return fmt.Errorf("block %d: no levels", b.Number)
	}

	counts := make(map[string]int, k)
	for _, a := range b.Assignments {
		counts[a]++
	}

	lo := b.Len() / k
	hi := lo
	if b.Len()%k != 0 {
		hi++
	}
	for _, level := range levels {
		if c := counts[level]; c < lo || c > hi {
			return fmt.Errorf("block %d: level %q appears %d times, want %d..%d", b.Number, level, c, lo, hi)
		}
		delete(counts, level)
	}
	if len(counts) > 0 {
		extra := make([]string, 0, len(counts))
		for level := range counts {
			extra = append(extra, level)
		}
		sort.Strings(extra)
		return fmt.Errorf("block %d: unexpected level %q", b.Number, extra[0])
	}
	return nil
}

// StratumBalance summarises the realised allocation of one stratum.
type StratumBalance struct {
	Stratum         string         `json:"stratum"`
	Requested       int            `json:"requested"`
	Allocated       int            `json:"allocated"`
	Blocks          int            `json:"blocks"`
	Counts          map[string]int `json:"counts"`
	Imbalance       int            `json:"imbalance"` // max count - min count
	ChiSquare       float64        `json:"chi_square"`
	PValue          float64        `json:"p_value"`
	MeanBlockLength float64        `json:"mean_block_length"`
	SDBlockLength   float64        `json:"sd_block_length"`
	MinBlockLength  int            `json:"min_block_length"`
	MaxBlockLength  int            `json:"max_block_length"`
}

// BalanceReport is the pre-release sanity check of a combined schedule.
type BalanceReport struct {
	Strata     []StratumBalance `json:"strata"`
	Total      int              `json:"total"`
	Violations []string         `json:"violations,omitempty"`
}

// Balanced reports whether every block passed CheckBlockBalance.
func (r *BalanceReport) Balanced() bool { return len(r.Violations) == 0 }

// Audit tallies each stratum and re-checks every block.
func Audit(c *CombinedSchedule) (*BalanceReport, error) {
	report := &BalanceReport{Total: c.Len()}
	for _, s := range c.Strata {
		sb, err := auditStratum(s)
		if err != nil {
			return nil, fmt.Errorf("stratum %q: %w", s.Request.Stratum, err)
		}
		report.Strata = append(report.Strata, *sb)

		for _, b := range s.Blocks {
			if err := CheckBlockBalance(b, s.Request.Levels); err != nil {
				report.Violations = append(report.Violations, fmt.Sprintf("stratum %q: %v", s.Request.Stratum, err))
			}
		}
	}

	return report, nil
}

// auditStratum counts from the stratum's own blocks, so its figures always
// agree with Allocated.
func auditStratum(s *Schedule) (*StratumBalance, error) {
	levels := s.Request.Levels
	sb := &StratumBalance{
		Stratum:   s.Request.Stratum,
		Requested: s.Request.N,
		Allocated: s.Len(),
		Blocks:    len(s.Blocks),
		Counts:    make(map[string]int, len(levels)),
	}

	for _, level := range levels {
		sb.Counts[level] = 0
	}
	for _, b := range s.Blocks {
		for _, a := range b.Assignments {
			sb.Counts[a]++
		}
	}

	minCount, maxCount := -1, 0
	for _, level := range levels {
		n := sb.Counts[level]
		if minCount < 0 || n < minCount {
			minCount = n
		}
		if n > maxCount {
			maxCount = n
		}
	}
	sb.Imbalance = maxCount - minCount

	// Pearson chi-square against equal allocation.
	expected := float64(sb.Allocated) / float64(len(levels))
	if expected > 0 {
		for _, level := range levels {
			d := float64(sb.Counts[level]) - expected
			sb.ChiSquare += d * d / expected
		}
		sb.PValue = distuv.ChiSquared{K: float64(len(levels) - 1)}.Survival(sb.ChiSquare)
	}

	if len(s.Blocks) == 0 {
		return sb, nil
	}
	blockLengths := make([]float64, len(s.Blocks))
	for i, b := range s.Blocks {
		blockLengths[i] = float64(b.Len())
	}

	var err error
	if sb.MeanBlockLength, err = stats.Mean(blockLengths); err != nil {
		return nil, err
	}
	if sb.SDBlockLength, err = stats.StandardDeviation(blockLengths); err != nil {
		return nil, err
	}
	minLen, err := stats.Min(blockLengths)
	if err != nil {
		return nil, err
	}
	maxLen, err := stats.Max(blockLengths)
	if err != nil {
		return nil, err
	}
	sb.MinBlockLength = int(minLen)
	sb.MaxBlockLength = int(maxLen)

	return sb, nil
}

// Levels returns the distinct levels in a tally, sorted.
func (r *BalanceReport) Levels() []string {
	seen := make(map[string]bool)
	for _, s := range r.Strata {
		for level := range s.Counts {
			seen[level] = true
		}
	}
	out := make([]string, 0, len(seen))
	for level := range seen {
		out = append(out, level)
	}
	sort.Strings(out)
	return out
}
