// Package randomisation generates stratified permuted-block allocation
// schedules for randomised trials.
//
// A Request describes one stratum. GenerateBlocks turns it into a Schedule of
// balanced Blocks using a seeded Source private to the call, and Combine
// concatenates the per-stratum schedules into a CombinedSchedule whose rows
// carry globally unique identifiers. Nothing here touches shared state, so
// strata may be generated concurrently.
package randomisation

import (
	"fmt"
	"strings"
	"unicode"

	"trialrand/domain/core"
)

// Source is the slice of *rand.Rand the allocator needs.
type Source interface {
	Intn(n int) int
	Shuffle(n int, swap func(i, j int))
}

// MaxUnits bounds the units requested for one stratum and for a combined schedule.
const MaxUnits = 1_000_000

// Request is the immutable input for one stratum.
type Request struct {
	Stratum string      `json:"stratum" yaml:"stratum"`
	Levels  []string    `json:"levels" yaml:"levels"`
	N       int         `json:"n" yaml:"n"`
	Policy  BlockPolicy `json:"policy" yaml:"policy"`
	Prefix  string      `json:"prefix" yaml:"prefix"`
	Seed    int64       `json:"seed" yaml:"seed"`
}

// Validate checks the request without generating anything.
func (r Request) Validate() error {
	if r.N <= 0 {
		return core.NewInvalidParameterError("n", fmt.Sprintf("must be positive, got %d", r.N))
	}
	if r.N > MaxUnits {
		return core.NewInvalidParameterError("n", fmt.Sprintf("%d exceeds the maximum of %d units", r.N, MaxUnits))
	}
	if hasControl(r.Stratum) {
		return core.NewInvalidParameterError("stratum", "label cannot contain control characters")
	}
	if hasControl(r.Prefix) {
		return core.NewInvalidParameterError("prefix", "cannot contain control characters")
	}

	seen := make(map[string]bool, len(r.Levels))
	for _, level := range r.Levels {
		if strings.TrimSpace(level) == "" {
			return core.NewInvalidParameterError("levels", "level labels cannot be blank")
		}
		if hasControl(level) {
			return core.NewInvalidParameterError("levels", fmt.Sprintf("level %q contains control characters", level))
		}
		if seen[level] {
			return core.NewInvalidParameterError("levels", fmt.Sprintf("duplicate level %q", level))
		}
		seen[level] = true
	}
	if len(seen) < 2 {
		return core.NewInvalidParameterError("levels", fmt.Sprintf("need at least 2 distinct levels, got %d", len(seen)))
	}

	return r.Policy.Validate(len(r.Levels))
}

// hasControl reports whether s contains a character that would break the
// tab and newline framing of the fingerprint.
func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

// Block is one permuted, balanced run of assignments.
type Block struct {
	Number      int      `json:"number"` // 1-based within the stratum
	Assignments []string `json:"assignments"`
}

// Len returns the block length.
func (b Block) Len() int { return len(b.Assignments) }

// Schedule is the ordered list of blocks generated for one stratum.
type Schedule struct {
	Request Request `json:"request"`
	Blocks  []Block `json:"blocks"`
}

// Len returns the number of allocated units, which is at least Request.N.
func (s *Schedule) Len() int {
	total := 0
	for _, b := range s.Blocks {
		total += b.Len()
	}
	return total
}

// Treatments flattens the schedule in allocation order.
func (s *Schedule) Treatments() []string {
	out := make([]string, 0, s.Len())
	for _, b := range s.Blocks {
		out = append(out, b.Assignments...)
	}
	return out
}

// Rows numbers the schedule on its own, as a one-stratum combined schedule would.
func (s *Schedule) Rows(minWidth int) []Row {
	width := PadWidth(s.Len(), minWidth)
	return appendRows(nil, s, 0, width)
}

// Row is one allocated unit.
type Row struct {
	Position      int    `json:"position"` // 1-based across the combined schedule
	ID            string `json:"id"`
	Stratum       string `json:"stratum"`
	Block         int    `json:"block"`
	BlockPosition int    `json:"block_position"` // 1-based within the block
	BlockLength   int    `json:"block_length"`
	Treatment     string `json:"treatment"`
}

// CombinedSchedule is the concatenation of one schedule per stratum.
type CombinedSchedule struct {
	Strata  []*Schedule `json:"strata"`
	Rows    []Row       `json:"rows"`
	IDWidth int         `json:"id_width"`
}

// Len returns the number of rows.
func (c *CombinedSchedule) Len() int { return len(c.Rows) }

// Requests returns the per-stratum requests in combination order.
func (c *CombinedSchedule) Requests() []Request {
	out := make([]Request, len(c.Strata))
	for i, s := range c.Strata {
		out[i] = s.Request
	}
	return out
}

// Fingerprint hashes the canonical row encoding. Two schedules with the same
// fingerprint assign the same treatment to the same identifier in the same order.
func (c *CombinedSchedule) Fingerprint() core.Hash {
	h := core.NewHasher()
	for _, r := range c.Rows {
		h.WriteRecord(fmt.Sprintf("%d\t%s\t%s\t%d\t%d\t%d\t%s",
			r.Position, r.ID, r.Stratum, r.Block, r.BlockPosition, r.BlockLength, r.Treatment))
	}
	return h.Sum()
}

func appendRows(rows []Row, s *Schedule, offset, width int) []Row {
	pos := offset
	for _, b := range s.Blocks {
		for i, treatment := range b.Assignments {
			pos++
			rows = append(rows, Row{
				Position:      pos,
				ID:            FormatID(s.Request.Prefix, pos, width),
				Stratum:       s.Request.Stratum,
				Block:         b.Number,
				BlockPosition: i + 1,
				BlockLength:   b.Len(),
				Treatment:     treatment,
			})
		}
	}
	return rows
}
