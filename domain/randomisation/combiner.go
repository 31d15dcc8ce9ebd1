package randomisation

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"trialrand/domain/core"
)

// StreamFunc supplies the generator for one stratum request.
type StreamFunc func(ctx context.Context, req Request) (Source, error)

// SeedStreams maps each request to NewSource(req.Seed).
func SeedStreams(_ context.Context, req Request) (Source, error) {
	return NewSource(req.Seed), nil
}

// Combiner runs the allocator per stratum and numbers the combined rows.
type Combiner struct {
	// Streams defaults to SeedStreams.
	Streams StreamFunc
	// Parallel generates strata concurrently. Output order and content do
	// not depend on it.
	Parallel bool
	// MinIDWidth lower-bounds the identifier padding.
	MinIDWidth int
}

// Combine runs the default combiner sequentially.
func Combine(reqs []Request) (*CombinedSchedule, error) {
	return (&Combiner{}).Combine(context.Background(), reqs)
}

// Combine generates each request in order with its own generator, concatenates
// the schedules and assigns identifiers padded to the final row count.
func (c *Combiner) Combine(ctx context.Context, reqs []Request) (*CombinedSchedule, error) {
	if len(reqs) == 0 {
		return nil, core.NewEmptyInputError("stratum requests")
	}
	if err := checkStrata(reqs); err != nil {
		return nil, err
	}

	streams := c.Streams
	if streams == nil {
		streams = SeedStreams
	}

	schedules := make([]*Schedule, len(reqs))
	generate := func(i int) error {
		src, err := streams(ctx, reqs[i])
		if err != nil {
			return fmt.Errorf("stratum %q: %w", reqs[i].Stratum, err)
		}
		s, err := GenerateBlocks(reqs[i], src)
		if err != nil {
			return fmt.Errorf("stratum %q: %w", reqs[i].Stratum, err)
		}
		schedules[i] = s
		return nil
	}

	if c.Parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i := range reqs {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return generate(i)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range reqs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := generate(i); err != nil {
				return nil, err
			}
		}
	}

	return assemble(schedules, c.MinIDWidth), nil
}

// checkStrata rejects repeated stratum labels, which the audit and manifest
// key by, and a combined request larger than MaxUnits.
func checkStrata(reqs []Request) error {
	seen := make(map[string]bool, len(reqs))
	total := 0
	for _, r := range reqs {
		name := strings.TrimSpace(r.Stratum)
		if seen[name] {
			return core.NewInvalidParameterError("stratum", fmt.Sprintf("duplicate stratum %q", name))
		}
		seen[name] = true

		if r.N > 0 {
			total += r.N
		}
		if total > MaxUnits {
			return core.NewInvalidParameterError("n", fmt.Sprintf("strata request more than %d units in total", MaxUnits))
		}
	}
	return nil
}

// assemble concatenates schedules in order. The width is fixed from the total
// before any identifier is formatted.
func assemble(schedules []*Schedule, minWidth int) *CombinedSchedule {
	total := 0
	for _, s := range schedules {
		total += s.Len()
	}

	width := PadWidth(total, minWidth)
	rows := make([]Row, 0, total)
	for _, s := range schedules {
		rows = appendRows(rows, s, len(rows), width)
	}

	return &CombinedSchedule{
		Strata:  schedules,
		Rows:    rows,
		IDWidth: width,
	}
}

// DuplicateSeeds returns seeds used by more than one request, in first-use order.
// Reusing a seed across strata with identical policies and levels reproduces the
// same allocation pattern in each of them.
func DuplicateSeeds(reqs []Request) []int64 {
	counts := make(map[int64]int, len(reqs))
	var order []int64
	for _, r := range reqs {
		if counts[r.Seed] == 0 {
			order = append(order, r.Seed)
		}
		counts[r.Seed]++
	}

	var dups []int64
	for _, seed := range order {
		if counts[seed] > 1 {
			dups = append(dups, seed)
		}
	}
	return dups
}
