package randomisation

import (
	"math/rand"
)

// NewSource returns the generator a request's seed maps to. It is never shared.
func NewSource(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// Generate runs the allocator with a private generator seeded from req.Seed.
func Generate(req Request) (*Schedule, error) {
	return GenerateBlocks(req, NewSource(req.Seed))
}

// GenerateBlocks emits balanced permuted blocks until at least req.N units are
// allocated. The last block is always completed, so the schedule may be longer
// than req.N. A policy with a single admissible length draws nothing from src
// when picking lengths.
func GenerateBlocks(req Request, src Source) (*Schedule, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	k := len(req.Levels)
	lengths, err := req.Policy.lengths(k)
	if err != nil {
		return nil, err
	}

	levels := append([]string(nil), req.Levels...)
	schedule := &Schedule{Request: req}
	schedule.Request.Levels = levels

	emitted := 0
	for number := 1; emitted < req.N; number++ {
		length := lengths[0]
		if len(lengths) > 1 {
			length = lengths[src.Intn(len(lengths))]
		}

		block := Block{Number: number, Assignments: balancedMultiset(levels, length/k)}
		src.Shuffle(len(block.Assignments), func(i, j int) {
			block.Assignments[i], block.Assignments[j] = block.Assignments[j], block.Assignments[i]
		})

		schedule.Blocks = append(schedule.Blocks, block)
		emitted += length
	}

	return schedule, nil
}

// balancedMultiset lists every level reps times, in level order.
func balancedMultiset(levels []string, reps int) []string {
	out := make([]string, 0, len(levels)*reps)
	for _, level := range levels {
		for i := 0; i < reps; i++ {
			out = append(out, level)
		}
	}
	return out
}
