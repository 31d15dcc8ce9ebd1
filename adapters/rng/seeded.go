package rng

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"trialrand/domain/core"
)

const checkRange = 1_000_000

// SeededAdapter implements ports.RNGPort with math/rand sources.
type SeededAdapter struct {
	// Trace logs every stream that is handed out.
	Trace bool
}

// NewSeededAdapter creates a seeded RNG adapter
func NewSeededAdapter(trace bool) *SeededAdapter {
	return &SeededAdapter{Trace: trace}
}

// SeededStream creates a deterministic random number generator for a named operation
func (a *SeededAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.Trace {
		log.Printf("[RNG] stream %q seeded with %d", name, seed)
	}
	return rand.New(rand.NewSource(seed)), nil
}

// ValidateSeed draws len(expected) values from Intn(checkRange) and compares them.
// A mismatch means the generator no longer reproduces recorded schedules.
func (a *SeededAdapter) ValidateSeed(ctx context.Context, name string, seed int64, expected []int) error {
	r, err := a.SeededStream(ctx, name, seed)
	if err != nil {
		return err
	}
	for i, want := range expected {
		if got := r.Intn(checkRange); got != want {
			return fmt.Errorf("%w: stream %q seed %d draw %d: expected %d, got %d",
				core.ErrNonDeterministic, name, seed, i, want, got)
		}
	}
	return nil
}

// SeedCheck returns the first n values ValidateSeed compares against.
func (a *SeededAdapter) SeedCheck(ctx context.Context, name string, seed int64, n int) ([]int, error) {
	r, err := a.SeededStream(ctx, name, seed)
	if err != nil {
		return nil, err
	}
	out := make([]int, n)
	for i := range out {
		out[i] = r.Intn(checkRange)
	}
	return out, nil
}
