package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation.
	// Every call returns a fresh generator; streams are never shared between callers.
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// SeedCheck returns the first n draws of the named stream, the values
	// ValidateSeed later compares against.
	SeedCheck(ctx context.Context, name string, seed int64, n int) ([]int, error)

	// ValidateSeed ensures the seed produces expected deterministic results
	ValidateSeed(ctx context.Context, name string, seed int64, expected []int) error
}
