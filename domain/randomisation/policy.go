package randomisation

import (
	"fmt"

	"trialrand/domain/core"
)

// PolicyKind selects how block lengths are chosen.
type PolicyKind string

const (
	// PolicyFixed uses one block length for every block.
	PolicyFixed PolicyKind = "fixed"
	// PolicyMaximum draws each length uniformly from the multiples of the
	// level count that do not exceed MaxLength.
	PolicyMaximum PolicyKind = "maximum"
	// PolicyReplicates draws each block's per-level repetition count
	// uniformly from Replicates, so a block has Replicates[i]*levels units.
	PolicyReplicates PolicyKind = "replicates"
)

// MaxBlockLength bounds every block length a policy may produce.
const MaxBlockLength = 10_000

// BlockPolicy is the block-size policy of a request.
type BlockPolicy struct {
	Kind       PolicyKind `json:"kind" yaml:"kind"`
	Length     int        `json:"length,omitempty" yaml:"length,omitempty"`
	MaxLength  int        `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Replicates []int      `json:"replicates,omitempty" yaml:"replicates,omitempty"`
}

// FixedBlocks returns a policy with every block of the given length.
func FixedBlocks(length int) BlockPolicy {
	return BlockPolicy{Kind: PolicyFixed, Length: length}
}

// RandomBlocksUpTo returns a policy drawing lengths up to max.
func RandomBlocksUpTo(max int) BlockPolicy {
	return BlockPolicy{Kind: PolicyMaximum, MaxLength: max}
}

// ReplicateBlocks returns a policy drawing per-level repetition counts.
func ReplicateBlocks(replicates ...int) BlockPolicy {
	return BlockPolicy{Kind: PolicyReplicates, Replicates: append([]int(nil), replicates...)}
}

// Validate checks the policy against the number of treatment levels.
func (p BlockPolicy) Validate(levels int) error {
	_, err := p.lengths(levels)
	return err
}

// String renders the policy for logs and reports.
func (p BlockPolicy) String() string {
	switch p.Kind {
	case PolicyFixed:
		return fmt.Sprintf("fixed(%d)", p.Length)
	case PolicyMaximum:
		return fmt.Sprintf("maximum(%d)", p.MaxLength)
	case PolicyReplicates:
		return fmt.Sprintf("replicates%v", p.Replicates)
	default:
		return fmt.Sprintf("unknown(%s)", p.Kind)
	}
}

// lengths returns the admissible block lengths. Repeated entries weight the
// uniform draw, matching how a list of replicate counts is sampled.
func (p BlockPolicy) lengths(levels int) ([]int, error) {
	if levels < 1 {
		return nil, core.NewInvalidParameterError("levels", "no levels to build blocks from")
	}

	switch p.Kind {
	case PolicyFixed:
		if p.Length <= 0 {
			return nil, core.NewInvalidParameterError("policy.length", fmt.Sprintf("must be positive, got %d", p.Length))
		}
		if p.Length > MaxBlockLength {
			return nil, core.NewInvalidParameterError("policy.length",
				fmt.Sprintf("block length %d exceeds the maximum of %d", p.Length, MaxBlockLength))
		}
		if p.Length%levels != 0 {
			return nil, core.NewInvalidParameterError("policy.length",
				fmt.Sprintf("block length %d is not divisible by %d levels", p.Length, levels))
		}
		return []int{p.Length}, nil

	case PolicyMaximum:
		if p.MaxLength < levels {
			return nil, core.NewInvalidParameterError("policy.max_length",
				fmt.Sprintf("maximum block length %d is smaller than %d levels", p.MaxLength, levels))
		}
		if p.MaxLength > MaxBlockLength {
			return nil, core.NewInvalidParameterError("policy.max_length",
				fmt.Sprintf("maximum block length %d exceeds the maximum of %d", p.MaxLength, MaxBlockLength))
		}
		var out []int
		for l := levels; l <= p.MaxLength; l += levels {
			out = append(out, l)
		}
		return out, nil

	case PolicyReplicates:
		if len(p.Replicates) == 0 {
			return nil, core.NewInvalidParameterError("policy.replicates", "at least one replicate count is required")
		}
		out := make([]int, len(p.Replicates))
		for i, r := range p.Replicates {
			if r <= 0 {
				return nil, core.NewInvalidParameterError("policy.replicates", fmt.Sprintf("must be positive, got %d", r))
			}
			if r > MaxBlockLength/levels {
				return nil, core.NewInvalidParameterError("policy.replicates",
					fmt.Sprintf("%d replicates of %d levels exceed the maximum block length of %d", r, levels, MaxBlockLength))
			}
			out[i] = r * levels
		}
		return out, nil

	default:
		return nil, core.NewInvalidParameterError("policy.kind", fmt.Sprintf("unknown block policy %q", p.Kind))
	}
}
