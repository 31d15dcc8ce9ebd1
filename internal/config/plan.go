package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"trialrand/domain/randomisation"
	"trialrand/internal/errors"
)

// Plan is a randomisation plan file in YAML or JSON. Study-level fields
// apply to every stratum unless the stratum overrides them.
type Plan struct {
	Study      string        `yaml:"study" json:"study"`
	Prefix     string        `yaml:"prefix" json:"prefix"`
	Levels     []string      `yaml:"levels" json:"levels"`
	Seed       *int64        `yaml:"seed,omitempty" json:"seed,omitempty"`
	MinIDWidth int           `yaml:"min_id_width,omitempty" json:"min_id_width,omitempty"`
	Strata     []StratumPlan `yaml:"strata" json:"strata"`
}

// StratumPlan configures one stratum. Exactly one of BlockLength,
// MaxBlockLength and BlockReplicates must be set.
type StratumPlan struct {
	Name            string   `yaml:"name" json:"name"`
	N               int      `yaml:"n" json:"n"`
	Seed            *int64   `yaml:"seed,omitempty" json:"seed,omitempty"`
	Levels          []string `yaml:"levels,omitempty" json:"levels,omitempty"`
	Prefix          *string  `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	BlockLength     int      `yaml:"block_length,omitempty" json:"block_length,omitempty"`
	MaxBlockLength  int      `yaml:"max_block_length,omitempty" json:"max_block_length,omitempty"`
	BlockReplicates []int    `yaml:"block_replicates,omitempty" json:"block_replicates,omitempty"`
}

// LoadPlan reads and parses a plan file
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read plan %s", path)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse plan %s", path)
	}
	return plan, nil
}

// ParsePlan decodes a YAML or JSON plan
func ParsePlan(data []byte) (*Plan, error) {
	var plan Plan
	unmarshal := yaml.Unmarshal
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		unmarshal = json.Unmarshal
	}
	if err := unmarshal(data, &plan); err != nil {
		return nil, errors.InvalidInput(fmt.Sprintf("malformed plan: %v", err))
	}
	return &plan, nil
}

// Requests resolves the plan into one request per stratum, in file order.
// A stratum without its own seed gets the plan seed plus its index, so strata
// that fall back to the plan seed never share one.
func (p *Plan) Requests() ([]randomisation.Request, error) {
	reqs := make([]randomisation.Request, 0, len(p.Strata))
	for i, s := range p.Strata {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			name = fmt.Sprintf("stratum-%d", i+1)
		}

		var seed int64
		switch {
		case s.Seed != nil:
			seed = *s.Seed
		case p.Seed != nil:
			seed = *p.Seed + int64(i)
		default:
			return nil, errors.ConfigInvalid(fmt.Sprintf("stratum %q has no seed and the plan has no default seed", name))
		}

		policy, err := s.policy()
		if err != nil {
			return nil, errors.Wrapf(err, "stratum %q", name)
		}

		levels := p.Levels
		if len(s.Levels) > 0 {
			levels = s.Levels
		}
		prefix := p.Prefix
		if s.Prefix != nil {
			prefix = *s.Prefix
		}

		reqs = append(reqs, randomisation.Request{
			Stratum: name,
			Levels:  append([]string(nil), levels...),
			N:       s.N,
			Policy:  policy,
			Prefix:  prefix,
			Seed:    seed,
		})
	}
	return reqs, nil
}

func (s StratumPlan) policy() (randomisation.BlockPolicy, error) {
	set := 0
	var policy randomisation.BlockPolicy
	if s.BlockLength != 0 {
		set++
		policy = randomisation.FixedBlocks(s.BlockLength)
	}
	if s.MaxBlockLength != 0 {
		set++
		policy = randomisation.RandomBlocksUpTo(s.MaxBlockLength)
	}
	if len(s.BlockReplicates) > 0 {
		set++
		policy = randomisation.ReplicateBlocks(s.BlockReplicates...)
	}

	switch set {
	case 0:
		return policy, errors.ConfigInvalid("one of block_length, max_block_length or block_replicates is required")
	case 1:
		return policy, nil
	default:
		return policy, errors.ConfigInvalid("block_length, max_block_length and block_replicates are mutually exclusive")
	}
}
