package run

import (
	"fmt"

	"trialrand/domain/core"
	"trialrand/domain/randomisation"
)

// StratumRecord is everything needed to regenerate one stratum's schedule.
type StratumRecord struct {
	Stratum   string                    `json:"stratum"`
	Levels    []string                  `json:"levels"`
	N         int                       `json:"n"`
	Policy    randomisation.BlockPolicy `json:"policy"`
	Prefix    string                    `json:"prefix"`
	Seed      int64                     `json:"seed"`
	Allocated int                       `json:"allocated"`
	Blocks    int                       `json:"blocks"`
	// SeedCheck holds the first draws of the stratum's generator at
	// generation time. Replay compares them before regenerating.
	SeedCheck []int `json:"seed_check,omitempty"`
}

// Manifest is the audit record stored alongside a combined schedule.
// It is the truth source for replay: regenerating from its strata must
// reproduce Fingerprint exactly.
type Manifest struct {
	RunID       core.RunID      `json:"run_id"`
	Study       string          `json:"study"`
	Strata      []StratumRecord `json:"strata"`
	TotalRows   int             `json:"total_rows"`
	IDWidth     int             `json:"id_width"`
	MinIDWidth  int             `json:"min_id_width"`
	Fingerprint core.Hash       `json:"fingerprint"`
	CodeVersion string          `json:"code_version"`
	CreatedAt   core.Timestamp  `json:"created_at"`
}

// NewManifest records the requests and fingerprint of a generated schedule.
func NewManifest(study string, c *randomisation.CombinedSchedule, minIDWidth int, codeVersion string) *Manifest {
	strata := make([]StratumRecord, len(c.Strata))
	for i, s := range c.Strata {
		req := s.Request
		strata[i] = StratumRecord{
			Stratum:   req.Stratum,
			Levels:    append([]string(nil), req.Levels...),
			N:         req.N,
			Policy:    req.Policy,
			Prefix:    req.Prefix,
			Seed:      req.Seed,
			Allocated: s.Len(),
			Blocks:    len(s.Blocks),
		}
	}

	return &Manifest{
		RunID:       core.NewRunID(),
		Study:       study,
		Strata:      strata,
		TotalRows:   c.Len(),
		IDWidth:     c.IDWidth,
		MinIDWidth:  minIDWidth,
		Fingerprint: c.Fingerprint(),
		CodeVersion: codeVersion,
		CreatedAt:   core.Now(),
	}
}

// Requests rebuilds the stratum requests in their original order.
func (m *Manifest) Requests() []randomisation.Request {
	out := make([]randomisation.Request, len(m.Strata))
	for i, s := range m.Strata {
		out[i] = randomisation.Request{
			Stratum: s.Stratum,
			Levels:  append([]string(nil), s.Levels...),
			N:       s.N,
			Policy:  s.Policy,
			Prefix:  s.Prefix,
			Seed:    s.Seed,
		}
	}
	return out
}

// Seeds lists the seed of each stratum in order.
func (m *Manifest) Seeds() map[string]int64 {
	out := make(map[string]int64, len(m.Strata))
	for _, s := range m.Strata {
		out[s.Stratum] = s.Seed
	}
	return out
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewInvalidParameterError("manifest.run_id", "cannot be empty")
	}
	if len(m.Strata) == 0 {
		return core.NewEmptyInputError("manifest strata")
	}
	if m.Fingerprint.IsEmpty() {
		return core.NewInvalidParameterError("manifest.fingerprint", "cannot be empty")
	}
	return nil
}

// Verify compares a regenerated schedule against the recorded one.
func (m *Manifest) Verify(c *randomisation.CombinedSchedule) error {
	if c.Len() != m.TotalRows {
		return fmt.Errorf("%w: expected %d rows, got %d", core.ErrHashMismatch, m.TotalRows, c.Len())
	}
	if fp := c.Fingerprint(); !fp.Equals(m.Fingerprint) {
		return core.NewHashMismatchError(m.Fingerprint, fp)
	}
	return nil
}
