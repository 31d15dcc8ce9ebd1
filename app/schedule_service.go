package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"trialrand/domain/core"
	"trialrand/domain/randomisation"
	"trialrand/domain/run"
	"trialrand/internal/config"
	"trialrand/internal/errors"
	"trialrand/ports"
)

// seedCheckDraws is the number of generator draws recorded per stratum.
const seedCheckDraws = 4

func streamName(stratum string) string { return "stratum:" + stratum }

// ScheduleService generates, audits, stores and replays allocation schedules
type ScheduleService struct {
	rngPort     ports.RNGPort
	repo        ports.ScheduleRepository // optional
	codeVersion string
	parallel    bool
	minIDWidth  int
}

// GenerationResult is everything produced by one generation run
type GenerationResult struct {
	Schedule  *randomisation.CombinedSchedule `json:"-"`
	Manifest  *run.Manifest                   `json:"manifest"`
	Audit     *randomisation.BalanceReport    `json:"audit"`
	RuntimeMs int64                           `json:"runtime_ms"`
}

// NewScheduleService creates a schedule service. repo may be nil, in which
// case runs are not persisted and lookups fail with NOT_FOUND.
func NewScheduleService(rngPort ports.RNGPort, repo ports.ScheduleRepository, cfg config.RandomisationConfig) *ScheduleService {
	return &ScheduleService{
		rngPort:     rngPort,
		repo:        repo,
		codeVersion: cfg.CodeVersion,
		parallel:    cfg.ParallelStrata,
		minIDWidth:  cfg.MinIDWidth,
	}
}

// Generate resolves the plan, builds the combined schedule and its manifest,
// audits it and stores it when a repository is configured.
func (s *ScheduleService) Generate(ctx context.Context, plan *config.Plan) (*GenerationResult, error) {
	startTime := time.Now()

	reqs, err := plan.Requests()
	if err != nil {
		return nil, err
	}
	if dups := randomisation.DuplicateSeeds(reqs); len(dups) > 0 {
		log.Printf("[Schedule] warning: seeds %v are shared by more than one stratum", dups)
	}

	minWidth := s.minIDWidth
	if plan.MinIDWidth > minWidth {
		minWidth = plan.MinIDWidth
	}

	combined, err := s.combine(ctx, reqs, minWidth)
	if err != nil {
		return nil, err
	}

	manifest := run.NewManifest(plan.Study, combined, minWidth, s.codeVersion)
	for i := range manifest.Strata {
		check, err := s.rngPort.SeedCheck(ctx, streamName(manifest.Strata[i].Stratum), manifest.Strata[i].Seed, seedCheckDraws)
		if err != nil {
			return nil, errors.FromDomain(err, "failed to record seed check")
		}
		manifest.Strata[i].SeedCheck = check
	}
	audit, err := randomisation.Audit(combined)
	if err != nil {
		return nil, errors.FromDomain(err, "schedule audit failed")
	}
	if !audit.Balanced() {
		log.Printf("[Schedule] run %s has %d unbalanced blocks", manifest.RunID, len(audit.Violations))
	}

	if s.repo != nil {
		if err := s.repo.Save(ctx, manifest, combined); err != nil {
			return nil, errors.DatabaseError("failed to store schedule", err)
		}
	}

	log.Printf("[Schedule] run %s: %d strata, %d rows, fingerprint %s",
		manifest.RunID, len(manifest.Strata), manifest.TotalRows, manifest.Fingerprint)

	return &GenerationResult{
		Schedule:  combined,
		Manifest:  manifest,
		Audit:     audit,
		RuntimeMs: time.Since(startTime).Milliseconds(),
	}, nil
}

// Verify regenerates the schedule recorded by a manifest and checks that it
// reproduces the recorded fingerprint.
func (s *ScheduleService) Verify(ctx context.Context, manifest *run.Manifest) (*randomisation.CombinedSchedule, error) {
	if err := manifest.Validate(); err != nil {
		return nil, errors.FromDomain(err, "invalid manifest")
	}

	// A generator that no longer reproduces its recorded draws cannot
	// reproduce the schedule either.
	for _, st := range manifest.Strata {
		if len(st.SeedCheck) == 0 {
			continue
		}
		if err := s.rngPort.ValidateSeed(ctx, streamName(st.Stratum), st.Seed, st.SeedCheck); err != nil {
			return nil, errors.FromDomain(err, fmt.Sprintf("run %s: generator for stratum %q changed", manifest.RunID, st.Stratum))
		}
	}

	combined, err := s.combine(ctx, manifest.Requests(), manifest.MinIDWidth)
	if err != nil {
		return nil, err
	}
	if err := manifest.Verify(combined); err != nil {
		return nil, errors.FromDomain(err, fmt.Sprintf("run %s does not reproduce", manifest.RunID))
	}

	log.Printf("[Schedule] run %s reproduced (%s)", manifest.RunID, manifest.Fingerprint)
	return combined, nil
}

// Get returns the stored manifest of a run
func (s *ScheduleService) Get(ctx context.Context, runID core.RunID) (*run.Manifest, error) {
	if s.repo == nil {
		return nil, errors.NotFound("run " + runID.String())
	}
	m, err := s.repo.GetManifest(ctx, runID)
	if err != nil {
		return nil, errors.FromDomain(err, "failed to load run")
	}
	return m, nil
}

// Rows returns the stored rows of a run
func (s *ScheduleService) Rows(ctx context.Context, runID core.RunID) ([]randomisation.Row, error) {
	if s.repo == nil {
		return nil, errors.NotFound("run " + runID.String())
	}
	rows, err := s.repo.ListRows(ctx, runID)
	if err != nil {
		return nil, errors.FromDomain(err, "failed to load rows")
	}
	return rows, nil
}

// Recent lists stored manifests, newest first
func (s *ScheduleService) Recent(ctx context.Context, limit int) ([]*run.Manifest, error) {
	if s.repo == nil {
		return nil, nil
	}
	manifests, err := s.repo.ListManifests(ctx, limit)
	if err != nil {
		return nil, errors.DatabaseError("failed to list runs", err)
	}
	return manifests, nil
}

func (s *ScheduleService) combine(ctx context.Context, reqs []randomisation.Request, minWidth int) (*randomisation.CombinedSchedule, error) {
	combiner := &randomisation.Combiner{
		Parallel:   s.parallel,
		MinIDWidth: minWidth,
		Streams: func(ctx context.Context, req randomisation.Request) (randomisation.Source, error) {
			return s.rngPort.SeededStream(ctx, streamName(req.Stratum), req.Seed)
		},
	}
	combined, err := combiner.Combine(ctx, reqs)
	if err != nil {
		return nil, errors.FromDomain(err, "schedule generation failed")
	}
	return combined, nil
}
