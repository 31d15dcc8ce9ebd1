package testkit

import (
	"context"
	"sort"
	"sync"

	"trialrand/domain/core"
	"trialrand/domain/randomisation"
	"trialrand/domain/run"
	"trialrand/internal/config"
)

// HospitalPlanYAML is the two-stratum cluster trial used across tests.
const HospitalPlanYAML = `
study: HOSP-TRIAL
prefix: HOSP
levels: [Case, Control]
strata:
  - name: Small
    n: 80
    seed: 1001
    block_length: 4
  - name: Large
    n: 80
    seed: 2002
    block_replicates: [1]
`

// HospitalPlan parses HospitalPlanYAML
func HospitalPlan() *config.Plan {
	plan, err := config.ParsePlan([]byte(HospitalPlanYAML))
	if err != nil {
		panic(err)
	}
	return plan
}

// HospitalRequests returns the resolved requests of HospitalPlan
func HospitalRequests() []randomisation.Request {
	reqs, err := HospitalPlan().Requests()
	if err != nil {
		panic(err)
	}
	return reqs
}

// InMemoryScheduleRepository implements ports.ScheduleRepository with in-memory storage
type InMemoryScheduleRepository struct {
	manifests map[core.RunID]*run.Manifest
	rows      map[core.RunID][]randomisation.Row
	order     []core.RunID
	capacity  int // 0 keeps every run
	mu        sync.RWMutex
}

func NewInMemoryScheduleRepository() *InMemoryScheduleRepository {
	return NewBoundedScheduleRepository(0)
}

// NewBoundedScheduleRepository keeps only the most recent capacity runs.
func NewBoundedScheduleRepository(capacity int) *InMemoryScheduleRepository {
	return &InMemoryScheduleRepository{
		manifests: make(map[core.RunID]*run.Manifest),
		rows:      make(map[core.RunID][]randomisation.Row),
		capacity:  capacity,
	}
}

func (s *InMemoryScheduleRepository) Save(ctx context.Context, manifest *run.Manifest, schedule *randomisation.CombinedSchedule) error {
	if err := manifest.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.manifests[manifest.RunID]; !exists {
		s.order = append(s.order, manifest.RunID)
	}
	m := *manifest
	s.manifests[manifest.RunID] = &m
	s.rows[manifest.RunID] = append([]randomisation.Row(nil), schedule.Rows...)

	for s.capacity > 0 && len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.manifests, oldest)
		delete(s.rows, oldest)
	}
	return nil
}

func (s *InMemoryScheduleRepository) GetManifest(ctx context.Context, runID core.RunID) (*run.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.manifests[runID]
	if !ok {
		return nil, core.NewNotFoundError("run", runID.String())
	}
	out := *m
	return &out, nil
}

func (s *InMemoryScheduleRepository) ListRows(ctx context.Context, runID core.RunID) ([]randomisation.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.rows[runID]
	if !ok {
		return nil, core.NewNotFoundError("run", runID.String())
	}
	out := append([]randomisation.Row(nil), rows...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *InMemoryScheduleRepository) ListManifests(ctx context.Context, limit int) ([]*run.Manifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*run.Manifest
	for i := len(s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(results) >= limit {
			break
		}
		m := *s.manifests[s.order[i]]
		results = append(results, &m)
	}
	return results, nil
}
