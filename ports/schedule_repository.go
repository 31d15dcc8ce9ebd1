package ports

import (
	"context"

	"trialrand/domain/core"
	"trialrand/domain/randomisation"
	"trialrand/domain/run"
)

// ScheduleRepository persists generated schedules together with their manifests
type ScheduleRepository interface {
	// Save stores the manifest and every row atomically
	Save(ctx context.Context, manifest *run.Manifest, schedule *randomisation.CombinedSchedule) error

	// GetManifest returns the manifest for a run
	GetManifest(ctx context.Context, runID core.RunID) (*run.Manifest, error)

	// ListRows returns the stored rows of a run in position order
	ListRows(ctx context.Context, runID core.RunID) ([]randomisation.Row, error)

	// ListManifests returns the most recent manifests, newest first
	ListManifests(ctx context.Context, limit int) ([]*run.Manifest, error)
}
