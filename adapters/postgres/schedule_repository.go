package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"trialrand/domain/core"
	"trialrand/domain/randomisation"
	"trialrand/domain/run"
	"trialrand/ports"
)

// rowInsertBatch keeps each insert under the Postgres bind parameter limit.
const rowInsertBatch = 1000

// scheduleRepository implements ports.ScheduleRepository
type scheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new PostgreSQL schedule repository
func NewScheduleRepository(db *sqlx.DB) ports.ScheduleRepository {
	return &scheduleRepository{db: db}
}

type runRecord struct {
	ID          string    `db:"id"`
	Study       string    `db:"study"`
	Fingerprint string    `db:"fingerprint"`
	TotalRows   int       `db:"total_rows"`
	IDWidth     int       `db:"id_width"`
	MinIDWidth  int       `db:"min_id_width"`
	CodeVersion string    `db:"code_version"`
	Strata      []byte    `db:"strata"`
	CreatedAt   time.Time `db:"created_at"`
}

type rowRecord struct {
	RunID         string `db:"run_id"`
	Position      int    `db:"position"`
	UnitID        string `db:"unit_id"`
	Stratum       string `db:"stratum"`
	Block         int    `db:"block"`
	BlockPosition int    `db:"block_position"`
	BlockLength   int    `db:"block_length"`
	Treatment     string `db:"treatment"`
}

// Save stores the manifest and all rows in one transaction
func (r *scheduleRepository) Save(ctx context.Context, manifest *run.Manifest, schedule *randomisation.CombinedSchedule) error {
	if err := manifest.Validate(); err != nil {
		return err
	}

	strataJSON, err := json.Marshal(manifest.Strata)
	if err != nil {
		return fmt.Errorf("failed to marshal strata: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO randomisation_runs (
			id, study, fingerprint, total_rows, id_width, min_id_width, code_version, strata, created_at
		) VALUES (
			:id, :study, :fingerprint, :total_rows, :id_width, :min_id_width, :code_version, :strata, :created_at
		)`, runRecord{
		ID:          manifest.RunID.String(),
		Study:       manifest.Study,
		Fingerprint: manifest.Fingerprint.String(),
		TotalRows:   manifest.TotalRows,
		IDWidth:     manifest.IDWidth,
		MinIDWidth:  manifest.MinIDWidth,
		CodeVersion: manifest.CodeVersion,
		Strata:      strataJSON,
		CreatedAt:   manifest.CreatedAt.Time(),
	})
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	records := make([]rowRecord, len(schedule.Rows))
	for i, row := range schedule.Rows {
		records[i] = rowRecord{
			RunID:         manifest.RunID.String(),
			Position:      row.Position,
			UnitID:        row.ID,
			Stratum:       row.Stratum,
			Block:         row.Block,
			BlockPosition: row.BlockPosition,
			BlockLength:   row.BlockLength,
			Treatment:     row.Treatment,
		}
	}

	for start := 0; start < len(records); start += rowInsertBatch {
		end := start + rowInsertBatch
		if end > len(records) {
			end = len(records)
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO randomisation_rows (
				run_id, position, unit_id, stratum, block, block_position, block_length, treatment
			) VALUES (
				:run_id, :position, :unit_id, :stratum, :block, :block_position, :block_length, :treatment
			)`, records[start:end])
		if err != nil {
			return fmt.Errorf("failed to insert rows %d-%d: %w", start+1, end, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetManifest retrieves the manifest of a run
func (r *scheduleRepository) GetManifest(ctx context.Context, runID core.RunID) (*run.Manifest, error) {
	var rec runRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT id, study, fingerprint, total_rows, id_width, min_id_width, code_version, strata, created_at
		FROM randomisation_runs
		WHERE id = $1
	`, runID.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewNotFoundError("run", runID.String())
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return rec.toManifest()
}

// ListRows returns the stored rows of a run in position order
func (r *scheduleRepository) ListRows(ctx context.Context, runID core.RunID) ([]randomisation.Row, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM randomisation_runs WHERE id = $1)`, runID.String()); err != nil {
		return nil, fmt.Errorf("failed to check run: %w", err)
	}
	if !exists {
		return nil, core.NewNotFoundError("run", runID.String())
	}

	var records []rowRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT run_id, position, unit_id, stratum, block, block_position, block_length, treatment
		FROM randomisation_rows
		WHERE run_id = $1
		ORDER BY position ASC
	`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}

	rows := make([]randomisation.Row, len(records))
	for i, rec := range records {
		rows[i] = randomisation.Row{
			Position:      rec.Position,
			ID:            rec.UnitID,
			Stratum:       rec.Stratum,
			Block:         rec.Block,
			BlockPosition: rec.BlockPosition,
			BlockLength:   rec.BlockLength,
			Treatment:     rec.Treatment,
		}
	}
	return rows, nil
}

// ListManifests returns recent manifests, newest first
func (r *scheduleRepository) ListManifests(ctx context.Context, limit int) ([]*run.Manifest, error) {
	query := `
		SELECT id, study, fingerprint, total_rows, id_width, min_id_width, code_version, strata, created_at
		FROM randomisation_runs
		ORDER BY created_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var records []runRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	manifests := make([]*run.Manifest, 0, len(records))
	for _, rec := range records {
		m, err := rec.toManifest()
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

func (rec runRecord) toManifest() (*run.Manifest, error) {
	m := &run.Manifest{
		RunID:       core.RunID(rec.ID),
		Study:       rec.Study,
		TotalRows:   rec.TotalRows,
		IDWidth:     rec.IDWidth,
		MinIDWidth:  rec.MinIDWidth,
		Fingerprint: core.Hash(rec.Fingerprint),
		CodeVersion: rec.CodeVersion,
		CreatedAt:   core.NewTimestamp(rec.CreatedAt),
	}
	if err := json.Unmarshal(rec.Strata, &m.Strata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal strata: %w", err)
	}
	return m, nil
}
