package container

import (
	"context"
	"fmt"
	"log"

	"trialrand/adapters/postgres"
	"trialrand/adapters/rng"
	"trialrand/app"
	"trialrand/internal/config"
	"trialrand/internal/errors"
	"trialrand/internal/migration"
	"trialrand/internal/testkit"
	"trialrand/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB *sqlx.DB

	RNG          ports.RNGPort
	ScheduleRepo ports.ScheduleRepository

	ScheduleService *app.ScheduleService
}

// New creates a container. Without a database the repository is held in
// memory and lost on exit.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config: cfg,
		RNG:    rng.NewSeededAdapter(cfg.Randomisation.TraceStreams),
	}

	if cfg.Database.Enabled() {
		db, err := Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		c.DB = db
		c.ScheduleRepo = postgres.NewScheduleRepository(db)
		log.Printf("[Container] schedules are stored in PostgreSQL")
	} else {
		c.ScheduleRepo = testkit.NewBoundedScheduleRepository(cfg.Database.MemoryRunLimit)
		log.Printf("[Container] warning: DATABASE_URL not set, keeping the last %d runs in memory (development only)", cfg.Database.MemoryRunLimit)
	}

	c.ScheduleService = app.NewScheduleService(c.RNG, c.ScheduleRepo, cfg.Randomisation)
	return c, nil
}

// Connect opens the database, checks the connection and applies migrations
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if !cfg.Enabled() {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.URL)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	migrator := migration.NewRunner()
	if err := migrator.Run(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "database migration failed")
	}
	log.Printf("[Container] database schema at version %s", migrator.Version())

	return db, nil
}

// Shutdown releases the database connection
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB == nil {
		return nil
	}
	if err := c.DB.Close(); err != nil {
		return errors.DatabaseError("failed to close database", err)
	}
	return nil
}
