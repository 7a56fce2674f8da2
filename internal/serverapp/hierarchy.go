package serverapp

import (
	"context"
	"database/sql"
	"fmt"

	"tidb-hierarchy/internal/config"
	"tidb-hierarchy/internal/dbexec"
	"tidb-hierarchy/internal/loader"
	"tidb-hierarchy/internal/logging"
	"tidb-hierarchy/internal/relation"
)

// Hierarchy is a verified hierarchy definition with a loader bound to an open
// database. Command line tools use it without starting the HTTP server.
type Hierarchy struct {
	DB          *sql.DB
	Loader      *loader.Loader
	Definition  relation.Definition
	IntegerKeys bool

	dbStatsReg interface{ Unregister() error }
}

// OpenHierarchy connects to the configured database and checks the hierarchy
// definition against it. The caller must Close the result.
func OpenHierarchy(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Hierarchy, error) {
	dialect, err := cfg.Database.Dialect()
	if err != nil {
		return nil, err
	}
	schema, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, err
	}

	db, dbStatsReg, err := connectDB(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	h := &Hierarchy{DB: db, dbStatsReg: dbStatsReg, Definition: cfg.Hierarchy.Definition()}

	if err := configureDatabase(ctx, cfg, logger, db); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	h.IntegerKeys, err = checkHierarchy(ctx, logger, db, dialect, schema, h.Definition)
	if err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("hierarchy definition does not match the database: %w", err)
	}

	h.Loader = loader.New(dbexec.NewStandardExecutor(db), loader.Options{
		Dialect:      dialect,
		MaxBatchSize: cfg.Hierarchy.MaxBatchSize,
	})
	return h, nil
}

// Close releases the database pool.
func (h *Hierarchy) Close() error {
	if h.dbStatsReg != nil {
		_ = h.dbStatsReg.Unregister()
	}
	return h.DB.Close()
}
