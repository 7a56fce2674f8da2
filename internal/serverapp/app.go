// Package serverapp assembles the hierarchy server: telemetry providers, the
// database pool, the GraphQL schema for the configured hierarchy, and the HTTP
// server, released in reverse order on shutdown.
package serverapp

import (
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"github.com/graphql-go/graphql"

	"tidb-hierarchy/internal/config"
	"tidb-hierarchy/internal/loader"
	"tidb-hierarchy/internal/logging"
	"tidb-hierarchy/internal/observability"
	"tidb-hierarchy/internal/sqlutil"
)

// App owns runtime resources for the server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	effectiveDatabase string

	meterProvider    *observability.MeterProvider
	traversalMetrics *observability.TraversalMetrics
	tracerProvider   *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }
	dialect    sqlutil.Dialect

	loader *loader.Loader
	schema graphql.Schema

	handler    http.Handler
	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	effectiveDatabase, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
	}
	dialect, err := cfg.Database.Dialect()
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:               cfg,
		logger:            logger,
		effectiveDatabase: effectiveDatabase,
		dialect:           dialect,
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the root HTTP handler once Init has completed.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
