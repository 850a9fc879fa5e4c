package container

import (
	"context"
	"fmt"

	"imvqa/adapters/blob"
	"imvqa/adapters/excel"
	"imvqa/adapters/sqlstore"
	"imvqa/app"
	"imvqa/internal"
	"imvqa/internal/config"
	"imvqa/internal/metrics"
	"imvqa/internal/migration"
	"imvqa/internal/wellstats"
	"imvqa/ports"

	"github.com/jmoiron/sqlx"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	DB      *sqlx.DB
	Metrics *metrics.Metrics

	// Adapters
	Loader ports.PlateLoader
	Writer ports.WorkbookWriter
	Store  ports.PlateStore
	Blobs  ports.BlobStore

	// Application
	Engine   *wellstats.Engine
	Sessions *app.SessionManager
	Service  *app.AnalysisService

	// Logger is the root logger at the configured LOG_LEVEL; components
	// derive theirs from it
	Logger *internal.Logger
	logger *internal.Logger
}

// New creates a new dependency injection container
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	cols := cfg.Plate.Columns
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel))
	c := &Container{
		Config:   cfg,
		Metrics:  metrics.New(),
		Loader:   excel.NewLoader(cols).WithLogger(logger),
		Writer:   excel.NewWriter(cols),
		Engine:   wellstats.NewEngine(cols).WithLogger(logger),
		Sessions: app.NewSessionManager(cfg.Server.SessionTTL),
		Logger:   logger,
		logger:   logger.WithComponent("Container"),
	}
	return c, nil
}

// InitWithDatabase initializes components that require database access. The
// schema is migrated before the store is built.
func (c *Container) InitWithDatabase(ctx context.Context, db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}

	c.DB = db

	// Test database connection
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	if err := migration.NewRunner(c.Config.Plate.Columns).Run(ctx, db); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}

	c.Store = sqlstore.NewPlateStore(db, c.Config.Plate.Columns, c.Logger)
	c.logger.Info("analysis store ready (%s)", c.Config.Database.Driver)
	return nil
}

// InitBlobStore opens the export destination
func (c *Container) InitBlobStore(ctx context.Context) error {
	blobs, err := blob.Open(ctx, c.Config.Blob)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}
	c.Blobs = blobs
	c.logger.Info("blob store ready (%s)", blobs.Driver())
	return nil
}

// Init opens the database and blob store and wires the analysis service
func (c *Container) Init(ctx context.Context) error {
	db, err := sqlstore.Open(ctx, c.Config.Database)
	if err != nil {
		return err
	}
	if err := c.InitWithDatabase(ctx, db); err != nil {
		db.Close()
		return err
	}
	if err := c.InitBlobStore(ctx); err != nil {
		return err
	}
	c.BuildService()
	return nil
}

// BuildService wires the analysis service from whatever adapters are set.
// A nil store or blob store disables save or export.
func (c *Container) BuildService() *app.AnalysisService {
	c.Service = app.NewAnalysisService(
		c.Loader,
		c.Engine,
		c.Sessions,
		c.Store,
		c.Blobs,
		c.Writer,
		c.Metrics,
		app.ServiceConfig{HistogramBins: c.Config.Plate.HistogramBins, Logger: c.Logger},
	)
	return c.Service
}

// HealthCheck pings the database
func (c *Container) HealthCheck(ctx context.Context) error {
	if c.DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.DB.PingContext(ctx)
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	// Close database connection
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
