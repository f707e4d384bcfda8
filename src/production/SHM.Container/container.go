package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.ApiService/health"
	config "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Config"
	logger "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Logger"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container manages infrastructure dependencies and their lifecycle
type Container struct {
	config *config.Config
	logger *logger.Logger
	db     *sql.DB
	mongo  *mongo.Client

	healthChecker   *health.HealthChecker
	databaseManager *health.DatabaseManager

	mu sync.Mutex
}

// IngestorContainer manages dependencies for the telemetry ingestor
type IngestorContainer struct {
	config *config.IngestorConfig
	logger *logger.Logger
}

// NewApiContainer creates a new container for the API service
func NewApiContainer() (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load API configuration: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger.NewLogger(&cfg.Logging).WithService("api"),
	}, nil
}

// NewIngestorContainer creates a new container for the telemetry ingestor
func NewIngestorContainer() (*IngestorContainer, error) {
	cfg, err := config.LoadIngestorConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load ingestor configuration: %w", err)
	}

	return &IngestorContainer{
		config: cfg,
		logger: logger.NewLogger(&cfg.Logging).WithService("ingestor"),
	}, nil
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetConfig returns the ingestor configuration
func (c *IngestorContainer) GetConfig() *config.IngestorConfig {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetLogger returns the logger
func (c *IngestorContainer) GetLogger() *logger.Logger {
	return c.logger
}

// GetDatabase returns the database pool, connecting on first use
func (c *Container) GetDatabase() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.databaseLocked()
}

func (c *Container) databaseLocked() (*sql.DB, error) {
	if c.db == nil {
		db, err := health.ConnectPostgresWithTimeout(c.config, c.config.Database.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.db = db
	}
	return c.db, nil
}

// GetMongo returns the transcript store client, or nil when none is configured
func (c *Container) GetMongo() (*mongo.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mongoLocked()
}

func (c *Container) mongoLocked() (*mongo.Client, error) {
	if !c.config.Mongo.Enabled() {
		return nil, nil
	}
	if c.mongo == nil {
		client, err := health.ConnectMongoWithTimeout(c.config.Mongo)
		if err != nil {
			return nil, err
		}
		c.mongo = client
	}
	return c.mongo, nil
}

// GetHealthChecker returns the health checker
func (c *Container) GetHealthChecker() (*health.HealthChecker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthChecker != nil {
		return c.healthChecker, nil
	}
	db, err := c.databaseLocked()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for health checker: %w", err)
	}
	mongoClient, err := c.mongoLocked()
	if err != nil {
		c.logger.WithError(err).Warn("MongoDB unavailable, readiness will not include it")
	}
	c.healthChecker = health.NewHealthChecker(db, mongoClient)
	return c.healthChecker, nil
}

// InitializeDatabase connects and creates the schema
func (c *Container) InitializeDatabase(ctx context.Context) error {
	c.mu.Lock()
	if c.databaseManager == nil {
		db, err := c.databaseLocked()
		if err != nil {
			c.mu.Unlock()
			return fmt.Errorf("failed to get database manager: %w", err)
		}
		c.databaseManager = health.NewDatabaseManager(db)
	}
	dm := c.databaseManager
	c.mu.Unlock()

	if err := dm.CreateTables(ctx); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	c.logger.Info("Database initialized successfully")
	return nil
}

// Shutdown closes every open connection
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mongo != nil {
		if err := c.mongo.Disconnect(ctx); err != nil {
			c.logger.ErrorWithError(err, "Error disconnecting from MongoDB")
		}
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.ErrorWithError(err, "Error closing database connection")
		}
	}

	c.logger.Info("Container shutdown complete")
	return nil
}
