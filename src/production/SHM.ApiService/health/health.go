package health

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	config "gitlab.com/maplesense1/shm.smarthome_server/src/production/SHM.Config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// HealthChecker reports the state of the service's backing stores
type HealthChecker struct {
	db    *sql.DB
	mongo *mongo.Client
}

// NewHealthChecker creates a new health checker. mongoClient may be nil.
func NewHealthChecker(db *sql.DB, mongoClient *mongo.Client) *HealthChecker {
	return &HealthChecker{db: db, mongo: mongoClient}
}

// CheckDatabaseHealth pings PostgreSQL and runs a trivial query
func (h *HealthChecker) CheckDatabaseHealth(ctx context.Context) error {
	if h.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if err := h.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query failed: %w", err)
	}
	return nil
}

// GetHealthStatus returns the current health status. The overall status is
// "ok" only when every configured store answers.
func (h *HealthChecker) GetHealthStatus(ctx context.Context) map[string]interface{} {
	checks := map[string]interface{}{}
	overall := "ok"

	if err := h.CheckDatabaseHealth(ctx); err != nil {
		overall = "degraded"
		checks["postgres"] = map[string]interface{}{"status": "error", "error": err.Error()}
	} else {
		checks["postgres"] = map[string]interface{}{"status": "ok"}
	}

	if h.mongo != nil {
		if err := h.mongo.Ping(ctx, readpref.Primary()); err != nil {
			overall = "degraded"
			checks["mongodb"] = map[string]interface{}{"status": "error", "error": err.Error()}
		} else {
			checks["mongodb"] = map[string]interface{}{"status": "ok"}
		}
	}

	return map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"status":    overall,
		"checks":    checks,
	}
}

// DatabaseManager owns schema creation
type DatabaseManager struct {
	db *sql.DB
}

// NewDatabaseManager creates a new database manager
func NewDatabaseManager(db *sql.DB) *DatabaseManager {
	return &DatabaseManager{db: db}
}

// ConnectPostgresWithTimeout opens the pool and verifies it within timeout
func ConnectPostgresWithTimeout(cfg *config.Config, timeout time.Duration) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Database.MinConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// ConnectMongoWithTimeout connects to the transcript store and pings it
func ConnectMongoWithTimeout(cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.Timeout).
		SetConnectTimeout(cfg.Timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}
	return client, nil
}

// Schema statements. Timestamps are stored as UTC without zone.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         SERIAL PRIMARY KEY,
		name       VARCHAR(50) NOT NULL,
		house_area DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id   SERIAL PRIMARY KEY,
		name VARCHAR(50) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		id      SERIAL PRIMARY KEY,
		name    VARCHAR(50) NOT NULL,
		type    VARCHAR(30),
		room_id INTEGER REFERENCES rooms(id) ON DELETE SET NULL
	)`,
	`CREATE TABLE IF NOT EXISTS device_usages (
		id              SERIAL PRIMARY KEY,
		user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		device_id       INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
		start_time      TIMESTAMP NOT NULL DEFAULT (now() AT TIME ZONE 'utc'),
		end_time        TIMESTAMP,
		usage_type      VARCHAR(30),
		energy_consumed DOUBLE PRECISION
	)`,
	`ALTER TABLE device_usages ADD COLUMN IF NOT EXISTS device_type VARCHAR(30)`,
	`ALTER TABLE device_usages ADD COLUMN IF NOT EXISTS user_name VARCHAR(50)`,
	`CREATE TABLE IF NOT EXISTS security_events (
		id         SERIAL PRIMARY KEY,
		user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		device_id  INTEGER NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
		event_type VARCHAR(30) NOT NULL,
		timestamp  TIMESTAMP NOT NULL DEFAULT (now() AT TIME ZONE 'utc')
	)`,
	`ALTER TABLE security_events ADD COLUMN IF NOT EXISTS event_level VARCHAR(10)`,
	`ALTER TABLE security_events ADD COLUMN IF NOT EXISTS location VARCHAR(50)`,
	`ALTER TABLE security_events ADD COLUMN IF NOT EXISTS status VARCHAR(20)`,
	`CREATE TABLE IF NOT EXISTS feedbacks (
		id            SERIAL PRIMARY KEY,
		user_id       INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content       TEXT NOT NULL,
		feedback_type VARCHAR(20),
		device_id     INTEGER REFERENCES devices(id) ON DELETE SET NULL,
		timestamp     TIMESTAMP NOT NULL DEFAULT (now() AT TIME ZONE 'utc')
	)`,
	`ALTER TABLE feedbacks ADD COLUMN IF NOT EXISTS status VARCHAR(20)`,
	`CREATE INDEX IF NOT EXISTS idx_device_usages_user ON device_usages (user_id, start_time)`,
	`CREATE INDEX IF NOT EXISTS idx_device_usages_device ON device_usages (device_id)`,
	`CREATE INDEX IF NOT EXISTS idx_security_events_device ON security_events (device_id)`,
	`CREATE INDEX IF NOT EXISTS idx_feedbacks_user ON feedbacks (user_id)`,
}

// CreateTables creates the required tables if they don't exist
func (dm *DatabaseManager) CreateTables(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, query := range schemaStatements {
		if _, err := dm.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
