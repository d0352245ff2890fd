package database

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Database indexes events, closed sequences and monitor state in postgres.
type Database struct {
	DB     *sql.DB
	outbox bool
}

// EnableOutbox queues every saved sequence for kafka publication.
func (d *Database) EnableOutbox() {
	d.outbox = true
}

// New creates a new Database instance
func New(dsn string) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// Verify connection
	if err = db.Ping(); err != nil {
		return nil, err
	}

	return &Database{DB: db}, nil
}

// Init creates the required tables if they don't exist
func (d *Database) Init(ctx context.Context) error {
	createTables := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		camera TEXT NOT NULL,
		roi TEXT NOT NULL,
		labels TEXT[] NOT NULL,
		scores DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
		image_change DOUBLE PRECISION NOT NULL,
		image_path TEXT NOT NULL,
		thumbnail_path TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS events_camera_occurred_at ON events (camera, occurred_at);

	CREATE TABLE IF NOT EXISTS sequences (
		id TEXT PRIMARY KEY,
		camera TEXT NOT NULL,
		labels TEXT[] NOT NULL,
		event_count INT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS sequence_events (
		sequence_id TEXT NOT NULL REFERENCES sequences (id) ON DELETE CASCADE,
		event_id TEXT NOT NULL,
		PRIMARY KEY (sequence_id, event_id)
	);

	CREATE TABLE IF NOT EXISTS outbox (
		id TEXT PRIMARY KEY,
		camera TEXT NOT NULL,
		payload BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		processed_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS outbox_pending ON outbox (created_at) WHERE processed_at IS NULL;

	CREATE TABLE IF NOT EXISTS monitors (
		camera TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	);
	`

	_, err := d.DB.ExecContext(ctx, createTables)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}
