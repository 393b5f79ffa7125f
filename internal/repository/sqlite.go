package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/telhawk-systems/agent-events/common/database"
	"github.com/telhawk-systems/agent-events/internal/codec"
	"github.com/telhawk-systems/agent-events/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	timestamp REAL NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp, seq);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type, timestamp, seq);
CREATE TABLE IF NOT EXISTS event_tags (
	event_seq INTEGER NOT NULL REFERENCES events(seq),
	tag TEXT NOT NULL,
	PRIMARY KEY (event_seq, tag)
);
CREATE INDEX IF NOT EXISTS idx_event_tags_tag ON event_tags(tag);
`

// SQLiteRepository persists events to an embedded SQLite database.
// It is suitable for a single service instance.
type SQLiteRepository struct {
	db       *sql.DB
	pipeline *codec.Pipeline
	timeouts database.Timeouts
}

// NewSQLiteRepository opens the database at path and creates the schema.
// Use ":memory:" for an ephemeral database.
func NewSQLiteRepository(ctx context.Context, path string, pipeline *codec.Pipeline, opts ...Option) (*SQLiteRepository, error) {
	o := applyOptions(opts)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	ctx, cancel := o.timeouts.MigrationContext(ctx)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteRepository{db: db, pipeline: pipeline, timeouts: o.timeouts}, nil
}

// Save implements Writer.
func (r *SQLiteRepository) Save(ctx context.Context, e models.Event) error {
	payload, err := r.pipeline.EncodeOne(e)
	if err != nil {
		return err
	}
	h := e.Header()

	ctx, cancel := r.timeouts.WriteContext(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, type, timestamp, payload) VALUES (?, ?, ?, ?)`,
		h.ID.String(), string(e.Type()), h.Timestamp, []byte(payload))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert event: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read event sequence: %w", err)
	}

	for _, tag := range h.Tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_tags (event_seq, tag) VALUES (?, ?)`, seq, tag); err != nil {
			return fmt.Errorf("insert event tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// Events implements Reader.
func (r *SQLiteRepository) Events(ctx context.Context) ([]models.Event, error) {
	return r.query(ctx, `SELECT payload FROM events ORDER BY timestamp, seq`)
}

// EventsByType implements Reader.
func (r *SQLiteRepository) EventsByType(ctx context.Context, t models.EventType) ([]models.Event, error) {
	return r.query(ctx, `SELECT payload FROM events WHERE type = ? ORDER BY timestamp, seq`, string(t))
}

// EventsByTag implements Reader.
func (r *SQLiteRepository) EventsByTag(ctx context.Context, tag string) ([]models.Event, error) {
	return r.query(ctx, `
		SELECT e.payload FROM events e
		JOIN event_tags t ON t.event_seq = e.seq
		WHERE t.tag = ?
		ORDER BY e.timestamp, e.seq`, tag)
}

// Close closes the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	ctx, cancel := r.timeouts.QueryContext(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e, err := decodeStored(r.pipeline, payload)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
