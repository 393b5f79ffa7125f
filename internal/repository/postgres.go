package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/agent-events/common/database"
	"github.com/telhawk-systems/agent-events/internal/codec"
	"github.com/telhawk-systems/agent-events/internal/models"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool     *pgxpool.Pool
	pipeline *codec.Pipeline
	timeouts database.Timeouts
}

// NewPostgresRepository connects to PostgreSQL. Run Migrate first.
func NewPostgresRepository(ctx context.Context, connString string, pipeline *codec.Pipeline, opts ...Option) (*PostgresRepository, error) {
	o := applyOptions(opts)
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 2
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool, pipeline: pipeline, timeouts: o.timeouts}, nil
}

// Save implements Writer.
func (r *PostgresRepository) Save(ctx context.Context, e models.Event) error {
	payload, err := r.pipeline.EncodeOne(e)
	if err != nil {
		return err
	}
	h := e.Header()

	ctx, cancel := r.timeouts.WriteContext(ctx)
	defer cancel()

	query := `
		INSERT INTO agent_events (id, type, timestamp, tags, payload)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.pool.Exec(ctx, query, h.ID.String(), string(e.Type()), h.Timestamp, h.Tags, []byte(payload))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// Events implements Reader.
func (r *PostgresRepository) Events(ctx context.Context) ([]models.Event, error) {
	return r.query(ctx, `SELECT payload FROM agent_events ORDER BY timestamp, seq`)
}

// EventsByType implements Reader.
func (r *PostgresRepository) EventsByType(ctx context.Context, t models.EventType) ([]models.Event, error) {
	return r.query(ctx, `SELECT payload FROM agent_events WHERE type = $1 ORDER BY timestamp, seq`, string(t))
}

// EventsByTag implements Reader.
func (r *PostgresRepository) EventsByTag(ctx context.Context, tag string) ([]models.Event, error) {
	return r.query(ctx, `SELECT payload FROM agent_events WHERE tags @> ARRAY[$1::text] ORDER BY timestamp, seq`, tag)
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	ctx, cancel := r.timeouts.QueryContext(ctx)
	defer cancel()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e, err := decodeStored(r.pipeline, payload)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
