// internal/jobs/postgres.go
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// DBPool abstracts the pgxpool.Pool so the store can be mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists job state so it survives process restarts.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore verifies the connection and ensures the schema exists.
func NewPostgresStore(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &PostgresStore{pool: pool, log: logger.Named("jobs.postgres")}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS jobs (
			id         TEXT PRIMARY KEY,
			query      TEXT NOT NULL,
			url        TEXT NOT NULL,
			top_k      INT NOT NULL,
			max_steps  INT NOT NULL,
			state      TEXT NOT NULL,
			result     JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS job_events (
			id        BIGSERIAL PRIMARY KEY,
			job_id    TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			event     TEXT NOT NULL,
			details   JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, rec schemas.JobRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, query, url, top_k, max_steps, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Query, rec.URL, rec.TopK, rec.MaxSteps, string(rec.State), rec.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*schemas.JobRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, query, url, top_k, max_steps, state, result, created_at, updated_at
		 FROM jobs WHERE id = $1`, id)

	var rec schemas.JobRecord
	var state string
	var result []byte
	err := row.Scan(&rec.ID, &rec.Query, &rec.URL, &rec.TopK, &rec.MaxSteps,
		&state, &result, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	rec.State = schemas.JobState(state)
	if len(result) > 0 {
		var payload schemas.ResultPayload
		if err := json.Unmarshal(result, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode stored result for %s: %w", id, err)
		}
		rec.Result = &payload
	}
	return &rec, nil
}

func (s *PostgresStore) UpdateState(ctx context.Context, id string, state schemas.JobState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = $2, updated_at = $3 WHERE id = $1`,
		id, string(state), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update job %s state: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetResult(ctx context.Context, id string, result *schemas.ResultPayload) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result for %s: %w", id, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET result = $2, state = $3, updated_at = $4 WHERE id = $1`,
		id, data, string(schemas.JobCompleted), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store result for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, id string, event schemas.StatusEvent) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("failed to encode event details: %w", err)
	}
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO job_events (job_id, event, details, created_at) VALUES ($1, $2, $3, $4)`,
		id, event.Event, details, ts)
	if err != nil {
		return fmt.Errorf("failed to append event for %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Events(ctx context.Context, id string) ([]schemas.StatusEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event, details, created_at FROM job_events WHERE job_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for %s: %w", id, err)
	}
	defer rows.Close()

	var events []schemas.StatusEvent
	for rows.Next() {
		var ev schemas.StatusEvent
		var details []byte
		if err := rows.Scan(&ev.Event, &details, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.JobID = id
		if len(details) > 0 {
			if err := json.Unmarshal(details, &ev.Details); err != nil {
				return nil, fmt.Errorf("failed to decode event details: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
