package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
	CREATE TABLE IF NOT EXISTS plan_history (
		id              TEXT PRIMARY KEY,
		request_key     TEXT NOT NULL,
		start_lon       DOUBLE PRECISION NOT NULL,
		start_lat       DOUBLE PRECISION NOT NULL,
		end_lon         DOUBLE PRECISION NOT NULL,
		end_lat         DOUBLE PRECISION NOT NULL,
		candidate_count INTEGER NOT NULL,
		route_count     INTEGER NOT NULL,
		best_index      INTEGER NOT NULL,
		best_avg_pm25   DOUBLE PRECISION NOT NULL,
		duration_ms     BIGINT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS plan_history_created_at_idx ON plan_history (created_at DESC);
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL plan history repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the plan_history table when it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create plan_history schema: %w", err)
	}
	return nil
}

// Create stores a new record.
func (r *PostgresRepository) Create(ctx context.Context, record *PlanRecord) error {
	query := `
		INSERT INTO plan_history (
			id, request_key,
			start_lon, start_lat, end_lon, end_lat,
			candidate_count, route_count, best_index, best_avg_pm25,
			duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		record.ID,
		record.RequestKey,
		record.Start.Lon,
		record.Start.Lat,
		record.End.Lon,
		record.End.Lat,
		record.CandidateCount,
		record.RouteCount,
		record.BestIndex,
		record.BestAvgPM25,
		record.Duration.Milliseconds(),
		record.CreatedAt,
	)
	return err
}

// Get retrieves a record by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*PlanRecord, error) {
	query := `
		SELECT
			id, request_key,
			start_lon, start_lat, end_lon, end_lat,
			candidate_count, route_count, best_index, best_avg_pm25,
			duration_ms, created_at
		FROM plan_history
		WHERE id = $1
	`

	record, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return record, nil
}

// List returns records newest first.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*PlanRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT
			id, request_key,
			start_lon, start_lat, end_lon, end_lat,
			candidate_count, route_count, best_index, best_avg_pm25,
			duration_ms, created_at
		FROM plan_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*PlanRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanRecord(row pgx.Row) (*PlanRecord, error) {
	var (
		record     PlanRecord
		durationMS int64
	)

	err := row.Scan(
		&record.ID,
		&record.RequestKey,
		&record.Start.Lon,
		&record.Start.Lat,
		&record.End.Lon,
		&record.End.Lat,
		&record.CandidateCount,
		&record.RouteCount,
		&record.BestIndex,
		&record.BestAvgPM25,
		&durationMS,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Duration = time.Duration(durationMS) * time.Millisecond
	return &record, nil
}
