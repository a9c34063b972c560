package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/pricewise/pricewise/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scrape_jobs (
	task_id    TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS observations (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL REFERENCES scrape_jobs(task_id),
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status ON scrape_jobs(status);
CREATE INDEX IF NOT EXISTS idx_observations_task_id ON observations(task_id);
`

// NewPostgres connects a PostgresStore and applies the schema.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	s := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, postgresMigration); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: migrate")
	}
	return s, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.ScrapeJob) error {
	record, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO scrape_jobs (task_id, record, status) VALUES ($1, $2, $3)`,
		job.TaskID, record, string(job.Status),
	)
	return eris.Wrapf(err, "postgres: insert job %s", job.TaskID)
}

func (s *PostgresStore) GetJob(ctx context.Context, taskID string) (*model.ScrapeJob, error) {
	var record []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM scrape_jobs WHERE task_id = $1`, taskID,
	).Scan(&record)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: job %s", taskID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", taskID)
	}

	var job model.ScrapeJob
	if err := json.Unmarshal(record, &job); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal job %s", taskID)
	}
	return &job, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.ScrapeJob) error {
	record, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE scrape_jobs SET record = $1, status = $2, updated_at = now() WHERE task_id = $3`,
		record, string(job.Status), job.TaskID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.TaskID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", job.TaskID)
	}
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context) ([]model.ScrapeJob, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM scrape_jobs ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.ScrapeJob
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		var job model.ScrapeJob
		if err := json.Unmarshal(record, &job); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job")
		}
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}

func (s *PostgresStore) AppendObservations(ctx context.Context, taskID string, obs []model.CompetitorObservation) error {
	if len(obs) == 0 {
		return nil
	}
	for _, o := range obs {
		record, err := json.Marshal(o)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal observation")
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO observations (id, task_id, record) VALUES ($1, $2, $3)`,
			uuid.New().String(), taskID, record,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert observation for %s", taskID)
		}
	}
	return nil
}

func (s *PostgresStore) Observations(ctx context.Context, taskID string) ([]model.CompetitorObservation, error) {
	if _, err := s.GetJob(ctx, taskID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT record FROM observations WHERE task_id = $1 ORDER BY created_at`, taskID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: observations for %s", taskID)
	}
	defer rows.Close()

	var obs []model.CompetitorObservation
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		var o model.CompetitorObservation
		if err := json.Unmarshal(record, &o); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal observation")
		}
		obs = append(obs, o)
	}
	return obs, eris.Wrap(rows.Err(), "postgres: iterate observations")
}
