package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/pricewise/pricewise/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Job records and
// observations are stored as JSON columns keyed by task ID.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path, configures WAL mode,
// and applies the schema.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scrape_jobs (
	task_id    TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS observations (
	id         TEXT PRIMARY KEY,
	task_id    TEXT NOT NULL REFERENCES scrape_jobs(task_id),
	record     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status ON scrape_jobs(status);
CREATE INDEX IF NOT EXISTS idx_observations_task_id ON observations(task_id);
`

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.ScrapeJob) error {
	record, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scrape_jobs (task_id, record, status) VALUES (?, ?, ?)`,
		job.TaskID, string(record), string(job.Status),
	)
	return eris.Wrapf(err, "sqlite: insert job %s", job.TaskID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, taskID string) (*model.ScrapeJob, error) {
	var record string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM scrape_jobs WHERE task_id = ?`, taskID,
	).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: job %s", taskID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", taskID)
	}

	var job model.ScrapeJob
	if err := json.Unmarshal([]byte(record), &job); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal job %s", taskID)
	}
	return &job, nil
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.ScrapeJob) error {
	record, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scrape_jobs SET record = ?, status = ?, updated_at = datetime('now') WHERE task_id = ?`,
		string(record), string(job.Status), job.TaskID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.TaskID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if affected == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: job %s", job.TaskID)
	}
	return nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context) ([]model.ScrapeJob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM scrape_jobs ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.ScrapeJob
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		var job model.ScrapeJob
		if err := json.Unmarshal([]byte(record), &job); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal job")
		}
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func (s *SQLiteStore) AppendObservations(ctx context.Context, taskID string, obs []model.CompetitorObservation) error {
	if len(obs) == 0 {
		return nil
	}
	if _, err := s.GetJob(ctx, taskID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	for _, o := range obs {
		record, err := json.Marshal(o)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal observation")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO observations (id, task_id, record) VALUES (?, ?, ?)`,
			uuid.New().String(), taskID, string(record),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert observation for %s", taskID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit observations")
}

func (s *SQLiteStore) Observations(ctx context.Context, taskID string) ([]model.CompetitorObservation, error) {
	if _, err := s.GetJob(ctx, taskID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM observations WHERE task_id = ? ORDER BY created_at`, taskID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: observations for %s", taskID)
	}
	defer rows.Close()

	var obs []model.CompetitorObservation
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		var o model.CompetitorObservation
		if err := json.Unmarshal([]byte(record), &o); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal observation")
		}
		obs = append(obs, o)
	}
	return obs, eris.Wrap(rows.Err(), "sqlite: iterate observations")
}
