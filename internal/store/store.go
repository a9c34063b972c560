// Package store persists scrape jobs and their competitor observations.
// Backends hold no business logic; the orchestrator owns all job mutation.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/pricewise/pricewise/internal/model"
)

// ErrNotFound is returned when a task ID is unknown.
var ErrNotFound = eris.New("task not found")

// Store defines the persistence interface for scrape jobs and observations.
// GetJob returns a snapshot safe for the caller to hold; UpdateJob replaces
// the stored record wholesale.
type Store interface {
	CreateJob(ctx context.Context, job *model.ScrapeJob) error
	GetJob(ctx context.Context, taskID string) (*model.ScrapeJob, error)
	UpdateJob(ctx context.Context, job *model.ScrapeJob) error
	ListJobs(ctx context.Context) ([]model.ScrapeJob, error)

	AppendObservations(ctx context.Context, taskID string, obs []model.CompetitorObservation) error
	Observations(ctx context.Context, taskID string) ([]model.CompetitorObservation, error)

	Close() error
}
