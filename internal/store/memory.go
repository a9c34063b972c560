package store

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/pricewise/pricewise/internal/model"
)

// MemoryStore is the default in-process backend. Reads return deep copies so
// pollers never observe a record mid-mutation.
type MemoryStore struct {
	mu           sync.RWMutex
	jobs         map[string]*model.ScrapeJob
	observations map[string][]model.CompetitorObservation
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		jobs:         make(map[string]*model.ScrapeJob),
		observations: make(map[string][]model.CompetitorObservation),
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, job *model.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.TaskID]; exists {
		return eris.Errorf("memory: job %s already exists", job.TaskID)
	}
	s.jobs[job.TaskID] = job.Clone()
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, taskID string) (*model.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[taskID]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: job %s", taskID)
	}
	return job.Clone(), nil
}

func (s *MemoryStore) UpdateJob(_ context.Context, job *model.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.TaskID]; !ok {
		return eris.Wrapf(ErrNotFound, "memory: job %s", job.TaskID)
	}
	s.jobs[job.TaskID] = job.Clone()
	return nil
}

func (s *MemoryStore) ListJobs(_ context.Context) ([]model.ScrapeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobs := make([]model.ScrapeJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j.Clone())
	}
	return jobs, nil
}

func (s *MemoryStore) AppendObservations(_ context.Context, taskID string, obs []model.CompetitorObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[taskID]; !ok {
		return eris.Wrapf(ErrNotFound, "memory: job %s", taskID)
	}
	s.observations[taskID] = append(s.observations[taskID], obs...)
	return nil
}

func (s *MemoryStore) Observations(_ context.Context, taskID string) ([]model.CompetitorObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.jobs[taskID]; !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: job %s", taskID)
	}
	return append([]model.CompetitorObservation(nil), s.observations[taskID]...), nil
}

func (s *MemoryStore) Close() error { return nil }
