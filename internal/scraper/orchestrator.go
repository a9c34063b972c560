// Package scraper orchestrates competitor scrape jobs: it fans a job out
// across store workers under a bounded pool, matches the yielded raw
// observations against the catalog, and tracks per-store progress and
// failures on a single job record.
package scraper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pricewise/pricewise/internal/matcher"
	"github.com/pricewise/pricewise/internal/model"
	"github.com/pricewise/pricewise/internal/resilience"
	"github.com/pricewise/pricewise/internal/store"
)

// ErrNotFound is returned for unknown task IDs.
var ErrNotFound = store.ErrNotFound

// ErrNotReady is returned when results are requested before the job reached
// a terminal state. Failed jobs keep their partial results retrievable.
var ErrNotReady = eris.New("job not finished")

// Worker is the collaborator boundary to one competitor store: anything that
// can yield zero or more raw candidate observations for a search query.
type Worker interface {
	Store() string
	Fetch(ctx context.Context, query string, limit int) ([]model.RawObservation, error)
}

// Config tunes the orchestrator.
type Config struct {
	// Concurrency bounds how many store workers run at once. Fan-out is
	// never unbounded: target sites rate-limit, and so do we.
	Concurrency int
	// WorkerTimeout is the per-store time budget. Exceeding it is a
	// per-store failure, not a job-wide one.
	WorkerTimeout time.Duration
	// MaxPerStore is the default observation cap per store when the caller
	// does not supply one.
	MaxPerStore int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.WorkerTimeout <= 0 {
		c.WorkerTimeout = 2 * time.Minute
	}
	if c.MaxPerStore <= 0 {
		c.MaxPerStore = 15
	}
	return c
}

// Orchestrator runs scrape jobs. The job record is the only shared mutable
// state; every mutation goes through mutateJob under a single mutex, and
// readers get consistent snapshots from the store without blocking.
type Orchestrator struct {
	store   store.Store
	matcher *matcher.Matcher
	workers []Worker
	catalog []model.CatalogItem
	cfg     Config

	mu sync.Mutex // serializes read-modify-write of job records
}

// New creates an Orchestrator over a fixed worker set and catalog.
func New(st store.Store, m *matcher.Matcher, workers []Worker, catalog []model.CatalogItem, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:   st,
		matcher: m,
		workers: workers,
		catalog: catalog,
		cfg:     cfg.withDefaults(),
	}
}

// Submit registers a new scrape job and starts it in the background.
// The job outlives the caller's context; progress is polled via Progress.
func (o *Orchestrator) Submit(ctx context.Context, targetProducts []string, maxPerStore int) (string, error) {
	if len(targetProducts) == 0 {
		return "", eris.New("scraper: no target products")
	}
	if len(o.workers) == 0 {
		return "", eris.New("scraper: no store workers configured")
	}
	if maxPerStore <= 0 {
		maxPerStore = o.cfg.MaxPerStore
	}

	stores := make([]string, len(o.workers))
	for i, w := range o.workers {
		stores[i] = w.Store()
	}

	taskID := uuid.New().String()
	job := &model.ScrapeJob{
		TaskID:       taskID,
		Status:       model.JobStatusPending,
		TargetStores: stores,
		TotalStores:  len(stores),
		Errors:       []string{},
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return "", eris.Wrap(err, "scraper: create job")
	}

	go o.run(context.WithoutCancel(ctx), taskID, targetProducts, maxPerStore)
	return taskID, nil
}

// Progress returns the latest known state of a job. Never blocks on the
// job's workers.
func (o *Orchestrator) Progress(ctx context.Context, taskID string) (*model.ScrapeJob, error) {
	return o.store.GetJob(ctx, taskID)
}

// Results returns the matched observations of a terminal job. Jobs that
// ended failed expose whatever was collected before the failure.
func (o *Orchestrator) Results(ctx context.Context, taskID string) ([]model.CompetitorObservation, error) {
	job, err := o.store.GetJob(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !job.Status.Terminal() {
		return nil, eris.Wrapf(ErrNotReady, "scraper: job %s is %s", taskID, job.Status)
	}
	return o.store.Observations(ctx, taskID)
}

// run executes the fan-out. Store workers run concurrently under a bounded
// pool; one worker's failure never aborts the job.
func (o *Orchestrator) run(ctx context.Context, taskID string, targets []string, maxPerStore int) {
	log := zap.L().With(
		zap.String("component", "scraper.orchestrator"),
		zap.String("task_id", taskID),
	)

	now := time.Now().UTC()
	if err := o.mutateJob(ctx, taskID, func(j *model.ScrapeJob) {
		j.Status = model.JobStatusRunning
		j.StartedAt = &now
	}); err != nil {
		log.Error("failed to mark job running", zap.Error(err))
		return
	}

	// Deduplication set for the whole job, keyed by store and product URL.
	var seenMu sync.Mutex
	seen := make(map[string]struct{})

	var succeeded, fatal int
	var countMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for _, w := range o.workers {
		g.Go(func() error {
			wLog := log.With(zap.String("store", w.Store()))

			// Best-effort display only: workers run concurrently, so this
			// names a recently active store, not an ordering.
			_ = o.mutateJob(gctx, taskID, func(j *model.ScrapeJob) {
				j.CurrentStore = w.Store()
			})

			wctx, cancel := context.WithTimeout(gctx, o.cfg.WorkerTimeout)
			matched, err := o.scrapeStore(wctx, w, targets, maxPerStore, seen, &seenMu)
			cancel()

			if err != nil {
				wLog.Warn("store scrape failed", zap.Error(err))
				countMu.Lock()
				if !resilience.IsTransient(err) {
					fatal++
				}
				countMu.Unlock()
				if mErr := o.mutateJob(gctx, taskID, func(j *model.ScrapeJob) {
					j.Errors = append(j.Errors, fmt.Sprintf("%s: %v", w.Store(), err))
					j.CompletedStores++
				}); mErr != nil {
					wLog.Error("failed to record store failure", zap.Error(mErr))
				}
				return nil // isolate per-store failures
			}

			if len(matched) > 0 {
				if err := o.store.AppendObservations(gctx, taskID, matched); err != nil {
					wLog.Error("failed to persist observations", zap.Error(err))
					// ProductsFound must never exceed what Results can
					// return, so unpersisted matches count as a store
					// failure instead.
					if mErr := o.mutateJob(gctx, taskID, func(j *model.ScrapeJob) {
						j.Errors = append(j.Errors, fmt.Sprintf("%s: persist observations: %v", w.Store(), err))
						j.CompletedStores++
					}); mErr != nil {
						wLog.Error("failed to record persistence failure", zap.Error(mErr))
					}
					return nil
				}
			}

			countMu.Lock()
			succeeded++
			countMu.Unlock()

			if mErr := o.mutateJob(gctx, taskID, func(j *model.ScrapeJob) {
				j.CompletedStores++
				j.ProductsFound += len(matched)
			}); mErr != nil {
				wLog.Error("failed to record store completion", zap.Error(mErr))
			}

			wLog.Info("store scrape complete", zap.Int("matched", len(matched)))
			return nil
		})
	}

	_ = g.Wait()

	done := time.Now().UTC()
	final := model.JobStatusCompleted
	// Only a clean sweep of non-transient failures marks the job failed;
	// partial results stay retrievable either way.
	if succeeded == 0 && fatal == len(o.workers) {
		final = model.JobStatusFailed
	}

	if err := o.mutateJob(ctx, taskID, func(j *model.ScrapeJob) {
		j.Status = final
		j.CurrentStore = ""
		j.CompletedAt = &done
	}); err != nil {
		log.Error("failed to finalize job", zap.Error(err))
		return
	}

	log.Info("scrape job finished",
		zap.String("status", string(final)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(o.workers)-succeeded),
	)
}

// scrapeStore fetches every target query from one store and matches the raw
// candidates against the whole catalog. A raw observation is kept once, for
// its best-matching catalog item.
func (o *Orchestrator) scrapeStore(ctx context.Context, w Worker, targets []string, maxPerStore int, seen map[string]struct{}, seenMu *sync.Mutex) ([]model.CompetitorObservation, error) {
	var matched []model.CompetitorObservation

	for _, target := range targets {
		raws, err := w.Fetch(ctx, target, maxPerStore)
		if err != nil {
			return nil, eris.Wrapf(err, "fetch %q", target)
		}

		for _, raw := range raws {
			key := w.Store() + "|" + raw.ProductURL
			seenMu.Lock()
			_, dup := seen[key]
			if !dup {
				seen[key] = struct{}{}
			}
			seenMu.Unlock()
			if dup {
				continue
			}

			if obs, ok := o.matchCatalog(raw); ok {
				matched = append(matched, obs)
			}
		}
	}
	return matched, nil
}

// matchCatalog evaluates one raw observation against every catalog item and
// keeps the best accepted match.
func (o *Orchestrator) matchCatalog(raw model.RawObservation) (model.CompetitorObservation, bool) {
	var best matcher.Result
	var bestItem model.CatalogItem
	found := false

	for _, item := range o.catalog {
		res := o.matcher.Match(item.Name, item.Category, raw.Title)
		if !res.Matched {
			continue
		}
		if !found || res.Score > best.Score {
			best = res
			bestItem = item
			found = true
		}
	}
	if !found {
		return model.CompetitorObservation{}, false
	}

	return model.CompetitorObservation{
		ProductID:       bestItem.ID,
		StoreName:       raw.StoreName,
		Title:           raw.Title,
		Price:           raw.Price,
		Currency:        raw.Currency,
		Brand:           raw.Brand,
		ProductURL:      raw.ProductURL,
		InStock:         raw.InStock,
		ScrapedAt:       raw.ScrapedAt,
		MatchScore:      best.Score,
		MatchConfidence: model.ConfidenceForScore(best.Score),
		MatchReasoning:  best.Reasoning,
	}, true
}

// mutateJob performs a serialized read-modify-write of one job record.
func (o *Orchestrator) mutateJob(ctx context.Context, taskID string, fn func(*model.ScrapeJob)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	job, err := o.store.GetJob(ctx, taskID)
	if err != nil {
		return err
	}
	fn(job)
	return o.store.UpdateJob(ctx, job)
}
