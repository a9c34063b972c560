package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pricewise/pricewise/internal/batch"
	"github.com/pricewise/pricewise/internal/catalog"
	"github.com/pricewise/pricewise/internal/feed"
	"github.com/pricewise/pricewise/internal/matcher"
	"github.com/pricewise/pricewise/internal/model"
	"github.com/pricewise/pricewise/internal/optimizer"
	"github.com/pricewise/pricewise/internal/scraper"
	"github.com/pricewise/pricewise/internal/store"
)

// appEnv holds the initialized store and engines shared by the serve,
// scrape, and optimize commands.
type appEnv struct {
	Store     store.Store
	Catalog   []model.CatalogItem
	Orch      *scraper.Orchestrator
	Optimizer *optimizer.Optimizer
	Batch     *batch.Coordinator
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore builds the persistence backend selected in config.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up the store, catalog, store workers, and engines. Callers
// should defer env.Close().
func initEnv(ctx context.Context, catalogPath string) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	var items []model.CatalogItem
	if catalogPath != "" {
		items, err = catalog.Load(catalogPath)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	workers, err := feed.LoadRegistry(cfg.Scrape.StoresFile)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	orch := scraper.New(st, matcher.New(), workers, items, scraper.Config{
		Concurrency:   cfg.Scrape.Concurrency,
		WorkerTimeout: cfg.Scrape.WorkerTimeout(),
		MaxPerStore:   cfg.Scrape.MaxProductsPerStore,
	})

	opt := optimizer.New(optimizer.Config{
		BaseVolume:         cfg.Optimizer.BaseVolume,
		ElasticityBase:     cfg.Optimizer.ElasticityBase,
		CategoryElasticity: cfg.Optimizer.CategoryElasticity,
		MoveFraction:       cfg.Optimizer.MoveFraction,
		Rates:              cfg.Optimizer.Rates,
	})

	zap.L().Info("environment ready",
		zap.String("store_driver", cfg.Store.Driver),
		zap.Int("catalog_items", len(items)),
		zap.Int("store_workers", len(workers)),
	)

	return &appEnv{
		Store:     st,
		Catalog:   items,
		Orch:      orch,
		Optimizer: opt,
		Batch:     batch.New(opt, cfg.Batch.MaxConcurrentProducts),
	}, nil
}
