package cmd

import (
	"context"

	"fsindex/internal/config"
	"fsindex/internal/crawler"
	"fsindex/internal/indexer"
	"fsindex/internal/monitor"
	"fsindex/internal/pipeline"
	"fsindex/internal/store"
)

// engine bundles the wired write path: config, store, pipeline, indexer.
// Read-only commands open just the store via openReadSide instead.
type engine struct {
	cfg  *config.Config
	st   *store.Store
	pipe *pipeline.Pipeline
	idx  *indexer.Indexer
}

func newEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateRoot(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureIndexDir(); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.IndexPath)
	if err != nil {
		return nil, err
	}

	pipe := pipeline.New(st, pipeline.Config{
		QueueCapacity: cfg.QueueCapacity,
		BatchSize:     cfg.BatchSize,
	})

	idx := indexer.New(cfg.RootDir, st, pipe, indexer.Config{
		Workers:    cfg.Workers,
		Order:      traversalOrder(cfg),
		SkipHidden: cfg.SkipHidden,
		PathPrefix: cfg.PathPrefix(),
		PathMode:   cfg.PathMode,
		PreCount:   true,
	})

	return &engine{cfg: cfg, st: st, pipe: pipe, idx: idx}, nil
}

// Close flushes pending writes and releases the store. Safe to call after a
// failed run.
func (e *engine) Close() {
	e.pipe.Close()
	_ = e.st.Close()
}

func (e *engine) newMonitor() *monitor.Monitor {
	return monitor.New(e.cfg.RootDir, e.st, e.pipe, monitor.Config{
		Debounce:          e.cfg.DebounceInterval,
		AggregationWindow: e.cfg.AggregationWindow,
		ReconcileInterval: e.cfg.ReconcileInterval,
		SkipHidden:        e.cfg.SkipHidden,
		PathPrefix:        e.cfg.PathPrefix(),
		CrawlWorkers:      e.cfg.Workers,
		Order:             traversalOrder(e.cfg),
	})
}

func traversalOrder(cfg *config.Config) crawler.Order {
	if cfg.TraversalOrder == config.OrderDepth {
		return crawler.OrderDepth
	}
	return crawler.OrderBreadth
}

// openReadSide opens just the store for query-only commands. These work
// without a reachable root directory; an index built elsewhere is still
// queryable.
func openReadSide(ctx context.Context) (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(ctx, cfg.IndexPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}
