// Package engine runs the ingestion pipeline over a window of years:
// locate, fetch and parse each year's archives, replace the year's facts,
// then rebuild the entity index from the latest year.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eduanalytics/caaspp/internal/entityindex"
	"github.com/eduanalytics/caaspp/internal/facts"
	"github.com/eduanalytics/caaspp/internal/metrics"
	"github.com/eduanalytics/caaspp/internal/state"
	"github.com/eduanalytics/caaspp/internal/transport"
	"github.com/eduanalytics/caaspp/pkg/adapter"
)

// DefaultWorkers bounds concurrent archive downloads within a year.
const DefaultWorkers = 4

// Locator finds the archive URLs of a year.
type Locator interface {
	Locate(ctx context.Context, year int) ([]string, error)
}

// IndexBuilder rebuilds the entity index.
type IndexBuilder interface {
	Build(ctx context.Context, in entityindex.Inputs) (entityindex.Stats, error)
}

// Reference names the two flat reference archives fetched once per run.
type Reference struct {
	SubgroupsURL       string
	SubgroupsDelimiter rune
	TestsURL           string
	TestsDelimiter     rune
}

// Config holds engine configuration and collaborators.
type Config struct {
	Window  Window
	Workers int
	// PurgeUnlocatedYears deletes the prior facts of a year that locates no
	// archive. When false such a year keeps its data and is marked skipped.
	PurgeUnlocatedYears bool
	Reference           Reference

	Fetcher   transport.Fetcher
	Locator   Locator
	Warehouse adapter.Warehouse
	// Index is optional; without it the index build is skipped.
	Index IndexBuilder
	// Ledger is optional.
	Ledger state.Store
	// Metrics is optional.
	Metrics *metrics.Metrics
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Engine orchestrates one or more pipeline runs.
type Engine struct {
	window    Window
	workers   int
	purge     bool
	reference Reference

	fetcher   transport.Fetcher
	locator   Locator
	warehouse adapter.Warehouse
	loader    *facts.Loader
	index     IndexBuilder
	ledger    state.Store
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New validates cfg and creates an Engine. The warehouse must already be
// connected.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var errs []error
	if err := cfg.Window.Validate(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Fetcher == nil {
		errs = append(errs, errors.New("fetcher is required"))
	}
	if cfg.Locator == nil {
		errs = append(errs, errors.New("locator is required"))
	}
	if cfg.Warehouse == nil {
		errs = append(errs, errors.New("warehouse is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid engine config: %w", errors.Join(errs...))
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	ref := cfg.Reference
	if ref.SubgroupsDelimiter == 0 {
		ref.SubgroupsDelimiter = ','
	}
	if ref.TestsDelimiter == 0 {
		ref.TestsDelimiter = '^'
	}

	logger.Debug("initializing engine", slog.String("window", cfg.Window.String()), slog.Int("workers", workers))

	return &Engine{
		window:    cfg.Window,
		workers:   workers,
		purge:     cfg.PurgeUnlocatedYears,
		reference: ref,
		fetcher:   cfg.Fetcher,
		locator:   cfg.Locator,
		warehouse: cfg.Warehouse,
		loader:    facts.NewLoader(cfg.Warehouse, logger),
		index:     cfg.Index,
		ledger:    cfg.Ledger,
		metrics:   cfg.Metrics,
		logger:    logger,
	}, nil
}

// Window returns the configured year window.
func (e *Engine) Window() Window {
	return e.window
}
