package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/eduanalytics/caaspp/internal/cli/config"
	intconfig "github.com/eduanalytics/caaspp/internal/config"
	"github.com/eduanalytics/caaspp/internal/engine"
	"github.com/eduanalytics/caaspp/internal/entityindex"
	"github.com/eduanalytics/caaspp/internal/locator"
	"github.com/eduanalytics/caaspp/internal/metrics"
	"github.com/eduanalytics/caaspp/internal/state"
	"github.com/eduanalytics/caaspp/internal/table"
	"github.com/eduanalytics/caaspp/internal/transport"
	"github.com/eduanalytics/caaspp/internal/vectorstore"
	"github.com/eduanalytics/caaspp/pkg/adapter"
	"github.com/spf13/cobra"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg    *config.Config
	Logger *slog.Logger

	closers []func() error
}

// NewCommandContext creates a CommandContext from the loaded configuration.
// Close must be called (typically via defer) to release what the open
// helpers acquired.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	return &CommandContext{
		Cfg:    getConfig(),
		Logger: config.GetLogger(cmd.Context()),
	}
}

// Close releases every resource opened through the context, newest first.
func (c *CommandContext) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *CommandContext) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise loads
// defaults and environment without flags.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		cfg = &config.Config{}
		intconfig.ApplyDefaults(cfg)
	}
	return cfg
}

// Window returns the configured year window.
func (c *CommandContext) Window() engine.Window {
	return engine.NewWindow(c.Cfg.Years.Latest, c.Cfg.Years.Count, time.Now())
}

// Fetcher creates the HTTP client.
func (c *CommandContext) Fetcher() *transport.Client {
	return transport.New(c.Cfg.TransportClientConfig(), c.Logger)
}

// Locator creates an archive locator on top of fetcher.
func (c *CommandContext) Locator(fetcher transport.Fetcher) (*locator.Locator, error) {
	lc, err := c.Cfg.LocatorConfig()
	if err != nil {
		return nil, err
	}
	return locator.New(lc, fetcher, c.Logger)
}

// OpenWarehouse connects to the configured warehouse and migrates it.
func (c *CommandContext) OpenWarehouse(ctx context.Context) (adapter.Warehouse, error) {
	acfg := c.Cfg.AdapterConfig()
	if acfg.Type == "duckdb" {
		if err := ensureParentDir(acfg.Path); err != nil {
			return nil, fmt.Errorf("failed to create warehouse directory: %w", err)
		}
	}

	w, err := adapter.NewAdapter(acfg, c.Logger)
	if err != nil {
		return nil, err
	}
	if err := w.Connect(ctx, acfg); err != nil {
		return nil, fmt.Errorf("failed to connect to %s warehouse: %w", acfg.Type, err)
	}
	c.onClose(w.Close)

	if err := w.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate warehouse: %w", err)
	}
	return w, nil
}

// OpenLedger opens and migrates the run ledger.
func (c *CommandContext) OpenLedger(ctx context.Context) (*state.SQLiteStore, error) {
	if err := ensureParentDir(c.Cfg.State.Path); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	store, err := state.OpenStore(ctx, c.Cfg.State.Path, c.Logger)
	if err != nil {
		return nil, err
	}
	c.onClose(store.Close)
	return store, nil
}

// OpenVectorStore opens the configured vector store. It returns nil when the
// index backend is disabled.
func (c *CommandContext) OpenVectorStore(ctx context.Context) (vectorstore.Store, error) {
	if !c.Cfg.Index.Enabled() {
		return nil, nil
	}

	var embedder vectorstore.Embedder
	if c.Cfg.Embeddings.APIKey != "" {
		e, err := vectorstore.NewOpenAIEmbedder(c.Cfg.EmbedderConfig())
		if err != nil {
			return nil, err
		}
		embedder = e
	}

	vcfg := c.Cfg.VectorConfig()
	if vcfg.Backend == "" || vcfg.Backend == "sqlite" {
		if err := ensureParentDir(vcfg.DSN); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}
	store, err := vectorstore.Open(ctx, vcfg, embedder, c.Logger)
	if err != nil {
		return nil, err
	}
	c.onClose(store.Close)
	return store, nil
}

// OpenIndex wraps the vector store in an index builder. It returns nil when
// the index backend is disabled.
func (c *CommandContext) OpenIndex(ctx context.Context) (*entityindex.Builder, error) {
	store, err := c.OpenVectorStore(ctx)
	if err != nil || store == nil {
		return nil, err
	}
	return entityindex.NewBuilder(store, c.Cfg.Index.BatchSize, c.Logger), nil
}

// EngineOptions selects the optional collaborators of an engine.
type EngineOptions struct {
	SkipIndex bool
	Metrics   *metrics.Metrics
}

// NewEngine wires every component from the configuration.
func (c *CommandContext) NewEngine(ctx context.Context, opts EngineOptions) (*engine.Engine, error) {
	fetcher := c.Fetcher()
	loc, err := c.Locator(fetcher)
	if err != nil {
		return nil, err
	}
	warehouse, err := c.OpenWarehouse(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := c.OpenLedger(ctx)
	if err != nil {
		return nil, err
	}

	ecfg := engine.Config{
		Window:              c.Window(),
		Workers:             c.Cfg.Workers,
		PurgeUnlocatedYears: c.Cfg.PurgeUnlocatedYears,
		Fetcher:             fetcher,
		Locator:             loc,
		Warehouse:           warehouse,
		Ledger:              ledger,
		Metrics:             opts.Metrics,
		Logger:              c.Logger,
	}
	ecfg.Reference, err = c.reference()
	if err != nil {
		return nil, err
	}

	if !opts.SkipIndex {
		builder, err := c.OpenIndex(ctx)
		if err != nil {
			return nil, err
		}
		// A nil *Builder must not become a non-nil interface.
		if builder != nil {
			ecfg.Index = builder
		}
	}

	return engine.New(ecfg)
}

func (c *CommandContext) reference() (engine.Reference, error) {
	subDelim, err := table.ParseDelimiter(c.Cfg.Source.SubgroupsDelimiter)
	if err != nil {
		return engine.Reference{}, err
	}
	testDelim, err := table.ParseDelimiter(c.Cfg.Source.TestsDelimiter)
	if err != nil {
		return engine.Reference{}, err
	}
	return engine.Reference{
		SubgroupsURL:       c.Cfg.Source.SubgroupsURL,
		SubgroupsDelimiter: subDelim,
		TestsURL:           c.Cfg.Source.TestsURL,
		TestsDelimiter:     testDelim,
	}, nil
}

// ensureParentDir creates the directory holding a database file.
func ensureParentDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0750)
}
