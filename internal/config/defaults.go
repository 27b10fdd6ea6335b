package config

import (
	"github.com/eduanalytics/caaspp/internal/engine"
	"github.com/eduanalytics/caaspp/internal/entityindex"
	"github.com/eduanalytics/caaspp/internal/locator"
	"github.com/eduanalytics/caaspp/internal/transport"
	"github.com/eduanalytics/caaspp/internal/vectorstore"
	"github.com/eduanalytics/caaspp/pkg/adapter"
)

// Default configuration values.
const (
	DefaultWarehouseType  = "duckdb"
	DefaultWarehousePath  = ".caaspp/warehouse.duckdb"
	DefaultStatePath      = ".caaspp/state.db"
	DefaultIndexBackend   = "sqlite"
	DefaultIndexPath      = ".caaspp/index.db"
	DefaultSubgroupsDelim = "comma"
	DefaultTestsDelim     = "caret"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "auto"
	DefaultMetricsJob     = "caaspp_ingest"
	DefaultPostgresPort   = 5432
	IndexBackendNone      = "none"
)

// Defaults returns the lowest configuration layer as a flat key map.
func Defaults() map[string]any {
	return map[string]any{
		"years.latest":               0,
		"years.count":                engine.DefaultYears,
		"workers":                    engine.DefaultWorkers,
		"purge_unlocated_years":      false,
		"source.list_url":            locator.DefaultListURL,
		"source.base_url":            locator.DefaultBaseURL,
		"source.selector":            locator.RuleCombined,
		"source.subgroups_delimiter": DefaultSubgroupsDelim,
		"source.tests_delimiter":     DefaultTestsDelim,
		"transport.timeout":          transport.DefaultTimeout,
		"transport.retries":          transport.DefaultRetries,
		"transport.retry_delay":      transport.DefaultRetryDelay,
		"transport.user_agent":       transport.DefaultUserAgent,
		"warehouse.type":             DefaultWarehouseType,
		"warehouse.path":             DefaultWarehousePath,
		"warehouse.schema":           adapter.DefaultSchema,
		"index.backend":              DefaultIndexBackend,
		"index.name":                 vectorstore.DefaultIndex,
		"index.dsn":                  DefaultIndexPath,
		"index.batch_size":           entityindex.DefaultBatchSize,
		"embeddings.model":           vectorstore.DefaultEmbeddingModel,
		"state.path":                 DefaultStatePath,
		"metrics.job":                DefaultMetricsJob,
		"log.level":                  DefaultLogLevel,
		"log.format":                 DefaultLogFormat,
	}
}

// ApplyDefaults fills zero values left by a partial configuration.
func ApplyDefaults(c *Config) {
	if c == nil {
		return
	}
	if c.Years.Count == 0 {
		c.Years.Count = engine.DefaultYears
	}
	if c.Workers == 0 {
		c.Workers = engine.DefaultWorkers
	}
	if c.Source.Selector == "" {
		c.Source.Selector = locator.RuleCombined
	}
	if c.Source.SubgroupsDelimiter == "" {
		c.Source.SubgroupsDelimiter = DefaultSubgroupsDelim
	}
	if c.Source.TestsDelimiter == "" {
		c.Source.TestsDelimiter = DefaultTestsDelim
	}
	if c.Index.Backend == "" {
		c.Index.Backend = DefaultIndexBackend
	}
	if c.Index.Name == "" {
		c.Index.Name = vectorstore.DefaultIndex
	}
	if c.Index.BatchSize == 0 {
		c.Index.BatchSize = entityindex.DefaultBatchSize
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = DefaultMetricsJob
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	ApplyWarehouseDefaults(&c.Warehouse)
}

// ApplyWarehouseDefaults applies type-specific defaults to the warehouse target.
func ApplyWarehouseDefaults(w *WarehouseConfig) {
	if w == nil {
		return
	}
	if w.Type == "" {
		w.Type = DefaultWarehouseType
	}
	if w.Schema == "" {
		w.Schema = adapter.DefaultSchema
	}
	if w.Type == "postgres" && w.Port == 0 {
		w.Port = DefaultPostgresPort
	}
}
