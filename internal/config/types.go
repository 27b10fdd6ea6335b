// Package config provides the configuration types for caaspp.
// This package is decoupled from CLI concerns: it holds the typed Config,
// its defaults and validation, and the conversions into component configs.
// Layered loading from file, environment and flags lives in
// internal/cli/config.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/eduanalytics/caaspp/internal/locator"
	"github.com/eduanalytics/caaspp/internal/metrics"
	"github.com/eduanalytics/caaspp/internal/transport"
	"github.com/eduanalytics/caaspp/internal/vectorstore"
	"github.com/eduanalytics/caaspp/pkg/adapter"
)

// Config holds all caaspp configuration.
type Config struct {
	Years   YearsConfig `koanf:"years"`
	Workers int         `koanf:"workers"`
	// PurgeUnlocatedYears deletes the facts of a year whose listing no
	// longer offers any archive.
	PurgeUnlocatedYears bool `koanf:"purge_unlocated_years"`

	Source     SourceConfig     `koanf:"source"`
	Transport  TransportConfig  `koanf:"transport"`
	Warehouse  WarehouseConfig  `koanf:"warehouse"`
	Index      IndexConfig      `koanf:"index"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	State      StateConfig      `koanf:"state"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
}

// YearsConfig selects the window of academic years.
type YearsConfig struct {
	// Latest is the newest year_key; 0 derives it from the clock.
	Latest int `koanf:"latest"`
	Count  int `koanf:"count"`
}

// SourceConfig describes where archives are published.
type SourceConfig struct {
	ListURL  string `koanf:"list_url"`
	BaseURL  string `koanf:"base_url"`
	Selector string `koanf:"selector"`
	// SelectorByYear overrides Selector for single years, keyed by year.
	SelectorByYear map[string]string `koanf:"selector_by_year"`

	SubgroupsURL       string `koanf:"subgroups_url"`
	SubgroupsDelimiter string `koanf:"subgroups_delimiter"`
	TestsURL           string `koanf:"tests_url"`
	TestsDelimiter     string `koanf:"tests_delimiter"`
}

// TransportConfig holds HTTP fetch settings.
type TransportConfig struct {
	Timeout    time.Duration `koanf:"timeout"`
	Retries    int           `koanf:"retries"`
	RetryDelay time.Duration `koanf:"retry_delay"`
	UserAgent  string        `koanf:"user_agent"`
}

// WarehouseConfig holds database target configuration.
type WarehouseConfig struct {
	Type string `koanf:"type"` // duckdb, postgres

	// File-based databases (DuckDB)
	Path string `koanf:"path"`

	// Network databases
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`

	Schema string `koanf:"schema"`

	// Additional driver-specific options
	Options map[string]string `koanf:"options"`

	// Params holds adapter-specific configuration (e.g., DuckDB extensions, settings)
	Params map[string]any `koanf:"params"`
}

// IndexConfig selects the entity index backend.
type IndexConfig struct {
	// Backend is sqlite, pgvector or none.
	Backend    string `koanf:"backend"`
	Name       string `koanf:"name"`
	DSN        string `koanf:"dsn"`
	Dimensions int    `koanf:"dimensions"`
	BatchSize  int    `koanf:"batch_size"`
}

// Enabled reports whether an index backend is configured.
func (c IndexConfig) Enabled() bool {
	return !strings.EqualFold(c.Backend, IndexBackendNone)
}

// EmbeddingsConfig configures the OpenAI-compatible embeddings endpoint.
type EmbeddingsConfig struct {
	APIKey     string `koanf:"api_key"`
	BaseURL    string `koanf:"base_url"`
	Model      string `koanf:"model"`
	Dimensions int    `koanf:"dimensions"`
}

// StateConfig locates the run ledger.
type StateConfig struct {
	Path string `koanf:"path"`
}

// MetricsConfig configures the Prometheus push.
type MetricsConfig struct {
	PushgatewayURL string `koanf:"pushgateway_url"`
	Job            string `koanf:"job"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // auto, text, json
}

// SelectorYears parses the per-year selector overrides.
func (s SourceConfig) SelectorYears() (map[int]string, error) {
	out := make(map[int]string, len(s.SelectorByYear))
	for k, rule := range s.SelectorByYear {
		year, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("invalid year %q in source.selector_by_year", k)
		}
		out[year] = rule
	}
	return out, nil
}

// LocatorConfig builds the locator settings.
func (c *Config) LocatorConfig() (locator.Config, error) {
	byYear, err := c.Source.SelectorYears()
	if err != nil {
		return locator.Config{}, err
	}
	sel, err := locator.NewVersioned(c.Source.Selector, byYear)
	if err != nil {
		return locator.Config{}, err
	}
	return locator.Config{
		ListURL:   c.Source.ListURL,
		BaseURL:   c.Source.BaseURL,
		Selectors: sel,
	}, nil
}

// TransportClientConfig builds the HTTP client settings.
func (c *Config) TransportClientConfig() transport.Config {
	return transport.Config{
		Timeout:    c.Transport.Timeout,
		Retries:    c.Transport.Retries,
		RetryDelay: c.Transport.RetryDelay,
		UserAgent:  c.Transport.UserAgent,
	}
}

// AdapterConfig converts the warehouse section for adapter.NewAdapter.
func (c *Config) AdapterConfig() adapter.Config {
	w := c.Warehouse
	return adapter.Config{
		Type:     strings.ToLower(w.Type),
		Path:     w.Path,
		Host:     w.Host,
		Port:     w.Port,
		Database: w.Database,
		Username: w.User,
		Password: w.Password,
		Schema:   w.Schema,
		Options:  w.Options,
		Params:   w.Params,
	}
}

// VectorConfig builds the vector store settings.
func (c *Config) VectorConfig() vectorstore.Config {
	dims := c.Index.Dimensions
	if dims == 0 {
		dims = c.Embeddings.Dimensions
	}
	return vectorstore.Config{
		Backend:    strings.ToLower(c.Index.Backend),
		Index:      c.Index.Name,
		DSN:        c.Index.DSN,
		Dimensions: dims,
	}
}

// EmbedderConfig builds the embeddings client settings.
func (c *Config) EmbedderConfig() vectorstore.EmbedderConfig {
	return vectorstore.EmbedderConfig{
		APIKey:     c.Embeddings.APIKey,
		BaseURL:    c.Embeddings.BaseURL,
		Model:      c.Embeddings.Model,
		Dimensions: c.Embeddings.Dimensions,
	}
}

// MetricsPushConfig builds the push settings.
func (c *Config) MetricsPushConfig() metrics.Config {
	return metrics.Config{
		PushgatewayURL: c.Metrics.PushgatewayURL,
		Job:            c.Metrics.Job,
	}
}
