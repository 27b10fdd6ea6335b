package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eduanalytics/caaspp/internal/table"
	"github.com/eduanalytics/caaspp/pkg/adapter"
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Years.Count < 1 {
		errs = append(errs, fmt.Errorf("years.count must be at least 1, got %d", c.Years.Count))
	}
	if c.Years.Latest < 0 {
		errs = append(errs, fmt.Errorf("years.latest must not be negative, got %d", c.Years.Latest))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if _, err := c.LocatorConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := table.ParseDelimiter(c.Source.SubgroupsDelimiter); err != nil {
		errs = append(errs, fmt.Errorf("source.subgroups_delimiter: %w", err))
	}
	if _, err := table.ParseDelimiter(c.Source.TestsDelimiter); err != nil {
		errs = append(errs, fmt.Errorf("source.tests_delimiter: %w", err))
	}
	if c.Transport.Retries < 0 {
		errs = append(errs, fmt.Errorf("transport.retries must not be negative, got %d", c.Transport.Retries))
	}
	if err := c.Warehouse.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Index.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q (expected auto, text or json)", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Validate checks the warehouse target. The adapter registry is the
// source of truth for available types.
func (w *WarehouseConfig) Validate() error {
	if w.Type == "" {
		return fmt.Errorf("warehouse type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(w.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      w.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// Validate checks the index section.
func (c IndexConfig) Validate() error {
	switch strings.ToLower(c.Backend) {
	case IndexBackendNone:
		return nil
	case "", "sqlite":
	case "pgvector", "postgres":
		if c.DSN == "" {
			return errors.New("index.dsn is required for the pgvector backend")
		}
	default:
		return fmt.Errorf("unknown index.backend %q (expected sqlite, pgvector or none)", c.Backend)
	}
	if c.BatchSize < 0 {
		return fmt.Errorf("index.batch_size must not be negative, got %d", c.BatchSize)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("index.dimensions must not be negative, got %d", c.Dimensions)
	}
	return nil
}
