// Package adapter defines the warehouse contract used by the fact loader.
//
// This package contains the public contract that all warehouse adapters must
// implement. Concrete adapter implementations are in pkg/adapters/
// subdirectories and register themselves with Register from init().
package adapter

import (
	"context"
	"fmt"
)

// Warehouse table names. Both live in Config.Schema.
const (
	YearTable = "dim_year"
	FactTable = "fact_scores"
)

// DefaultSchema is used when Config.Schema is empty.
const DefaultSchema = "analytics"

// Config holds configuration for connecting to a warehouse.
type Config struct {
	Type     string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
	Options  map[string]string
	Params   map[string]any
}

// SchemaName returns the configured schema or DefaultSchema.
func (c Config) SchemaName() string {
	if c.Schema == "" {
		return DefaultSchema
	}
	return c.Schema
}

// Year is one row of the year dimension.
type Year struct {
	Key   int
	Label string
}

// YearLabel renders the academic-year label for year_key, e.g. 2024 is
// "AY 2024-2025".
func YearLabel(year int) string {
	return fmt.Sprintf("AY %d-%d", year, year+1)
}

// RowSource streams rows for a bulk insert. Values must be returned in the
// column order passed to ReplaceYear. The method set matches
// pgx.CopyFromSource so a RowSource can be handed to COPY directly.
type RowSource interface {
	// Next advances to the next row; it returns false when done or on error.
	Next() bool
	// Values returns the current row.
	Values() ([]any, error)
	// Err returns the error, if any, that stopped iteration.
	Err() error
}

// Warehouse defines the interface that all warehouse adapters must implement.
type Warehouse interface {
	// Connect establishes a connection to the warehouse using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Migrate creates or upgrades the schema, year dimension and fact table.
	Migrate(ctx context.Context) error

	// EnsureYears inserts year dimension rows that do not exist yet.
	// Existing rows are never updated.
	EnsureYears(ctx context.Context, years []Year) error

	// DeleteYear removes every fact row of year and reports how many went.
	DeleteYear(ctx context.Context, year int) (int64, error)

	// ReplaceYear deletes the facts of year and bulk-inserts rows from src in
	// a single transaction. On any error, including one raised by src, the
	// delete is rolled back and the prior rows stay visible.
	ReplaceYear(ctx context.Context, year int, columns []string, src RowSource) (int64, error)

	// CountYear returns the number of fact rows stored for year.
	CountYear(ctx context.Context, year int) (int64, error)
}
