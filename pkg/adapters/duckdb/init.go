// Package duckdb provides a DuckDB warehouse adapter.
//
// This file registers the DuckDB adapter with the adapter registry.
// Import this package with a blank identifier to register the adapter:
//
//	import _ "github.com/eduanalytics/caaspp/pkg/adapters/duckdb"
package duckdb

import (
	"log/slog"

	"github.com/eduanalytics/caaspp/pkg/adapter"
)

func init() {
	adapter.Register("duckdb", func(logger *slog.Logger) adapter.Warehouse { return New(logger) })
}
