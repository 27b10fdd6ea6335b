// Package duckdb provides a DuckDB warehouse adapter.
package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"sort"

	"github.com/eduanalytics/caaspp/pkg/adapter"
	"github.com/marcboeker/go-duckdb"
)

// Adapter implements the adapter.Warehouse interface for DuckDB.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new DuckDB adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger},
	}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "duckdb"
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" as the path for an in-memory database.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	params, err := ParseParams(cfg.Params)
	if err != nil {
		return err
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.DB = db
	a.Cfg = cfg

	if err := a.applyParams(ctx, params); err != nil {
		_ = db.Close()
		a.DB = nil
		return err
	}
	return nil
}

func (a *Adapter) applyParams(ctx context.Context, p *Params) error {
	for _, ext := range p.Extensions {
		if err := a.Exec(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			return fmt.Errorf("failed to load extension %s: %w", ext, err)
		}
	}

	keys := make([]string, 0, len(p.Settings))
	for k := range p.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := a.Exec(ctx, fmt.Sprintf("SET %s = '%s'", k, p.Settings[k])); err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", k, err)
		}
	}
	return nil
}

// schemaStatements is the warehouse DDL. goose has no DuckDB dialect, so the
// statements are idempotent and applied on every Migrate.
func (a *Adapter) schemaStatements() []string {
	return []string{
		"CREATE SCHEMA IF NOT EXISTS " + adapter.QuoteIdent(a.Cfg.SchemaName()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			year_key INTEGER PRIMARY KEY,
			label    VARCHAR NOT NULL
		)`, a.Table(adapter.YearTable)),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			year_key           INTEGER NOT NULL,
			test_id            VARCHAR NOT NULL,
			subgroup           VARCHAR,
			grade              VARCHAR,
			tested             BIGINT,
			tested_with_scores BIGINT,
			mean_scale_score   DOUBLE,
			pct_exceeded       DOUBLE,
			cnt_exceeded       BIGINT,
			pct_met            DOUBLE,
			cnt_met            BIGINT,
			pct_met_and_above  DOUBLE,
			cnt_met_and_above  BIGINT,
			pct_nearly_met     DOUBLE,
			cnt_nearly_met     BIGINT,
			pct_not_met        DOUBLE,
			cnt_not_met        BIGINT,
			county_code        VARCHAR,
			district_code      VARCHAR,
			school_code        VARCHAR,
			cds_code           VARCHAR,
			county_name        VARCHAR,
			district_name      VARCHAR,
			school_name        VARCHAR
		)`, a.Table(adapter.FactTable)),
	}
}

// Migrate creates the schema and warehouse tables if they are missing.
func (a *Adapter) Migrate(ctx context.Context) error {
	if a.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	for _, stmt := range a.schemaStatements() {
		if err := a.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate warehouse: %w", err)
		}
	}
	return nil
}

// ReplaceYear deletes the year's facts and appends src through a DuckDB
// Appender, both inside one explicit transaction on a dedicated connection.
func (a *Adapter) ReplaceYear(ctx context.Context, year int, columns []string, src adapter.RowSource) (n int64, err error) {
	if a.DB == nil {
		return 0, fmt.Errorf("database connection not established")
	}
	if err := a.checkColumns(ctx, columns); err != nil {
		return 0, err
	}

	conn, err := a.DB.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN TRANSACTION"); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if _, rbErr := conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); rbErr != nil {
				a.Logger.Warn("rollback failed", slog.Int("year", year), slog.String("error", rbErr.Error()))
			}
		}
	}()

	if _, err = conn.ExecContext(ctx, a.DeleteYearSQL(), year); err != nil {
		return 0, fmt.Errorf("failed to delete facts for %d: %w", year, err)
	}

	err = conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(driver.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		app, err := duckdb.NewAppenderFromConn(dc, a.Cfg.SchemaName(), adapter.FactTable)
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}

		for src.Next() {
			if err := ctx.Err(); err != nil {
				_ = app.Close()
				return err
			}
			vals, err := src.Values()
			if err != nil {
				_ = app.Close()
				return err
			}
			row := make([]driver.Value, len(vals))
			for i, v := range vals {
				row[i] = v
			}
			if err := app.AppendRow(row...); err != nil {
				_ = app.Close()
				return fmt.Errorf("failed to append row %d: %w", n+1, err)
			}
			n++
		}
		if err := src.Err(); err != nil {
			_ = app.Close()
			return err
		}
		return app.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append facts for %d: %w", year, err)
	}

	if _, err = conn.ExecContext(ctx, "COMMIT"); err != nil {
		return 0, fmt.Errorf("failed to commit facts for %d: %w", year, err)
	}

	a.Logger.Debug("replaced year", slog.Int("year", year), slog.Int64("inserted", n))
	return n, nil
}

// checkColumns guards the appender, which is positional: the caller's column
// list must match the table definition exactly.
func (a *Adapter) checkColumns(ctx context.Context, columns []string) error {
	rows, err := a.DB.QueryContext(ctx, `SELECT column_name FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ? ORDER BY ordinal_position`,
		a.Cfg.SchemaName(), adapter.FactTable)
	if err != nil {
		return fmt.Errorf("failed to read fact table columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var have []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}
		have = append(have, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(have) != len(columns) {
		return fmt.Errorf("fact table has %d columns, load supplies %d", len(have), len(columns))
	}
	for i := range have {
		if have[i] != columns[i] {
			return fmt.Errorf("fact table column %d is %s, load supplies %s", i+1, have[i], columns[i])
		}
	}
	return nil
}

// Ensure Adapter implements adapter.Warehouse interface
var _ adapter.Warehouse = (*Adapter)(nil)
