package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// BaseSQLAdapter provides common database/sql functionality for adapters.
// Embed this struct in concrete adapter implementations to get standard
// Close, EnsureYears, DeleteYear and CountYear implementations.
type BaseSQLAdapter struct {
	DB     *sql.DB
	Cfg    Config
	Logger *slog.Logger

	// Placeholder renders the n-th (1-based) bind parameter. Nil means "?".
	Placeholder func(n int) string
}

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing database connection")
		}
		return b.DB.Close()
	}
	return nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	_, err := b.DB.ExecContext(ctx, sqlStr)
	if err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// Table returns the quoted, schema-qualified name of a warehouse table.
func (b *BaseSQLAdapter) Table(name string) string {
	return QuoteIdent(b.Cfg.SchemaName()) + "." + QuoteIdent(name)
}

// QuoteIdent double-quotes an identifier for Postgres and DuckDB.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (b *BaseSQLAdapter) param(n int) string {
	if b.Placeholder == nil {
		return "?"
	}
	return b.Placeholder(n)
}

// EnsureYears inserts missing year dimension rows in one transaction.
func (b *BaseSQLAdapter) EnsureYears(ctx context.Context, years []Year) error {
	if b.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	if len(years) == 0 {
		return nil
	}

	//nolint:gosec // table name is quoted, values are bound
	stmt := fmt.Sprintf("INSERT INTO %s (year_key, label) VALUES (%s, %s) ON CONFLICT (year_key) DO NOTHING",
		b.Table(YearTable), b.param(1), b.param(2))

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, y := range years {
		if _, err := tx.ExecContext(ctx, stmt, y.Key, y.Label); err != nil {
			return fmt.Errorf("failed to upsert year %d: %w", y.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit year dimension: %w", err)
	}
	return nil
}

// DeleteYear removes every fact row for year outside of any load.
func (b *BaseSQLAdapter) DeleteYear(ctx context.Context, year int) (int64, error) {
	if b.DB == nil {
		return 0, fmt.Errorf("database connection not established")
	}
	res, err := b.DB.ExecContext(ctx, b.DeleteYearSQL(), year)
	if err != nil {
		return 0, fmt.Errorf("failed to delete facts for %d: %w", year, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteYearSQL is the year-scoped delete shared by DeleteYear and the
// adapters' ReplaceYear.
func (b *BaseSQLAdapter) DeleteYearSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE year_key = %s", b.Table(FactTable), b.param(1))
}

// CountYear returns the number of fact rows for year.
func (b *BaseSQLAdapter) CountYear(ctx context.Context, year int) (int64, error) {
	if b.DB == nil {
		return 0, fmt.Errorf("database connection not established")
	}
	//nolint:gosec // table name is quoted
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE year_key = %s", b.Table(FactTable), b.param(1))
	var n int64
	if err := b.DB.QueryRowContext(ctx, q, year).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count facts for %d: %w", year, err)
	}
	return n, nil
}
