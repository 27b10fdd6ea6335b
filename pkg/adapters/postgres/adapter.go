// Package postgres provides a PostgreSQL warehouse adapter.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/eduanalytics/caaspp/pkg/adapter"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Adapter implements the adapter.Warehouse interface for PostgreSQL.
type Adapter struct {
	adapter.BaseSQLAdapter
}

// New creates a new PostgreSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		BaseSQLAdapter: adapter.BaseSQLAdapter{Logger: logger, Placeholder: placeholder},
	}
}

func placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "postgres"
}

// Connect establishes a connection to PostgreSQL.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	dsn := buildPostgresDSN(cfg)

	a.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.DB = db
	a.Cfg = cfg
	return nil
}

// buildPostgresDSN constructs a key=value PostgreSQL connection string. The
// warehouse schema is set as search_path so migrations create their tables
// there.
func buildPostgresDSN(cfg adapter.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if cfg.Options != nil {
		if mode, ok := cfg.Options["sslmode"]; ok {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s search_path=%s",
		host, port, dsnValue(cfg.Database), sslmode, dsnValue(cfg.SchemaName()))

	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", dsnValue(cfg.Username))
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", dsnValue(cfg.Password))
	}
	if name, ok := cfg.Options["application_name"]; ok {
		dsn += fmt.Sprintf(" application_name=%s", dsnValue(name))
	}

	return dsn
}

// dsnValue quotes a value that libpq would otherwise split or misread.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Migrate creates the warehouse schema and applies the embedded migrations.
func (a *Adapter) Migrate(ctx context.Context) error {
	if a.DB == nil {
		return fmt.Errorf("database connection not established")
	}

	schema := a.Cfg.SchemaName()
	if err := a.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+adapter.QuoteIdent(schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", schema, err)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, a.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	a.Logger.Info("warehouse migrated", slog.String("schema", schema))
	return nil
}

// ReplaceYear deletes the year's facts and streams src through COPY inside
// one pgx transaction.
func (a *Adapter) ReplaceYear(ctx context.Context, year int, columns []string, src adapter.RowSource) (int64, error) {
	if a.DB == nil {
		return 0, fmt.Errorf("database connection not established")
	}

	// COPY needs the underlying pgx connection
	conn, err := a.DB.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	var copied int64
	err = conn.Raw(func(driverConn any) error {
		stdConn, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T, want pgx", driverConn)
		}
		pgxConn := stdConn.Conn()

		tx, err := pgxConn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		tag, err := tx.Exec(ctx, a.DeleteYearSQL(), year)
		if err != nil {
			return fmt.Errorf("failed to delete facts: %w", err)
		}

		table := pgx.Identifier{a.Cfg.SchemaName(), adapter.FactTable}
		copied, err = tx.CopyFrom(ctx, table, columns, src)
		if err != nil {
			return fmt.Errorf("failed to copy facts: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit: %w", err)
		}

		a.Logger.Debug("replaced year",
			slog.Int("year", year),
			slog.Int64("deleted", tag.RowsAffected()),
			slog.Int64("inserted", copied))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to replace facts for %d: %w", year, err)
	}
	return copied, nil
}

// Ensure Adapter implements adapter.Warehouse interface
var _ adapter.Warehouse = (*Adapter)(nil)
