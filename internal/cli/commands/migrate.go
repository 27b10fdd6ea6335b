package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the warehouse, run ledger and entity index schemas",
		Long: `Apply pending migrations without loading anything:

  - warehouse: schema, year dimension and fact table
  - state:     run ledger tables
  - index:     vector index table (skipped when index.backend is none)

Every other command migrates on demand; migrate is useful to provision a
database before the first scheduled run.`,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cc := NewCommandContext(cmd)
	defer func() { _ = cc.Close() }()
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	acfg := cc.Cfg.AdapterConfig()
	if _, err := cc.OpenWarehouse(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "warehouse  %s schema %q migrated\n", acfg.Type, acfg.SchemaName())

	ledger, err := cc.OpenLedger(ctx)
	if err != nil {
		return err
	}
	version, err := ledger.GetMigrationVersion()
	if err != nil {
		return fmt.Errorf("failed to read ledger version: %w", err)
	}
	_, _ = fmt.Fprintf(out, "state      %s at version %d\n", cc.Cfg.State.Path, version)

	store, err := cc.OpenVectorStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		_, _ = fmt.Fprintln(out, "index      disabled")
		return nil
	}
	if err := store.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	_, _ = fmt.Fprintf(out, "index      %s %q ready\n", cc.Cfg.VectorConfig().Backend, cc.Cfg.VectorConfig().IndexName())
	return nil
}
