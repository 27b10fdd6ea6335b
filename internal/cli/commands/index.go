package commands

import (
	"errors"
	"fmt"

	"github.com/eduanalytics/caaspp/internal/engine"
	"github.com/eduanalytics/caaspp/internal/entityindex"
	"github.com/spf13/cobra"
)

// NewIndexCommand creates the index command.
func NewIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Rebuild the entity index without loading facts",
		Long: `Rebuild the entity index from the most recent year of the window that
publishes an entities table, plus the subgroup and test reference tables.
Warehouse facts are not touched.

The index is only cleared once every input has been fetched, so a failed
download leaves the previous index in place.`,
		Example: `  # Rebuild after a failed index step in 'caaspp run'
  caaspp index`,
		RunE: runIndex,
	}
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cc := NewCommandContext(cmd)
	defer func() { _ = cc.Close() }()

	if !cc.Cfg.Index.Enabled() {
		return errors.New("entity index is disabled (index.backend is none)")
	}

	eng, err := cc.NewEngine(cmd.Context(), EngineOptions{})
	if err != nil {
		return err
	}

	stats, err := eng.RebuildIndex(cmd.Context())
	if err != nil {
		var be *entityindex.BatchError
		if errors.As(err, &be) {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Index truncated after %d documents; rerun to complete it.\n", be.Written)
		}
		if errors.Is(err, engine.ErrNoEntities) {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No year of the window published an entities table; the index was left as it was.")
		}
		return fmt.Errorf("index rebuild failed: %w", err)
	}

	t := &tabular{
		Title:   "Entity index " + cc.Cfg.VectorConfig().IndexName(),
		Columns: []column{{"Type", "type"}, {"Documents", "documents"}},
	}
	t.add(entityindex.TypeEntity, stats.Entities)
	t.add(entityindex.TypeSubgroup, stats.Subgroups)
	t.add(entityindex.TypeTest, stats.Tests)
	t.add(entityindex.TypeGrade, stats.Grades)
	if err := render(cmd.OutOrStdout(), outputFormat(cmd), t); err != nil {
		return err
	}
	if outputFormat(cmd) == FormatTable {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d documents written in %d batches (%d duplicates dropped)\n",
			stats.Written, stats.Batches, stats.Duplicates)
	}
	return nil
}
