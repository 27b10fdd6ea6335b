package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/eduanalytics/caaspp/internal/archive"
	"github.com/eduanalytics/caaspp/internal/table"
	"github.com/spf13/cobra"
)

// InspectOptions holds options for the inspect command.
type InspectOptions struct {
	Reference string
	Columns   bool
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	opts := &InspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect <archive>",
		Short: "Show how an archive is classified",
		Long: `Download (or read from disk) a single archive and show how each entry
is classified: the entities table, the results table, and every entry that
was skipped with the reason. Nothing is loaded.

Use --reference to read a flat reference archive (subgroups or tests) with
an explicit delimiter instead.`,
		Example: `  # Classify a published archive
  caaspp inspect https://caaspp-elpac.ets.org/caaspp/researchfiles/sb_ca2024_all_csv_v1.zip

  # Classify a local copy and list its columns
  caaspp inspect ./sb_ca2024_all_csv_v1.zip --columns

  # Read the tests reference archive
  caaspp inspect ./Tests.zip --reference caret`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Reference, "reference", "", "Read as a reference archive with this delimiter (caret|comma)")
	cmd.Flags().BoolVar(&opts.Columns, "columns", false, "List the normalized columns of each table")

	_ = cmd.RegisterFlagCompletionFunc("reference", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"caret", "comma"}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInspect(cmd *cobra.Command, source string, opts *InspectOptions) error {
	cc := NewCommandContext(cmd)
	defer func() { _ = cc.Close() }()

	data, err := readSource(cmd, cc, source)
	if err != nil {
		return err
	}

	t := &tabular{
		Title: source,
		Columns: []column{
			{"Entry", "entry"},
			{"Kind", "kind"},
			{"Columns", "columns"},
			{"Rows", "rows"},
			{"Note", "note"},
		},
	}

	if opts.Reference != "" {
		delim, err := table.ParseDelimiter(opts.Reference)
		if err != nil {
			return err
		}
		if delim == 0 {
			return fmt.Errorf("--reference needs an explicit delimiter (caret or comma)")
		}
		ref, err := archive.ParseReference(data, delim)
		if err != nil {
			return err
		}
		addTable(t, ref, "reference", opts.Columns)
		return render(cmd.OutOrStdout(), outputFormat(cmd), t)
	}

	contents := archive.Parse(data, cc.Logger)
	if contents.Err != nil {
		return fmt.Errorf("failed to open archive: %w", contents.Err)
	}
	addTable(t, contents.Entities, "entities", opts.Columns)
	addTable(t, contents.Tests, "results", opts.Columns)
	for _, s := range contents.Skipped {
		t.add(s.Entry, "skipped", "", "", s.Reason)
	}
	if err := render(cmd.OutOrStdout(), outputFormat(cmd), t); err != nil {
		return err
	}
	if contents.Empty() && outputFormat(cmd) == FormatTable {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No loadable table found.")
	}
	return nil
}

func addTable(t *tabular, rt *table.RawTable, kind string, withColumns bool) {
	if rt == nil {
		return
	}
	note := ""
	if withColumns {
		note = strings.Join(rt.Columns, ", ")
	}
	t.add(rt.Name, kind, len(rt.Columns), rt.Len(), note)
}

// readSource fetches an http(s) URL or reads a local file.
func readSource(cmd *cobra.Command, cc *CommandContext, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return cc.Fetcher().Fetch(cmd.Context(), source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	return data, nil
}
