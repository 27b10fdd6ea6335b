package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewLocateCommand creates the locate command.
func NewLocateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locate [year...]",
		Short: "List the archives published for each year",
		Long: `Fetch the listing page of each year and print the archive URLs the
configured selector accepts. Nothing is downloaded or loaded.

Without arguments the configured year window is used.`,
		Example: `  # Archives of the configured window
  caaspp locate

  # Archives of 2019 using the per-year selector override
  caaspp locate 2019`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocate(cmd, args)
		},
	}
	return cmd
}

func runLocate(cmd *cobra.Command, args []string) error {
	cc := NewCommandContext(cmd)
	defer func() { _ = cc.Close() }()

	years, err := parseYears(args)
	if err != nil {
		return err
	}
	if len(years) == 0 {
		years = cc.Window().Years()
	}

	loc, err := cc.Locator(cc.Fetcher())
	if err != nil {
		return err
	}
	lc, err := cc.Cfg.LocatorConfig()
	if err != nil {
		return err
	}

	t := &tabular{
		Columns: []column{
			{"Year", "year"},
			{"Selector", "selector"},
			{"Archive", "url"},
		},
	}
	var failed []error
	for _, year := range years {
		urls, err := loc.Locate(cmd.Context(), year)
		if err != nil {
			failed = append(failed, fmt.Errorf("year %d: %w", year, err))
			continue
		}
		sel := lc.Selectors.For(year).Name()
		if len(urls) == 0 {
			t.add(year, sel, "(none)")
			continue
		}
		for _, u := range urls {
			t.add(year, sel, u)
		}
	}

	if err := render(cmd.OutOrStdout(), outputFormat(cmd), t); err != nil {
		return err
	}
	if len(failed) > 0 {
		for _, err := range failed {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return fmt.Errorf("%d of %d listing(s) could not be read", len(failed), len(years))
	}
	return nil
}

func parseYears(args []string) ([]int, error) {
	years := make([]int, 0, len(args))
	for _, a := range args {
		y, err := strconv.Atoi(a)
		if err != nil || y < 2000 || y > 9999 {
			return nil, fmt.Errorf("invalid year %q", a)
		}
		years = append(years, y)
	}
	return years, nil
}
