// Package cli provides the command-line interface for caaspp.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eduanalytics/caaspp/internal/cli/commands"
	"github.com/eduanalytics/caaspp/internal/cli/config"
	intconfig "github.com/eduanalytics/caaspp/internal/config"
	"github.com/spf13/cobra"

	// Warehouse adapters register themselves with pkg/adapter.
	_ "github.com/eduanalytics/caaspp/pkg/adapters/duckdb"
	_ "github.com/eduanalytics/caaspp/pkg/adapters/postgres"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// skipConfig lists commands that run without loading configuration.
var skipConfig = map[string]bool{
	"help":       true,
	"completion": true,
	"__complete": true,
	"init":       true,
	"version":    true,
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "caaspp",
		Short: "caaspp - CAASPP research file ingestion",
		Long: `caaspp downloads the California assessment (CAASPP) research files for a
window of academic years, loads them into a warehouse fact table and
rebuilds a searchable index of schools, districts, subgroups and tests.

Each year is replaced atomically, and every run is recorded in a local
ledger that 'caaspp status' reads.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipConfig[cmd.Name()] {
				return nil
			}

			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := intconfig.NewLogger(cfg.Log, os.Stderr)
			cmd.SetContext(context.WithValue(cmd.Context(), config.LoggerKey(), logger))

			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				if configFile := config.GetConfigFileUsed(); configFile != "" {
					fmt.Fprintf(os.Stderr, "Using config file: %s\n", configFile)
				}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(`{{.Name}} {{.Version}}
Built %s from %s
`, BuildDate, GitCommit))

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./caaspp.yaml)")
	pf.BoolP("verbose", "v", false, "Verbose output (sets log level to debug)")
	pf.StringP("output", "o", "", "Output format (table|json|csv|markdown)")

	pf.Int("latest-year", 0, "Latest academic year to load (0 for last calendar year)")
	pf.Int("years", 0, "Number of academic years in the window")
	pf.Int("workers", 0, "Concurrent archive downloads per year")
	pf.Bool("purge-unlocated-years", false, "Delete facts of years with no published archive")
	pf.String("selector", "", "Archive selector rule (combined|legacy|any)")
	pf.String("warehouse", "", "Warehouse type (duckdb|postgres)")
	pf.String("database", "", "Path to the DuckDB warehouse file")
	pf.String("schema", "", "Warehouse schema")
	pf.String("index-backend", "", "Entity index backend (sqlite|pgvector|none)")
	pf.String("index-dsn", "", "Entity index database path or DSN")
	pf.String("state", "", "Path to the run ledger database")
	pf.String("log-level", "", "Log level (debug|info|warn|error)")
	pf.String("log-format", "", "Log format (auto|text|json)")
	pf.String("pushgateway", "", "Prometheus Pushgateway URL for run metrics")

	completions := map[string][]string{
		"output":        commands.OutputFormats,
		"selector":      {"combined", "legacy", "any"},
		"warehouse":     {"duckdb", "postgres"},
		"index-backend": {"sqlite", "pgvector", "none"},
		"log-level":     {"debug", "info", "warn", "error"},
		"log-format":    {"auto", "text", "json"},
	}
	for flag, values := range completions {
		values := values
		_ = rootCmd.RegisterFlagCompletionFunc(flag, func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return values, cobra.ShellCompDirectiveNoFileComp
		})
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewLocateCommand())
	rootCmd.AddCommand(commands.NewInspectCommand())
	rootCmd.AddCommand(commands.NewIndexCommand())
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewInitCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context so a run stops between years and records itself as failed.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for caaspp.

To load completions:

Bash:
  $ source <(caaspp completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ caaspp completion bash > /etc/bash_completion.d/caaspp
  # macOS:
  $ caaspp completion bash > $(brew --prefix)/etc/bash_completion.d/caaspp

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. Execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ caaspp completion zsh > "${fpath[1]}/_caaspp"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ caaspp completion fish | source

  # To load completions for each session, execute once:
  $ caaspp completion fish > ~/.config/fish/completions/caaspp.fish

PowerShell:
  PS> caaspp completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> caaspp completion powershell > caaspp.ps1
  # and source this file from your PowerShell profile.
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
			}
			return nil
		},
	}
	return cmd
}
