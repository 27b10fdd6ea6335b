package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	intconfig "github.com/eduanalytics/caaspp/internal/config"
	"github.com/eduanalytics/caaspp/internal/engine"
	"github.com/eduanalytics/caaspp/internal/entityindex"
	"github.com/eduanalytics/caaspp/internal/locator"
	"github.com/eduanalytics/caaspp/internal/transport"
	"github.com/eduanalytics/caaspp/internal/vectorstore"
	"github.com/eduanalytics/caaspp/pkg/adapter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// InitOptions holds options for the init command.
type InitOptions struct {
	Force     bool
	Warehouse string
	Index     string
}

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Write a starter caaspp.yaml",
		Long: `Write a commented caaspp.yaml holding every setting with its default,
plus a .gitignore for the local .caaspp/ data directory.

Credentials are written as ${VAR} references and expanded from the
environment when the configuration is loaded.`,
		Example: `  # DuckDB warehouse and SQLite index in the current directory
  caaspp init

  # Postgres warehouse with a pgvector index
  caaspp init deploy --target postgres --index pgvector

  # Overwrite an existing config
  caaspp init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite existing configuration")
	cmd.Flags().StringVar(&opts.Warehouse, "target", "duckdb", "Warehouse type (duckdb|postgres)")
	cmd.Flags().StringVar(&opts.Index, "index", "sqlite", "Index backend (sqlite|pgvector|none)")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, opts *InitOptions) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, intconfig.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", configPath)
	}

	content, err := starterConfig(opts.Warehouse, opts.Index)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	ignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(ignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(ignorePath, []byte(".caaspp/\n"), 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", ignorePath, err)
		}
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Wrote %s\n\n", configPath)
	_, _ = fmt.Fprintln(out, "Next steps:")
	_, _ = fmt.Fprintln(out, "  caaspp locate     Check which archives the listing offers")
	_, _ = fmt.Fprintln(out, "  caaspp run        Load the year window and rebuild the index")
	_, _ = fmt.Fprintln(out, "  caaspp status     Review recorded runs")
	return nil
}

// starterConfig renders the commented starter configuration.
func starterConfig(warehouse, index string) ([]byte, error) {
	doc := mapping()
	add := func(key, comment string, value *yaml.Node) {
		k := scalar(key)
		k.HeadComment = comment
		doc.Content = append(doc.Content, k, value)
	}

	add("years", "Window of academic years; latest 0 means last calendar year.", mapping(
		"latest", scalar(0),
		"count", scalar(engine.DefaultYears),
	))
	add("workers", "Concurrent archive downloads per year.", scalar(engine.DefaultWorkers))
	add("purge_unlocated_years", "Delete the facts of a year whose listing offers no archive.", scalar(false))

	source := mapping(
		"list_url", scalar(locator.DefaultListURL),
		"base_url", scalar(locator.DefaultBaseURL),
		"selector", scalar(locator.RuleCombined),
		"selector_by_year", mapping(),
		"subgroups_url", scalar(""),
		"subgroups_delimiter", scalar(intconfig.DefaultSubgroupsDelim),
		"tests_url", scalar(""),
		"tests_delimiter", scalar(intconfig.DefaultTestsDelim),
	)
	source.Content[8].HeadComment = "Reference files have no default URL. While subgroups_url and tests_url\n" +
		"are empty, the index holds only entities and grades and each run logs a warning."
	add("source", "Publisher listing and reference archives.", source)

	add("transport", "", mapping(
		"timeout", scalar(transport.DefaultTimeout.String()),
		"retries", scalar(transport.DefaultRetries),
		"retry_delay", scalar(transport.DefaultRetryDelay.String()),
		"user_agent", scalar(transport.DefaultUserAgent),
	))

	switch warehouse {
	case "duckdb":
		add("warehouse", "", mapping(
			"type", scalar("duckdb"),
			"path", scalar(intconfig.DefaultWarehousePath),
			"schema", scalar(adapter.DefaultSchema),
		))
	case "postgres":
		add("warehouse", "", mapping(
			"type", scalar("postgres"),
			"host", scalar("${POSTGRES_HOST}"),
			"port", scalar(intconfig.DefaultPostgresPort),
			"database", scalar("${POSTGRES_DB}"),
			"user", scalar("${POSTGRES_USER}"),
			"password", scalar("${POSTGRES_PASSWORD}"),
			"schema", scalar(adapter.DefaultSchema),
			"options", mapping("sslmode", scalar("prefer")),
		))
	default:
		return nil, fmt.Errorf("unknown warehouse type %q (expected duckdb or postgres)", warehouse)
	}

	switch index {
	case "sqlite", intconfig.IndexBackendNone:
		add("index", "", mapping(
			"backend", scalar(index),
			"name", scalar(vectorstore.DefaultIndex),
			"dsn", scalar(intconfig.DefaultIndexPath),
			"batch_size", scalar(entityindex.DefaultBatchSize),
		))
	case "pgvector":
		add("index", "", mapping(
			"backend", scalar("pgvector"),
			"name", scalar(vectorstore.DefaultIndex),
			"dsn", scalar("${PGVECTOR_DSN}"),
			"dimensions", scalar(1536),
			"batch_size", scalar(entityindex.DefaultBatchSize),
		))
	default:
		return nil, fmt.Errorf("unknown index backend %q (expected sqlite, pgvector or none)", index)
	}

	add("embeddings", "OpenAI-compatible embeddings endpoint; required by pgvector.", mapping(
		"api_key", scalar("${OPENAI_API_KEY}"),
		"model", scalar(vectorstore.DefaultEmbeddingModel),
	))
	add("state", "", mapping("path", scalar(intconfig.DefaultStatePath)))
	add("metrics", "", mapping(
		"pushgateway_url", scalar(""),
		"job", scalar(intconfig.DefaultMetricsJob),
	))
	add("log", "", mapping(
		"level", scalar(intconfig.DefaultLogLevel),
		"format", scalar(intconfig.DefaultLogFormat),
	))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{doc}}); err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// mapping builds a mapping node from alternating keys and value nodes.
func mapping(kv ...any) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Content = append(n.Content, scalar(kv[i]), kv[i+1].(*yaml.Node))
	}
	return n
}

func scalar(v any) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode}
	switch x := v.(type) {
	case string:
		n.Tag, n.Value = "!!str", x
	case int:
		n.Tag, n.Value = "!!int", strconv.Itoa(x)
	case bool:
		n.Tag, n.Value = "!!bool", strconv.FormatBool(x)
	default:
		n.Tag, n.Value = "!!str", fmt.Sprint(x)
	}
	return n
}
