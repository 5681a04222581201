package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

// QueryOptions holds options for the query command.
type QueryOptions struct {
	Input string
	Limit int
}

// NewQueryCommand creates the query command.
func NewQueryCommand() *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query [SQL]",
		Short: "Run SQL against the warehouse",
		Long: `Execute SQL against the warehouse target (DuckDB by default). SQL can
come from an argument, a file, piped stdin, or an interactive REPL when
invoked without input on a terminal.`,
		Example: `  # Execute SQL directly
  cnpjkit query "SELECT uf, COUNT(*) FROM estabelecimentos GROUP BY uf"

  # From a file, as JSON
  cnpjkit query -i report.sql -o json

  # Piped
  echo "SELECT COUNT(*) FROM empresas" | cnpjkit query

  # Interactive mode
  cnpjkit query`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueryCmd(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Read SQL from file")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10000, "Maximum rows to collect")

	cmd.AddCommand(newQueryTablesCommand())
	cmd.AddCommand(newQuerySchemaCommand())

	return cmd
}

func runQueryCmd(cmd *cobra.Command, args []string, opts *QueryOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var sqlQuery string
	switch {
	case len(args) > 0:
		sqlQuery = strings.Join(args, " ")
	case opts.Input != "":
		content, err := os.ReadFile(opts.Input)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		sqlQuery = string(content)
	case !isStdinTerminal():
		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		sqlQuery = string(content)
	default:
		return runQueryREPL(cmd, cmdCtx, opts)
	}

	return executeAndRender(cmd.Context(), cmdCtx, sqlQuery, opts.Limit)
}

func executeAndRender(ctx context.Context, cmdCtx *CommandContext, sqlQuery string, limit int) error {
	rows, err := cmdCtx.Adapter.Query(ctx, strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sqlQuery), ";")))
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rs, err := adapter.CollectRows(rows, limit)
	if err != nil {
		return err
	}
	if err := cmdCtx.Renderer.ResultSet(rs); err != nil {
		return err
	}
	if rs.Truncated(limit) {
		cmdCtx.Renderer.Warning(fmt.Sprintf("output truncated at %d rows", limit))
	}
	return nil
}

// newQueryTablesCommand creates the tables subcommand.
func newQueryTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List warehouse tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return listWarehouseTables(cmd.Context(), cmdCtx)
		},
	}
}

// newQuerySchemaCommand creates the schema subcommand.
func newQuerySchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <table>",
		Short: "Show columns of a warehouse table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return showTableSchema(cmd.Context(), cmdCtx, args[0])
		},
	}
}

func listWarehouseTables(ctx context.Context, cmdCtx *CommandContext) error {
	schema := cmdCtx.Adapter.Dialect().DefaultSchema
	rows, err := cmdCtx.Adapter.Query(ctx, `
		SELECT table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = `+cmdCtx.Adapter.Dialect().FormatPlaceholder(1)+`
		ORDER BY table_name`, schema)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rs, err := adapter.CollectRows(rows, 0)
	if err != nil {
		return err
	}
	return cmdCtx.Renderer.ResultSet(rs)
}

func showTableSchema(ctx context.Context, cmdCtx *CommandContext, table string) error {
	meta, err := cmdCtx.Adapter.GetTableMetadata(ctx, table)
	if err != nil {
		return err
	}

	rs := &adapter.ResultSet{Columns: []string{"column", "type", "nullable"}}
	for _, col := range meta.Columns {
		rs.Rows = append(rs.Rows, []string{col.Name, col.Type, strconv.FormatBool(col.Nullable)})
	}
	return cmdCtx.Renderer.ResultSet(rs)
}

func isStdinTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
