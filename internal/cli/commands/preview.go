package commands

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/brdatalab/cnpjkit/internal/dataset"
	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// NewPreviewCommand creates the preview command.
func NewPreviewCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "preview <table>",
		Short: "Show the first rows of a warehouse table",
		Example: `  cnpjkit preview empresas
  cnpjkit preview estabelecimentos --limit 20 -o csv`,
		Args: cobra.ExactArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return dataset.Names(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd, args[0], limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Rows to show (default from config)")

	return cmd
}

func runPreview(cmd *cobra.Command, table string, limit int) error {
	if !identPattern.MatchString(table) {
		return fmt.Errorf("invalid table name: %s", table)
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r := cmdCtx.Renderer

	if limit <= 0 {
		limit = cmdCtx.Cfg.UI.PreviewLimit
	}
	if limit > 5000 {
		limit = 5000
	}

	meta, err := cmdCtx.Adapter.GetTableMetadata(cmd.Context(), table)
	if err != nil {
		return err
	}

	rows, err := cmdCtx.Adapter.Query(cmd.Context(), fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, limit))
	if err != nil {
		return fmt.Errorf("failed to preview %s: %w", table, err)
	}
	defer rows.Close()

	rs, err := adapter.CollectRows(rows, limit)
	if err != nil {
		return err
	}
	if err := r.ResultSet(rs); err != nil {
		return err
	}
	r.Printf("Table %s has %d rows total.\n", table, meta.RowCount)
	return nil
}
