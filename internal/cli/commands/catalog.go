package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/brdatalab/cnpjkit/internal/catalog"
	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand() *cobra.Command {
	var filter catalog.ListFilter

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List prepared datasets",
		Long: `Show the catalog of prepared datasets: which month each one came from,
where its Parquet file lives and how many rows were loaded.`,
		Example: `  cnpjkit catalog
  cnpjkit catalog --dataset empresas
  cnpjkit catalog --month 2024-05 -o json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCatalog(cmd, filter)
		},
	}

	cmd.Flags().StringVar(&filter.Dataset, "dataset", "", "Filter by dataset name")
	cmd.Flags().StringVar(&filter.MonthRef, "month", "", "Filter by month reference (YYYY-MM)")
	cmd.Flags().StringVar(&filter.Search, "search", "", "Match against parquet path or source URL")

	return cmd
}

func runCatalog(cmd *cobra.Command, filter catalog.ListFilter) error {
	cmdCtx, cleanup, err := NewCommandContextStore(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r := cmdCtx.Renderer

	records, err := cmdCtx.Store.ListRecords(filter)
	if err != nil {
		return fmt.Errorf("failed to list catalog records: %w", err)
	}

	if len(records) == 0 {
		r.Println("No datasets prepared yet. Run 'cnpjkit wizard' or 'cnpjkit prepare' first.")
		return nil
	}

	rs := &adapter.ResultSet{
		Columns: []string{"dataset", "month", "source", "rows", "parquet_path", "prepared_at"},
	}
	for _, rec := range records {
		rs.Rows = append(rs.Rows, []string{
			rec.Dataset,
			rec.MonthRef,
			rec.Source,
			strconv.FormatInt(rec.RowCount, 10),
			rec.ParquetPath,
			rec.PreparedAt.Format("2006-01-02 15:04"),
		})
	}
	return r.ResultSet(rs)
}
