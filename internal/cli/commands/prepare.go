package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brdatalab/cnpjkit/internal/catalog"
	"github.com/brdatalab/cnpjkit/internal/dataset"
	"github.com/brdatalab/cnpjkit/internal/ingest"
)

// PrepareOptions holds options for the prepare command.
type PrepareOptions struct {
	Year  int
	Month int
	Zip   string
	CSV   string
}

// NewPrepareCommand creates the prepare command.
func NewPrepareCommand() *cobra.Command {
	opts := &PrepareOptions{}

	cmd := &cobra.Command{
		Use:   "prepare <dataset>",
		Short: "Download and load one dataset into the warehouse",
		Long: `Prepare a single dataset: fetch the source, extract the tabular member,
transcode it to UTF-8, convert it to Parquet and materialize the table.

The source is the RFB file server by default (--year/--month select the
monthly drop). A local ZIP package or CSV file can be loaded instead with
--zip or --csv.`,
		Example: `  # Download the May 2024 CNAE domain table
  cnpjkit prepare cnaes --year 2024 --month 5

  # Load a package downloaded by other means
  cnpjkit prepare empresas --zip ~/Downloads/Empresas0.zip

  # Load a delimited file directly
  cnpjkit prepare municipios --csv municipios.csv`,
		Args: cobra.ExactArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return dataset.Names(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrepare(cmd, args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.Year, "year", 0, "Year of the monthly drop")
	cmd.Flags().IntVar(&opts.Month, "month", 0, "Month of the monthly drop (1-12)")
	cmd.Flags().StringVar(&opts.Zip, "zip", "", "Load from a local ZIP package")
	cmd.Flags().StringVar(&opts.CSV, "csv", "", "Load from a local delimited file")
	cmd.MarkFlagsMutuallyExclusive("zip", "csv")

	return cmd
}

func runPrepare(cmd *cobra.Command, name string, opts *PrepareOptions) error {
	ds, err := dataset.Get(name)
	if err != nil {
		return err
	}

	src, err := prepareSource(opts)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r := cmdCtx.Renderer

	run, err := cmdCtx.Store.CreateRun("prepare")
	if err != nil {
		return err
	}

	res, err := cmdCtx.Pipeline().Prepare(cmd.Context(), run.ID, ds, src, nil)
	if err != nil {
		_ = cmdCtx.Store.CompleteRun(run.ID, catalog.RunStatusFailed, err.Error())
		return err
	}
	if err := cmdCtx.Store.CompleteRun(run.ID, catalog.RunStatusCompleted, ""); err != nil {
		cmdCtx.Logger.Warn("failed to record run outcome", "run_id", run.ID, "error", err)
	}

	detail := fmt.Sprintf("%d rows in %s", res.RowsLoaded, formatDuration(res.Duration))
	r.StatusLine(res.Table, "success", detail)
	if res.ParquetPath != "" {
		r.Printf("Parquet: %s\n", res.ParquetPath)
	}
	return nil
}

func prepareSource(opts *PrepareOptions) (ingest.Source, error) {
	switch {
	case opts.Zip != "":
		return ingest.Source{Kind: ingest.SourceZip, Path: opts.Zip}, nil
	case opts.CSV != "":
		return ingest.Source{Kind: ingest.SourceCSV, Path: opts.CSV}, nil
	case opts.Year != 0 || opts.Month != 0:
		return ingest.Source{Kind: ingest.SourceURL, Year: opts.Year, Month: opts.Month}, nil
	default:
		return ingest.Source{}, fmt.Errorf("specify a source: --year/--month, --zip or --csv")
	}
}
