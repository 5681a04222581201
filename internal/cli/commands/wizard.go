package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brdatalab/cnpjkit/internal/cli/output"
	"github.com/brdatalab/cnpjkit/internal/dataset"
	"github.com/brdatalab/cnpjkit/internal/ingest"
)

// WizardOptions holds options for the wizard command.
type WizardOptions struct {
	Year        int
	Month       int
	Datasets    []string
	All         bool
	Concurrency int
}

// NewWizardCommand creates the wizard command.
func NewWizardCommand() *cobra.Command {
	opts := &WizardOptions{}

	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Download and load a full monthly drop",
		Long: `Load several datasets of one monthly drop in parallel. Datasets that the
RFB has not published for the month are skipped with a warning; a failing
dataset never stops the others.

By default the four core datasets are loaded (empresas, estabelecimentos,
socios, simples). Use --datasets to pick specific ones or --all for
everything including the domain tables.`,
		Example: `  # Load the core datasets for May 2024
  cnpjkit wizard --year 2024 --month 5

  # Load everything
  cnpjkit wizard --year 2024 --month 5 --all

  # Just the domain tables, two at a time
  cnpjkit wizard --year 2024 --month 5 --datasets cnaes,municipios,paises --concurrency 2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWizard(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Year, "year", 0, "Year of the monthly drop")
	cmd.Flags().IntVar(&opts.Month, "month", 0, "Month of the monthly drop (1-12)")
	cmd.Flags().StringSliceVar(&opts.Datasets, "datasets", nil, "Datasets to load (default: core datasets)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Load every known dataset")
	cmd.Flags().IntVar(&opts.Concurrency, "concurrency", 0, "Parallel dataset loads (1-10)")
	_ = cmd.MarkFlagRequired("year")
	_ = cmd.MarkFlagRequired("month")

	return cmd
}

func runWizard(cmd *cobra.Command, opts *WizardOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r := cmdCtx.Renderer

	names := opts.Datasets
	if opts.All {
		names = dataset.Names()
	}
	concurrency := opts.Concurrency
	if concurrency == 0 {
		concurrency = cmdCtx.Cfg.Concurrency
	}

	report, err := cmdCtx.Pipeline().Wizard(cmd.Context(), ingest.WizardOptions{
		Year:        opts.Year,
		Month:       opts.Month,
		Datasets:    names,
		Concurrency: concurrency,
	})
	if err != nil {
		return err
	}

	if r.Resolved() == output.ModeJSON {
		return r.JSON(report)
	}

	r.Title(fmt.Sprintf("Monthly drop %s", report.MonthRef))
	for _, e := range report.Entries {
		detail := e.Message
		if e.Status == ingest.EntryOK {
			detail = fmt.Sprintf("%d rows", e.RowsLoaded)
		}
		r.StatusLine(e.Dataset, statusOf(e), detail)
	}
	r.Println("")

	if report.Failed() {
		return fmt.Errorf("one or more datasets failed (run: %s)", report.RunID)
	}
	r.Success(fmt.Sprintf("Done (run: %s)", report.RunID))
	return nil
}

func statusOf(e ingest.Entry) string {
	switch e.Status {
	case ingest.EntryOK:
		return "success"
	case ingest.EntryWarn:
		return "warn"
	default:
		return "error"
	}
}
