package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show ingest run history",
		Long: `Without arguments, list recent ingest runs. With a run ID, show the
per-dataset outcomes of that run.`,
		Example: `  cnpjkit runs
  cnpjkit runs --limit 5
  cnpjkit runs 4f7c2a1e-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runShowRun(cmd, args[0])
			}
			return runListRuns(cmd, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	return cmd
}

func runListRuns(cmd *cobra.Command, limit int) error {
	cmdCtx, cleanup, err := NewCommandContextStore(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r := cmdCtx.Renderer

	runs, err := cmdCtx.Store.RecentRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		r.Println("No runs recorded yet.")
		return nil
	}

	rs := &adapter.ResultSet{
		Columns: []string{"id", "kind", "status", "started_at", "completed_at", "error"},
	}
	for _, run := range runs {
		completed := ""
		if run.CompletedAt != nil {
			completed = run.CompletedAt.Format("2006-01-02 15:04:05")
		}
		rs.Rows = append(rs.Rows, []string{
			run.ID,
			run.Kind,
			string(run.Status),
			run.StartedAt.Format("2006-01-02 15:04:05"),
			completed,
			run.Error,
		})
	}
	return r.ResultSet(rs)
}

func runShowRun(cmd *cobra.Command, id string) error {
	cmdCtx, cleanup, err := NewCommandContextStore(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r := cmdCtx.Renderer

	run, err := cmdCtx.Store.GetRun(id)
	if err != nil {
		return err
	}
	datasetRuns, err := cmdCtx.Store.DatasetRunsForRun(id)
	if err != nil {
		return fmt.Errorf("failed to load dataset runs: %w", err)
	}

	r.Title(fmt.Sprintf("Run %s (%s, %s)", run.ID, run.Kind, run.Status))
	if run.Error != "" {
		r.Error(run.Error)
	}
	if len(datasetRuns) == 0 {
		r.Println("No dataset outcomes recorded for this run.")
		return nil
	}

	rs := &adapter.ResultSet{
		Columns: []string{"dataset", "month", "status", "rows", "duration_ms", "message"},
	}
	for _, dr := range datasetRuns {
		rs.Rows = append(rs.Rows, []string{
			dr.Dataset,
			dr.MonthRef,
			string(dr.Status),
			strconv.FormatInt(dr.RowsLoaded, 10),
			strconv.FormatInt(dr.DurationMS, 10),
			dr.Message,
		})
	}
	return r.ResultSet(rs)
}
