package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/brdatalab/cnpjkit/internal/dataset"
	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

// NewDatasetsCommand creates the datasets command.
func NewDatasetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List the known RFB datasets",
		Long: `List every dataset cnpjkit knows how to download and load, with its
remote package prefix and whether the monthly drop splits it into parts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContextLight(cmd)

			names := dataset.Names()
			rs := &adapter.ResultSet{
				Columns: []string{"dataset", "description", "remote_prefix", "multi_part", "domain"},
			}
			for _, name := range names {
				ds, err := dataset.Get(name)
				if err != nil {
					return err
				}
				rs.Rows = append(rs.Rows, []string{
					ds.Name,
					ds.Hint,
					ds.RemotePrefix,
					strconv.FormatBool(ds.MultiPart),
					strconv.FormatBool(ds.Domain),
				})
			}
			return cmdCtx.Renderer.ResultSet(rs)
		},
	}
}
