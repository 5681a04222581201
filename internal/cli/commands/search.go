package commands

import (
	"github.com/spf13/cobra"

	"github.com/brdatalab/cnpjkit/internal/cli/output"
	"github.com/brdatalab/cnpjkit/internal/search"
	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

// NewSearchCommand creates the search command.
func NewSearchCommand() *cobra.Command {
	var filter search.Filter

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search companies in the warehouse",
		Long: `Search establishments joined with their company records. Requires the
empresas and estabelecimentos datasets to be prepared first.

Filters combine with AND. CNPJ matches a digit substring (punctuation is
stripped), name matches razão social or nome fantasia case-insensitively,
UF and CNAE match exactly.`,
		Example: `  cnpjkit search --name "padaria" --uf SP
  cnpjkit search --cnpj 11.222.333
  cnpjkit search --cnae 4711302 --municipio 7107 --limit 50 -o csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSearch(cmd, filter)
		},
	}

	cmd.Flags().StringVar(&filter.CNPJ, "cnpj", "", "CNPJ digits to match (full or partial)")
	cmd.Flags().StringVar(&filter.Name, "name", "", "Company or trade name to match")
	cmd.Flags().StringVar(&filter.UF, "uf", "", "State code (e.g. SP)")
	cmd.Flags().StringVar(&filter.Municipio, "municipio", "", "Municipality code")
	cmd.Flags().StringVar(&filter.CNAE, "cnae", "", "Primary CNAE code")
	cmd.Flags().IntVar(&filter.Limit, "limit", search.DefaultLimit, "Maximum rows to return")

	return cmd
}

func runSearch(cmd *cobra.Command, filter search.Filter) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	r := cmdCtx.Renderer

	companies, err := search.New(cmdCtx.Adapter, cmdCtx.Logger).Companies(cmd.Context(), filter)
	if err != nil {
		return err
	}

	if r.Resolved() == output.ModeJSON {
		return r.JSON(companies)
	}
	if len(companies) == 0 {
		r.Println("No companies matched.")
		return nil
	}

	rs := &adapter.ResultSet{
		Columns: []string{"cnpj", "razao_social", "nome_fantasia", "uf", "municipio", "cnae_principal"},
	}
	for _, c := range companies {
		rs.Rows = append(rs.Rows, []string{
			c.Formatted(),
			c.RazaoSocial,
			c.NomeFantasia,
			c.UF,
			c.Municipio,
			c.CNAEPrincipal,
		})
	}
	if err := r.ResultSet(rs); err != nil {
		return err
	}
	effectiveLimit := filter.Limit
	if effectiveLimit <= 0 {
		effectiveLimit = search.DefaultLimit
	}
	if effectiveLimit > search.MaxLimit {
		effectiveLimit = search.MaxLimit
	}
	if len(companies) >= effectiveLimit {
		r.Printf("Result may be truncated at the %d row limit.\n", effectiveLimit)
	}
	return nil
}
