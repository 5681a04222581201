// Package search runs the company lookup over the prepared warehouse
// tables: partial CNPJ, name fragments, state, municipality and CNAE code.
package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brdatalab/cnpjkit/internal/cnpj"
	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

const (
	// DefaultLimit applies when a filter requests no explicit limit.
	DefaultLimit = 1000
	// MaxLimit caps the result size regardless of the request.
	MaxLimit = 5000
)

// Filter narrows the company lookup. Empty fields match everything.
type Filter struct {
	// CNPJ matches partially; mask characters are stripped.
	CNPJ string `json:"cnpj,omitempty"`
	// Name matches razão social or nome fantasia, case-insensitive.
	Name string `json:"name,omitempty"`
	// UF is the two-letter state code, exact match.
	UF string `json:"uf,omitempty"`
	// Municipio matches the municipality code or a name fragment.
	Municipio string `json:"municipio,omitempty"`
	// CNAE is the primary CNAE code, exact match.
	CNAE string `json:"cnae,omitempty"`
	// Limit caps the row count, clamped to [1, MaxLimit]. Zero means
	// DefaultLimit.
	Limit int `json:"limit,omitempty"`
}

// Company is one lookup result.
type Company struct {
	CNPJ14         string `json:"cnpj14"`
	RazaoSocial    string `json:"razao_social,omitempty"`
	NomeFantasia   string `json:"nome_fantasia,omitempty"`
	UF             string `json:"uf,omitempty"`
	Municipio      string `json:"municipio,omitempty"`
	CNAEPrincipal  string `json:"cnae_principal,omitempty"`
	CNAESecundaria string `json:"cnae_secundaria,omitempty"`
}

// Formatted returns the CNPJ with the standard mask.
func (c Company) Formatted() string {
	return cnpj.Format(c.CNPJ14)
}

// Searcher executes lookups against a warehouse adapter.
type Searcher struct {
	adapter adapter.Adapter
	logger  *slog.Logger
}

// New creates a Searcher. A nil logger is replaced with a discard logger.
func New(a adapter.Adapter, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Searcher{adapter: a, logger: logger}
}

// baseQuery assembles the 14-digit CNPJ from the estabelecimentos columns
// and joins the company name in from empresas on the 8-digit base.
const baseQuery = `WITH est AS (
  SELECT
    CONCAT(LPAD("CNPJ BÁSICO", 8, '0'), LPAD("CNPJ ORDEM", 4, '0'), LPAD("CNPJ DV", 2, '0')) AS cnpj14,
    "NOME FANTASIA" AS nome_fantasia,
    "UF" AS uf,
    "MUNICÍPIO" AS municipio,
    "CNAE FISCAL PRINCIPAL" AS cnae_principal,
    "CNAE FISCAL SECUNDÁRIA" AS cnae_secundaria
  FROM estabelecimentos
),
emp AS (
  SELECT "CNPJ BÁSICO" AS cnpj_basico, "RAZÃO SOCIAL / NOME EMPRESARIAL" AS razao_social FROM empresas
)
SELECT e.cnpj14, emp.razao_social, e.nome_fantasia, e.uf, e.municipio, e.cnae_principal, e.cnae_secundaria
FROM est e
LEFT JOIN emp ON emp.cnpj_basico = SUBSTR(e.cnpj14, 1, 8)
WHERE 1=1`

// Companies runs the lookup and returns at most the clamped limit of rows.
func (s *Searcher) Companies(ctx context.Context, f Filter) ([]Company, error) {
	query, args := buildQuery(s.adapter.Dialect(), f)

	s.logger.Debug("running company lookup", "args", len(args))

	rows, err := s.adapter.Query(ctx, query, args...)
	if err != nil {
		return nil, s.translateError(ctx, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Company
	for rows.Next() {
		var c Company
		var razao, fantasia, uf, municipio, cnaeP, cnaeS sql.NullString
		if err := rows.Scan(&c.CNPJ14, &razao, &fantasia, &uf, &municipio, &cnaeP, &cnaeS); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		c.RazaoSocial = razao.String
		c.NomeFantasia = fantasia.String
		c.UF = uf.String
		c.Municipio = municipio.String
		c.CNAEPrincipal = cnaeP.String
		c.CNAESecundaria = cnaeS.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}
	return out, nil
}

// buildQuery renders the filtered lookup with dialect-appropriate
// placeholders.
func buildQuery(d adapter.Dialect, f Filter) (string, []any) {
	var sb strings.Builder
	sb.WriteString(baseQuery)

	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return d.FormatPlaceholder(len(args))
	}

	if digits := cnpj.Digits(f.CNPJ); digits != "" {
		fmt.Fprintf(&sb, " AND e.cnpj14 LIKE %s", bind("%"+digits+"%"))
	}
	if f.Name != "" {
		v := "%" + strings.ToLower(f.Name) + "%"
		fmt.Fprintf(&sb, " AND (LOWER(emp.razao_social) LIKE %s OR LOWER(e.nome_fantasia) LIKE %s)", bind(v), bind(v))
	}
	if f.UF != "" {
		fmt.Fprintf(&sb, " AND e.uf = %s", bind(strings.ToUpper(strings.TrimSpace(f.UF))))
	}
	if f.Municipio != "" {
		fmt.Fprintf(&sb, " AND CAST(e.municipio AS TEXT) LIKE %s", bind("%"+f.Municipio+"%"))
	}
	if f.CNAE != "" {
		fmt.Fprintf(&sb, " AND e.cnae_principal = %s", bind(f.CNAE))
	}

	fmt.Fprintf(&sb, " LIMIT %d", clampLimit(f.Limit))
	return sb.String(), args
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// translateError turns a missing-table failure into a TableNotFoundError
// with a hint to prepare the dataset.
func (s *Searcher) translateError(ctx context.Context, err error) error {
	var notFound *adapter.TableNotFoundError
	if errors.As(err, &notFound) {
		return err
	}
	for _, table := range []string{"estabelecimentos", "empresas"} {
		if _, metaErr := s.adapter.GetTableMetadata(ctx, table); metaErr != nil {
			if errors.As(metaErr, &notFound) {
				return metaErr
			}
		}
	}
	return fmt.Errorf("lookup failed: %w", err)
}
