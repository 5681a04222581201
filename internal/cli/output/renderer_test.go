package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

func sampleResultSet() *adapter.ResultSet {
	return &adapter.ResultSet{
		Columns: []string{"cnpj14", "razao_social"},
		Rows: [][]string{
			{"11222333000181", "ACME LTDA"},
			{"00000000000191", "Foo, \"Bar\" SA"},
		},
	}
}

func TestRenderer_ResolvedAuto(t *testing.T) {
	// A bytes.Buffer is not a terminal, so auto resolves to markdown.
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeAuto)
	assert.Equal(t, ModeMarkdown, r.Resolved())

	r = NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, ModeJSON)
	assert.Equal(t, ModeJSON, r.Resolved())
}

func TestRenderer_UnknownModeFallsBackToAuto(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, Mode("bogus"))
	assert.Equal(t, ModeMarkdown, r.Resolved())

	r = NewRenderer(&bytes.Buffer{}, &bytes.Buffer{}, Mode("md"))
	assert.Equal(t, ModeMarkdown, r.Resolved())
}

func TestRenderer_ResultSetTable(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &bytes.Buffer{}, ModeTable)

	require.NoError(t, r.ResultSet(sampleResultSet()))
	assert.Contains(t, out.String(), "11222333000181")
	assert.Contains(t, out.String(), "(2 rows)")
}

func TestRenderer_ResultSetTableEmpty(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &bytes.Buffer{}, ModeTable)

	require.NoError(t, r.ResultSet(&adapter.ResultSet{Columns: []string{"a"}}))
	assert.Equal(t, "(0 rows)\n", out.String())
}

func TestRenderer_ResultSetCSV(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &bytes.Buffer{}, ModeCSV)

	require.NoError(t, r.ResultSet(sampleResultSet()))
	assert.Contains(t, out.String(), "cnpj14,razao_social\n")
	// Quoted because of the comma and inner quotes
	assert.Contains(t, out.String(), `"Foo, ""Bar"" SA"`)
}

func TestRenderer_ResultSetMarkdown(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &bytes.Buffer{}, ModeMarkdown)

	require.NoError(t, r.ResultSet(sampleResultSet()))
	assert.Contains(t, out.String(), "| cnpj14 | razao_social |")
	assert.Contains(t, out.String(), "| --- | --- |")
}

func TestRenderer_ResultSetJSON(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &bytes.Buffer{}, ModeJSON)

	require.NoError(t, r.ResultSet(sampleResultSet()))
	assert.Contains(t, out.String(), `"cnpj14": "11222333000181"`)
}

func TestRenderer_StatusLine(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, &bytes.Buffer{}, ModeTable)

	r.StatusLine("empresas", "success", "120 rows")
	r.StatusLine("paises", "warn", "not published")
	r.StatusLine("cnaes", "error", "")

	s := out.String()
	assert.Contains(t, s, "✓ empresas 120 rows")
	assert.Contains(t, s, "! paises not published")
	assert.Contains(t, s, "✗ cnaes")
}
