package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/brdatalab/cnpjkit/pkg/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectMemory(t *testing.T) *Adapter {
	t.Helper()
	a := New(nil)
	require.NoError(t, a.Connect(context.Background(), adapter.Config{Type: "duckdb"}))
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConnect_InMemory(t *testing.T) {
	a := connectMemory(t)
	assert.True(t, a.IsConnected())
}

func TestLoadCSV_Semicolon(t *testing.T) {
	a := connectMemory(t)
	ctx := context.Background()

	csv := "CNPJ BASICO;RAZAO SOCIAL\n00000001;ACME LTDA\n00000002;BETA SA\n"
	path := writeCSV(t, "empresas.csv", csv)

	opts := adapter.CSVOptions{Delimiter: ';', Header: true, AllVarchar: true}
	require.NoError(t, a.LoadCSV(ctx, "empresas", path, opts))

	meta, err := a.GetTableMetadata(ctx, "empresas")
	require.NoError(t, err)
	assert.Equal(t, int64(2), meta.RowCount)
	assert.Len(t, meta.Columns, 2)
	// all_varchar forces text columns so zero-padded codes survive
	for _, col := range meta.Columns {
		assert.Equal(t, "VARCHAR", col.Type)
	}
}

func TestLoadCSV_InvalidTableName(t *testing.T) {
	a := connectMemory(t)
	err := a.LoadCSV(context.Background(), "emp; DROP TABLE x", "nope.csv", adapter.CSVOptions{})
	require.Error(t, err)
}

func TestCopyCSVToParquetAndBack(t *testing.T) {
	a := connectMemory(t)
	ctx := context.Background()

	csv := "COD;DESCRICAO\n0001;SAO PAULO\n0002;CAMPINAS\n0003;SANTOS\n"
	csvPath := writeCSV(t, "municipios.csv", csv)
	parquetPath := filepath.Join(t.TempDir(), "municipios.parquet")

	opts := adapter.CSVOptions{Delimiter: ';', Header: true, AllVarchar: true}
	rows, err := a.CopyCSVToParquet(ctx, csvPath, parquetPath, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows)
	assert.FileExists(t, parquetPath)

	require.NoError(t, a.CreateTableFromParquet(ctx, "municipios", parquetPath))

	meta, err := a.GetTableMetadata(ctx, "municipios")
	require.NoError(t, err)
	assert.Equal(t, int64(3), meta.RowCount)
}

func TestGetTableMetadata_Missing(t *testing.T) {
	a := connectMemory(t)

	_, err := a.GetTableMetadata(context.Background(), "nao_existe")
	require.Error(t, err)

	var notFound *adapter.TableNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestIsIdentifier(t *testing.T) {
	assert.True(t, isIdentifier("empresas"))
	assert.True(t, isIdentifier("dataset_runs"))
	assert.False(t, isIdentifier(""))
	assert.False(t, isIdentifier("1abc"))
	assert.False(t, isIdentifier("a;b"))
	assert.False(t, isIdentifier("a b"))
}

func TestParseParams(t *testing.T) {
	p, err := parseParams(map[string]any{
		"extensions": []string{"httpfs"},
		"settings":   map[string]string{"threads": "4"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"httpfs"}, p.Extensions)
	assert.Equal(t, "4", p.Settings["threads"])

	p, err = parseParams(nil)
	require.NoError(t, err)
	assert.Empty(t, p.Extensions)
}
