package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	// Register adapters for target validation.
	_ "github.com/brdatalab/cnpjkit/pkg/adapters/duckdb"
	_ "github.com/brdatalab/cnpjkit/pkg/adapters/postgres"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(500), cfg.MaxSourceMB)
	assert.Equal(t, int64(500*1024*1024), cfg.MaxSourceBytes())
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, "auto", cfg.Output)
	assert.Equal(t, ":8501", cfg.UI.Listen)
	assert.Equal(t, 100, cfg.UI.PreviewLimit)
	assert.True(t, cfg.UI.Watch)
	assert.Equal(t, 20, cfg.RFB.MaxParts)
	assert.Contains(t, cfg.RFB.BaseURL, "arquivos.receitafederal.gov.br")

	// Default target is a file-based DuckDB inside the data dir.
	require.NotNil(t, cfg.Target)
	assert.Equal(t, "duckdb", cfg.Target.Type)
	assert.Equal(t, "main", cfg.Target.Schema)
	assert.Equal(t, filepath.Join(cfg.DataDir, "cnpj.duckdb"), cfg.Target.Database)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := `
data_dir: warehouse
max_source_mb: 100
output: json
rfb:
  max_parts: 5
target:
  type: duckdb
  database: warehouse/cnpj.duckdb
ui:
  listen: ":9000"
  preview_limit: 25
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cnpjkit.yaml"), []byte(yaml), 0o644))

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "warehouse"), cfg.DataDir)
	assert.Equal(t, int64(100), cfg.MaxSourceMB)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, 5, cfg.RFB.MaxParts)
	assert.Equal(t, ":9000", cfg.UI.Listen)
	assert.Equal(t, 25, cfg.UI.PreviewLimit)
	assert.Equal(t, filepath.Join(dir, "warehouse", "cnpj.duckdb"), cfg.Target.Database)
	assert.Equal(t, filepath.Join(dir, "cnpjkit.yaml"), FileUsed())
}

func TestLoad_ExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: dados\n"), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.ProjectRoot)
	assert.Equal(t, filepath.Join(dir, "dados"), cfg.DataDir)
}

func TestLoad_UpwardSearch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "cnpjkit.yml"), []byte("concurrency: 7\n"), 0o644))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	t.Chdir(nested)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Concurrency)
	assert.Equal(t, root, cfg.ProjectRoot)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CNPJKIT_OUTPUT", "csv")
	t.Setenv("CNPJKIT_RFB_MAX_PARTS", "9")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "csv", cfg.Output)
	assert.Equal(t, 9, cfg.RFB.MaxParts)
}

func TestLoad_FlagOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cnpjkit.yaml"), []byte("output: json\n"), 0o644))
	t.Setenv("CNPJKIT_OUTPUT", "csv")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output", "auto", "")
	flags.String("state", "", "")
	flags.String("target", "", "")
	require.NoError(t, flags.Parse([]string{"--output", "table", "--state", "custom/state.db", "--target", "postgres"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)

	// flags > env > file
	assert.Equal(t, "table", cfg.Output)
	assert.Equal(t, filepath.Join(dir, "custom/state.db"), cfg.StatePath)
	assert.Equal(t, "postgres", cfg.Target.Type)
	assert.Equal(t, 5432, cfg.Target.Port)
	assert.Equal(t, "public", cfg.Target.Schema)
}

func TestLoad_UnsetFlagsIgnored(t *testing.T) {
	t.Chdir(t.TempDir())

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output", "auto", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.Output)
}

func TestLoad_ExpandsCredentials(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PG_PASS", "s3cret")

	yaml := `
target:
  type: postgres
  host: localhost
  database: cnpj
  user: rfb
  password: ${PG_PASS}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cnpjkit.yaml"), []byte(yaml), 0o644))

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Target.Password)
}

func TestLoad_UnknownTargetType(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cnpjkit.yaml"), []byte("target:\n  type: mysql\n"), 0o644))

	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown adapter type")
	assert.Contains(t, err.Error(), "duckdb")
}

func TestTargetConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		target  TargetConfig
		wantErr string
	}{
		{"empty type", TargetConfig{}, "target type is required"},
		{"duckdb", TargetConfig{Type: "duckdb"}, ""},
		{"duckdb uppercase", TargetConfig{Type: "DuckDB"}, ""},
		{"postgres", TargetConfig{Type: "postgres"}, ""},
		{"unknown", TargetConfig{Type: "sqlite"}, "unknown adapter type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestToAdapterConfig(t *testing.T) {
	target := TargetConfig{
		Type:     "Postgres",
		Database: "cnpj",
		Host:     "db.internal",
		Port:     5433,
		User:     "rfb",
		Password: "pw",
		Schema:   "public",
		Options:  map[string]string{"sslmode": "require"},
	}
	cfg := target.ToAdapterConfig()
	assert.Equal(t, "postgres", cfg.Type)
	assert.Equal(t, "cnpj", cfg.Database)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t, "rfb", cfg.Username)
	assert.Equal(t, "require", cfg.Options["sslmode"])
}
