package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/brdatalab/cnpjkit/internal/cli/config"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new cnpjkit project",
		Long: `Initialize a cnpjkit project with a default configuration file and data
directory layout.

This creates:
  - cnpjkit.yaml configuration file
  - data/ directory for downloads and Parquet output
  - .cnpjkit/ directory for the catalog database`,
		Example: `  # Initialize in the current directory
  cnpjkit init

  # Initialize in a new directory
  cnpjkit init rfb-data

  # Force overwrite existing config
  cnpjkit init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	cmdCtx := NewCommandContextLight(cmd)
	r := cmdCtx.Renderer

	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, config.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", config.ConfigFileName)
	}

	data, err := defaultConfigYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	for _, sub := range []string{"data", ".cnpjkit"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return fmt.Errorf("failed to create %s: %w", sub, err)
		}
	}

	r.StatusLine(config.ConfigFileName, "success", "")
	r.StatusLine("data/", "success", "")
	r.StatusLine(".cnpjkit/", "success", "")
	r.Println("")
	r.Success("Project initialized")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  cnpjkit wizard --year 2024 --month 5   # load a full month")
	r.Println("  cnpjkit search --name 'padaria'        # query companies")
	return nil
}

// defaultConfigYAML renders the scaffold configuration.
func defaultConfigYAML() ([]byte, error) {
	scaffold := map[string]any{
		"data_dir":      config.DefaultDataDir,
		"state_path":    config.DefaultStateFile,
		"max_source_mb": config.DefaultMaxSourceMB,
		"concurrency":   config.DefaultConcurrency,
		"target": map[string]any{
			"type":     "duckdb",
			"database": "data/cnpj.duckdb",
		},
		"ui": map[string]any{
			"listen":        config.DefaultListen,
			"preview_limit": config.DefaultPreviewLimit,
		},
	}

	body, err := yaml.Marshal(scaffold)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	header := "# cnpjkit configuration\n# Docs: run 'cnpjkit doctor' to verify this setup.\n"
	return append([]byte(header), body...), nil
}
