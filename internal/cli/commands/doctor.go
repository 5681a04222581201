package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brdatalab/cnpjkit/internal/catalog"
	"github.com/brdatalab/cnpjkit/internal/cli/config"
	"github.com/brdatalab/cnpjkit/internal/cli/output"
	"github.com/brdatalab/cnpjkit/internal/dataset"
)

// DoctorCheck is a single health check result.
type DoctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "success", "warn", "error"
	Detail string `json:"detail,omitempty"`
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Checks  []DoctorCheck `json:"checks"`
	Healthy bool          `json:"healthy"`
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and data health",
		Long: `Verify that cnpjkit is set up correctly: configuration, data directory,
catalog database and warehouse connectivity, plus a summary of which
datasets have been prepared.`,
		Example: `  cnpjkit doctor
  cnpjkit doctor -o json`,
		RunE: runDoctor,
	}
	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cmdCtx := NewCommandContextLight(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	out := &DoctorOutput{Healthy: true}
	add := func(name, status, detail string) {
		out.Checks = append(out.Checks, DoctorCheck{Name: name, Status: status, Detail: detail})
		if status == "error" {
			out.Healthy = false
		}
	}

	// Config file
	if used := config.FileUsed(); used != "" {
		add("config", "success", used)
	} else {
		add("config", "warn", "no cnpjkit.yaml found, using defaults")
	}

	// Data directory writable
	if err := checkWritableDir(cfg.DataDir); err != nil {
		add("data directory", "error", err.Error())
	} else {
		add("data directory", "success", cfg.DataDir)
	}

	// Catalog store
	store, err := openStore(cfg, cmdCtx.Logger)
	if err != nil {
		add("catalog", "error", err.Error())
	} else {
		version, verr := store.MigrationVersion()
		if verr != nil {
			add("catalog", "error", verr.Error())
		} else {
			add("catalog", "success", fmt.Sprintf("%s (schema v%d)", cfg.StatePath, version))
		}
	}

	// Warehouse connectivity
	a, err := openAdapter(cmd, cfg, cmdCtx.Logger)
	if err != nil {
		add("warehouse", "error", err.Error())
	} else {
		add("warehouse", "success", fmt.Sprintf("%s target reachable", cfg.Target.Type))
		_ = a.Close()
	}

	// Prepared datasets
	if store != nil {
		records, err := store.ListRecords(catalog.ListFilter{})
		switch {
		case err != nil:
			add("datasets", "error", err.Error())
		case len(records) == 0:
			add("datasets", "warn", "none prepared yet (run 'cnpjkit wizard')")
		default:
			add("datasets", "success",
				fmt.Sprintf("%d of %d prepared", len(records), len(dataset.Names())))
		}
		_ = store.Close()
	}

	if r.Resolved() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Title("cnpjkit doctor")
	for _, c := range out.Checks {
		r.StatusLine(c.Name, c.Status, c.Detail)
	}
	r.Println("")
	if !out.Healthy {
		return fmt.Errorf("one or more checks failed")
	}
	r.Success("All checks passed")
	return nil
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory not writable: %w", err)
	}
	return os.Remove(probe)
}
