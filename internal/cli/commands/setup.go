// Package commands implements the cnpjkit subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/brdatalab/cnpjkit/internal/catalog"
	"github.com/brdatalab/cnpjkit/internal/cli/config"
	"github.com/brdatalab/cnpjkit/internal/cli/output"
	"github.com/brdatalab/cnpjkit/internal/ingest"
	"github.com/brdatalab/cnpjkit/internal/rfb"
	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Adapter  adapter.Adapter
	Store    *catalog.SQLiteStore
	Renderer *output.Renderer
}

// NewCommandContext opens the warehouse adapter and the catalog store.
// The returned cleanup function must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextLight(cmd)

	store, err := openStore(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}

	a, err := openAdapter(cmd, cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	cmdCtx.Store = store
	cmdCtx.Adapter = a
	cleanup := func() {
		_ = a.Close()
		_ = store.Close()
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextStore opens only the catalog store, for commands that
// inspect ingest history without touching the warehouse.
func NewCommandContextStore(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextLight(cmd)

	store, err := openStore(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Store = store
	return cmdCtx, func() { _ = store.Close() }, nil
}

// NewCommandContextLight builds a CommandContext without connecting to the
// warehouse or catalog. Useful for commands that don't touch data.
func NewCommandContextLight(cmd *cobra.Command) *CommandContext {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.Output))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// Pipeline builds an ingest pipeline from the context's dependencies.
func (c *CommandContext) Pipeline() *ingest.Pipeline {
	return ingest.New(ingest.Options{
		Adapter:        c.Adapter,
		Store:          c.Store,
		Client:         c.RFBClient(),
		DataDir:        c.Cfg.DataDir,
		MaxSourceBytes: c.Cfg.MaxSourceBytes(),
		Logger:         c.Logger,
	})
}

// RFBClient builds the download client from config.
func (c *CommandContext) RFBClient() *rfb.Client {
	return rfb.NewClient(rfb.Options{
		BaseURL:  c.Cfg.RFB.BaseURL,
		MaxParts: c.Cfg.RFB.MaxParts,
		Retries:  c.Cfg.RFB.Retries,
		Logger:   c.Logger,
	})
}

func openStore(cfg *config.Config, logger *slog.Logger) (*catalog.SQLiteStore, error) {
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := catalog.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func openAdapter(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (adapter.Adapter, error) {
	adapterCfg := cfg.Target.ToAdapterConfig()

	if cfg.Target.Type == "duckdb" && adapterCfg.Path != "" && adapterCfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(adapterCfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	a, err := adapter.New(adapterCfg, logger)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(cmd.Context(), adapterCfg); err != nil {
		return nil, fmt.Errorf("failed to connect to %s target: %w", adapterCfg.Type, err)
	}
	return a, nil
}

// formatDuration renders durations compactly for status lines.
func formatDuration(d time.Duration) string {
	if d >= time.Second {
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Millisecond).String()
}
