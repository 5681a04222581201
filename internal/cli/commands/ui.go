package commands

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/spf13/cobra"

	"github.com/brdatalab/cnpjkit/internal/ui"
)

// UIOptions holds options for the ui command.
type UIOptions struct {
	Listen string
	Watch  bool
}

// NewUICommand creates the ui command.
func NewUICommand() *cobra.Command {
	opts := &UIOptions{}

	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Start the web dashboard",
		Long: `Serve the cnpjkit dashboard: browse the catalog, preview tables, search
companies and kick off dataset loads from the browser. Runs until
interrupted.`,
		Example: `  cnpjkit ui
  cnpjkit ui --listen :9000 --watch=false`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUI(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "Address to listen on (default from config)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", true, "Reload clients when the catalog changes on disk")

	return cmd
}

func runUI(cmd *cobra.Command, opts *UIOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	listen := opts.Listen
	if listen == "" {
		listen = cmdCtx.Cfg.UI.Listen
	}
	watch := opts.Watch && cmdCtx.Cfg.UI.Watch

	server := ui.NewServer(ui.Config{
		Store:         cmdCtx.Store,
		Adapter:       cmdCtx.Adapter,
		Pipeline:      cmdCtx.Pipeline(),
		Listen:        listen,
		Watch:         watch,
		StatePath:     cmdCtx.Cfg.StatePath,
		PreviewLimit:  cmdCtx.Cfg.UI.PreviewLimit,
		SessionSecret: sessionSecret(),
		Logger:        cmdCtx.Logger,
	})

	cmdCtx.Renderer.Printf("Dashboard listening on %s (Ctrl+C to stop)\n", listen)
	return server.Serve(cmd.Context())
}

// sessionSecret generates an ephemeral cookie secret. Sessions only hold
// UI preferences, so losing them across restarts is fine.
func sessionSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "cnpjkit-dev-secret"
	}
	return hex.EncodeToString(b)
}
