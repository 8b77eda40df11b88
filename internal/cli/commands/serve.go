package commands

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/schemagraph/internal/auth"
	"github.com/leapstack-labs/schemagraph/internal/ui"
	"github.com/leapstack-labs/schemagraph/internal/ui/notifier"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Open bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the schemagraph API server",
		Long: `Start an HTTP server exposing per-user graph sessions.

The server provides:
- Sign-in with backend session tokens (cookie or bearer)
- Schema sync from the connected workspace, with demo data as fallback
- Filters, colors, layout and undo/redo, persisted locally per user
- Cloud save with automatic session refresh
- Live status updates over server-sent events
- Prometheus metrics on /metrics`,
		Example: `  # Start on the configured port
  schemagraph serve

  # Start on a custom port and open the browser
  schemagraph serve --port 3000 --open`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().Int("port", 0, "Port to serve on (default: 8765)")
	cmd.Flags().BoolVar(&opts.Open, "open", false, "Open the browser once the server starts")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cmdCtx := NewCommandContext(cmd)
	cfg := cmdCtx.Cfg
	logger := cmdCtx.Logger

	// Flags are folded into config by the root command; a direct
	// invocation still honors --port.
	port := cfg.UI.Port
	if p, _ := cmd.Flags().GetInt("port"); cmd.Flags().Changed("port") && p != 0 {
		port = p
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	notify := notifier.New()

	eng, cloud, cleanup, err := createEngine(cfg, logger, engineOptions{
		registry: registry,
		onChange: notify.Broadcast,
	})
	if err != nil {
		return err
	}
	defer cleanup()

	serverCfg := ui.Config{
		Engine:         eng,
		Port:           port,
		SessionSecret:  cfg.UI.SessionSecret,
		Verifier:       auth.NewVerifier(cfg.Auth.JWTSecret),
		DefaultTier:    cfg.Tier(),
		Notifier:       notify,
		Registry:       registry,
		AllowedOrigins: cfg.UI.AllowedOrigins,
		Logger:         logger,
	}
	if cloud != nil {
		serverCfg.Refresher = cloud.refresher
	} else {
		logger.Info("no cloud backend configured, state is kept locally only")
	}

	server := ui.NewServer(serverCfg)

	url := fmt.Sprintf("http://localhost:%d", port)
	if opts.Open {
		go openBrowser(url)
	}

	r := cmdCtx.Renderer
	r.Printf("Starting schemagraph server on %s\n", url)
	r.Println("Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx)
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}
