package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/autopsy/internal/live"
	"github.com/roach88/autopsy/internal/report"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Host     string
	Port     int
	Interval time.Duration
	Orders   int

	// Ready, when set, receives the bound address once the server listens.
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Stream a live report over WebSocket",
		Long: `Start the live report server and stream the demo workload to it.

Clients connect to /ws and receive the full snapshot followed by one
update per observation. The page at / renders the stream. Host and port
default to the live section of the config.

Examples:
  autopsy serve
  autopsy serve --port 9000 --interval 500ms`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "listen host (default: live.host)")
	cmd.Flags().IntVar(&opts.Port, "port", -1, "listen port (default: live.port)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", time.Second, "delay between demo batches (0 disables the workload)")
	cmd.Flags().IntVar(&opts.Orders, "orders", 3, "orders per demo batch")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := opts.logger(cmd.ErrOrStderr())

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	rc := cfg.ReportConfiguration()
	rc.LiveMode = true
	if opts.Host != "" {
		rc.LiveHost = opts.Host
	}
	if opts.Port >= 0 {
		rc.LivePort = opts.Port
	}

	ln, err := net.Listen("tcp", live.Addr(rc))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start live server", err)
	}

	var r *report.Report
	hub := live.NewHub(func() *report.Snapshot { return r.Export() }, live.WithHubLogger(logger))
	r = report.New(rc, report.WithLogger(logger), report.WithSink(hub))
	r.Init(report.InitOptions{})
	srv := live.NewServer(hub, live.WithLogger(logger))

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	addr := ln.Addr().String()
	logger.Info("live server listening", "url", "http://"+addr)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving live report on http://%s\n", addr)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	if opts.Interval > 0 {
		go streamWorkload(ctx, r, opts.Interval, opts.Orders, logger)
	}

	if err := srv.Serve(ctx, ln); err != nil {
		return WrapExitError(ExitFailure, "live server error", err)
	}
	logger.Info("live server stopped gracefully", "dropped_updates", hub.Dropped())
	return nil
}

// streamWorkload records a batch of demo orders every interval until ctx is
// done.
func streamWorkload(ctx context.Context, r *report.Report, interval time.Duration, orders int, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for batch := 1; ; batch++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		processOrders(r, orders)
		logger.Debug("demo batch recorded", "batch", batch, "events", r.Len())
	}
}
