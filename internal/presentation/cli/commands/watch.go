package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/listingsync/internal/application/trigger"
	"github.com/jbctechsolutions/listingsync/internal/presentation/cli/output"
)

const metricsShutdownTimeout = 5 * time.Second

type watchOptions struct {
	dir         string
	metricsAddr string
}

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run imports and pushes dropped into the trigger inbox",
		Long: `Watch the inbox directory for trigger files and run each one.

A trigger file is a JSON document such as
  {"entity": "listing", "id": "12345", "action": "import"}

For an import the id is the external id; for a push it is the local record id.
Handled files are removed, failed ones are renamed with a .failed suffix.
Files already present when the watch starts are handled first.

With --metrics-addr and the prometheus metrics backend, the metrics are
served at /metrics while watching.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts)
		},
	}

	cmd.Flags().StringVar(&opts.dir, "dir", "", "inbox directory (default: watch.inbox_dir from config)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")

	return cmd
}

func runWatch(opts watchOptions) error {
	ctx, formatter, container, err := appRuntime()
	if err != nil {
		return err
	}

	svc, err := container.NewTriggerService(opts.dir, func(r trigger.Result) {
		reportTrigger(formatter, r)
	})
	if err != nil {
		return err
	}

	if opts.metricsAddr != "" {
		exposer, ok := container.Metrics().(interface{ Handler() http.Handler })
		if !ok {
			return fmt.Errorf("--metrics-addr needs the prometheus metrics backend")
		}
		stop, err := serveMetrics(ctx, opts.metricsAddr, exposer.Handler())
		if err != nil {
			return err
		}
		defer stop()
		formatter.Info("Serving metrics on %s/metrics", opts.metricsAddr)
	}

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watch: %w", err)
	}
	dir := opts.dir
	if dir == "" {
		dir = container.Config().Watch.InboxDir
	}
	formatter.Info("Watching %s (Ctrl+C to stop)", dir)

	<-ctx.Done()
	return svc.Stop()
}

// serveMetrics listens on addr and returns a function that shuts the server down.
func serveMetrics(ctx context.Context, addr string, handler http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			GetFormatter().Warning("metrics server: %v", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}

func reportTrigger(formatter *output.Formatter, r trigger.Result) {
	if formatter.IsJSON() {
		row := map[string]any{
			"path":   r.Path,
			"entity": r.Trigger.Entity,
			"id":     r.Trigger.ID,
			"action": r.Trigger.Action,
			"status": r.Status,
		}
		if r.Err != nil {
			row["error"] = r.Err.Error()
		}
		formatter.JSON(row)
		return
	}

	subject := fmt.Sprintf("%s %s %s", r.Trigger.Action, r.Trigger.Entity, r.Trigger.ID)
	if r.Err != nil {
		formatter.Error("%s: %v", subject, r.Err)
		return
	}
	formatter.Success("%s: %s", subject, formatter.Status(r.Status))
}
