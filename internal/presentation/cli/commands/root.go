// Package commands implements the CLI commands for listingsync.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/listingsync/internal/application"
	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/listingsync/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GlobalFlags holds the global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
}

// AppContext holds the application runtime context.
type AppContext struct {
	Config     *config.Config
	Formatter  *output.Formatter
	Flags      *GlobalFlags
	Container  *application.Container
	ctx        context.Context
	cancelFunc context.CancelFunc
}

var (
	globalFlags GlobalFlags
	appCtx      *AppContext
	appCtxMu    sync.RWMutex // Protects appCtx for thread-safe access
)

// NewRootCmd creates the root command for the listingsync CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd()
}

// newRootCmd builds the command tree. Container options let tests swap in
// fake collaborators.
func newRootCmd(opts ...application.Option) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "listingsync",
		Short: "Listingsync - keep CRM listings and agents in sync with a local store",
		Long: `Listingsync pulls listings and agents from the property CRM API into a
local record store and pushes local edits back.

Key features:
  • Field-by-field mapping with sanitization of every value
  • Create-or-update matching on the external id
  • Per-record sync status with the last outcome of each attempt
  • Trigger-file inbox for event-driven imports and pushes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip initialization for help, version, init, and completion commands
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" || cmd.Name() == "init" {
				return nil
			}
			return initializeApp(cmd, opts...)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (default: ~/.listingsync/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewInitCmd())
	rootCmd.AddCommand(NewImportCmd())
	rootCmd.AddCommand(NewPushCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewUnsetCmd())
	rootCmd.AddCommand(NewGalleryCmd())
	rootCmd.AddCommand(NewMappingCmd())
	rootCmd.AddCommand(NewLocationsCmd())
	rootCmd.AddCommand(NewWatchCmd())

	return rootCmd
}

// newFormatter creates a formatter for cmd's writers honoring the output flag.
func newFormatter(cmd *cobra.Command) (*output.Formatter, error) {
	format, err := output.ParseFormat(globalFlags.Output)
	if err != nil {
		return nil, err
	}
	return output.NewFormatter(
		output.WithWriter(cmd.OutOrStdout()),
		output.WithMessageWriter(cmd.ErrOrStderr()),
		output.WithFormat(format),
		output.WithColor(format != output.FormatJSON && output.IsColorSupported()),
	), nil
}

// initializeApp initializes the application context.
func initializeApp(cmd *cobra.Command, opts ...application.Option) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(globalFlags.ConfigFile)
	if err != nil {
		return err
	}

	container, err := application.NewContainer(cfg, globalFlags.Verbose, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())

	appCtxMu.Lock()
	appCtx = &AppContext{
		Config:     cfg,
		Formatter:  formatter,
		Flags:      &globalFlags,
		Container:  container,
		ctx:        ctx,
		cancelFunc: cancel,
	}
	appCtxMu.Unlock()

	return nil
}

// loadConfig loads configuration from the specified file or default
// location. An explicitly named file must exist.
func loadConfig(configPath string) (*config.Config, error) {
	loader, err := config.NewLoader("")
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}

	if configPath != "" {
		return loader.LoadFromFile(configPath)
	}
	return loader.Load("")
}

// GetAppContext returns the current application context.
// Returns nil if the app hasn't been initialized.
func GetAppContext() *AppContext {
	appCtxMu.RLock()
	defer appCtxMu.RUnlock()
	return appCtx
}

// GetFormatter returns the output formatter.
// Creates a default formatter if app context is not initialized.
func GetFormatter() *output.Formatter {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Formatter
	}
	return output.NewFormatter()
}

// GetContainer returns the application container.
// Returns nil if the app hasn't been initialized.
func GetContainer() *application.Container {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Container
	}
	return nil
}

// appRuntime returns the context, formatter and container of an
// initialized command.
func appRuntime() (context.Context, *output.Formatter, *application.Container, error) {
	app := GetAppContext()
	if app == nil || app.Container == nil {
		return nil, nil, nil, fmt.Errorf("application not initialized")
	}
	return app.ctx, app.Formatter, app.Container, nil
}

// Shutdown cancels running work and closes the container.
func Shutdown() {
	appCtxMu.Lock()
	defer appCtxMu.Unlock()

	if appCtx == nil {
		return
	}
	if appCtx.cancelFunc != nil {
		appCtx.cancelFunc()
	}
	if appCtx.Container != nil {
		if err := appCtx.Container.Close(); err != nil {
			appCtx.Formatter.Warning("shutdown: %v", err)
		}
	}
	appCtx = nil
}

// parseEntity parses a command's entity argument.
func parseEntity(s string) (record.EntityType, error) {
	return record.ParseEntityType(s)
}

// parseFilter turns key=value flag values into an API filter.
func parseFilter(pairs []string) (ports.Filter, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filter := make(ports.Filter, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", p)
		}
		filter[k] = strings.TrimSpace(v)
	}
	return filter, nil
}

// Execute runs the root command with graceful shutdown support.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		rootCmd := NewRootCmd()
		errChan <- rootCmd.ExecuteContext(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			GetFormatter().Error("%s", err.Error())
			Shutdown()
			os.Exit(1)
		}
	case <-ctx.Done():
		GetFormatter().Warning("Received signal, shutting down...")
		// Let the running command observe the cancellation before closing.
		<-errChan
		Shutdown()
		os.Exit(130)
	}

	Shutdown()
}
