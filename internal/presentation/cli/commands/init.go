package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
	"github.com/jbctechsolutions/listingsync/internal/presentation/cli/output"
)

// InitResult holds the result of the init command for JSON output.
type InitResult struct {
	ConfigDir   string `json:"config_dir"`
	ConfigFile  string `json:"config_file"`
	InboxDir    string `json:"inbox_dir"`
	Initialized bool   `json:"initialized"`
}

type initOptions struct {
	dir      string
	force    bool
	defaults bool
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize listingsync configuration",
		Long: `Initialize listingsync configuration.

This command creates the ~/.listingsync/ directory with a config.yaml and the
trigger inbox. It asks for the API endpoint and the record store; pass
--defaults (or -o json) to accept the defaults without prompting.

The API token itself is never written to the file. It is read at run time
from the environment variable named in api.token_env.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dir, "dir", "", "configuration directory (default: ~/.listingsync)")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "overwrite existing configuration")
	cmd.Flags().BoolVar(&opts.defaults, "defaults", false, "write the default configuration without prompting")

	return cmd
}

// prompter handles interactive user input.
type prompter struct {
	reader *bufio.Reader
	out    io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{reader: bufio.NewReader(in), out: out}
}

// prompt asks a question and returns the answer (or default if empty).
func (p *prompter) prompt(question, defaultValue string) (string, error) {
	if defaultValue != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, defaultValue)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}

	answer, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return defaultValue, nil
	}
	return answer, nil
}

func runInit(cmd *cobra.Command, opts initOptions) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	loader, err := config.NewLoader(opts.dir)
	if err != nil {
		return err
	}
	configFile := loader.DefaultConfigPath()
	inboxDir := filepath.Join(loader.ConfigDir(), config.InboxDir)
	result := InitResult{
		ConfigDir:  loader.ConfigDir(),
		ConfigFile: configFile,
		InboxDir:   inboxDir,
	}

	if _, err := os.Stat(configFile); err == nil && !opts.force {
		if formatter.IsJSON() {
			return formatter.JSON(result)
		}
		formatter.Warning("Configuration already exists at %s", configFile)
		formatter.Info("Use --force to overwrite existing configuration")
		return nil
	}

	cfg := config.NewDefaultConfig()
	if !opts.defaults && !formatter.IsJSON() {
		if err := promptConfig(newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()), formatter, cfg); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := loader.Save(cfg, configFile); err != nil {
		return err
	}
	if err := os.MkdirAll(inboxDir, 0750); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}
	result.Initialized = true

	if formatter.IsJSON() {
		return formatter.JSON(result)
	}
	formatter.Success("Configuration written to %s", configFile)
	formatter.Info("Set %s before importing", cfg.API.TokenEnv)
	return nil
}

func promptConfig(p *prompter, formatter *output.Formatter, cfg *config.Config) error {
	formatter.Header("Listingsync Configuration")
	formatter.Println("")

	baseURL, err := p.prompt("CRM API base URL", cfg.API.BaseURL)
	if err != nil {
		return err
	}
	cfg.API.BaseURL = baseURL

	tokenEnv, err := p.prompt("Environment variable holding the API token", cfg.API.TokenEnv)
	if err != nil {
		return err
	}
	cfg.API.TokenEnv = tokenEnv

	kind, err := p.prompt("Record store (sqlite, postgres, memory)", cfg.Store.Kind)
	if err != nil {
		return err
	}
	cfg.Store.Kind = strings.ToLower(kind)

	if cfg.Store.Kind == "postgres" {
		dsn, err := p.prompt("Postgres connection string", "")
		if err != nil {
			return err
		}
		cfg.Store.DSN = dsn
	}
	return nil
}
