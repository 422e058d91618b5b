package commands

import (
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/listingsync/internal/adapters/store"
	"github.com/jbctechsolutions/listingsync/internal/application/trigger"
)

// VersionInfo holds version information for JSON output.
type VersionInfo struct {
	Version   string   `json:"version"`
	GitCommit string   `json:"git_commit"`
	BuildDate string   `json:"build_date"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	Stores    []string `json:"stores"`
	Actions   []string `json:"trigger_actions"`
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the version and build of listingsync together with the record
store backends compiled into this binary and the trigger actions it accepts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, short)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")

	return cmd
}

func runVersion(cmd *cobra.Command, short bool) error {
	formatter, err := newFormatter(cmd)
	if err != nil {
		return err
	}

	if short {
		if formatter.IsJSON() {
			return formatter.JSON(map[string]string{"version": Version})
		}
		formatter.Println("%s", Version)
		return nil
	}

	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Stores:    store.Kinds(),
		Actions:   []string{trigger.ActionImport, trigger.ActionPush},
	}

	if formatter.IsJSON() {
		return formatter.JSON(info)
	}

	formatter.Header("Listingsync " + info.Version)
	formatter.Item("commit", info.GitCommit)
	formatter.Item("built", info.BuildDate)
	formatter.Item("go", info.GoVersion)
	formatter.Item("platform", info.Platform)
	formatter.Item("stores", strings.Join(info.Stores, ", "))
	formatter.Item("triggers", strings.Join(info.Actions, ", "))

	return nil
}
