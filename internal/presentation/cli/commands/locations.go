package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/listingsync/internal/presentation/cli/output"
)

// NewLocationsCmd creates the locations command.
func NewLocationsCmd() *cobra.Command {
	var perPage int

	cmd := &cobra.Command{
		Use:   "locations <query>...",
		Short: "Search CRM locations by name",
		Long: `Look up locations in the CRM by free text. The ids returned are the values
expected in a listing's location field.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocations(strings.Join(args, " "), perPage)
		},
	}

	cmd.Flags().IntVar(&perPage, "per-page", 20, "maximum number of results (1-100)")

	return cmd
}

func runLocations(query string, perPage int) error {
	ctx, formatter, container, err := appRuntime()
	if err != nil {
		return err
	}

	locs, err := container.Engine().SearchLocations(ctx, query, perPage)
	if err != nil {
		return err
	}
	if formatter.IsJSON() {
		return formatter.JSON(locs)
	}
	if len(locs) == 0 {
		formatter.Info("No locations match %q", query)
		return nil
	}

	data := output.TableData{
		Columns: []output.TableColumn{
			{Header: "ID", Align: output.AlignRight},
			{Header: "NAME"},
			{Header: "TYPE"},
			{Header: "PATH"},
		},
	}
	for _, l := range locs {
		data.Rows = append(data.Rows, []string{l.ID, l.Name, l.Type, l.Path})
	}
	return formatter.Table(data)
}
