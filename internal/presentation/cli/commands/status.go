package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var external string

	cmd := &cobra.Command{
		Use:   "status [record-id]",
		Short: "Show the last sync outcome of a record",
		Long: `Show the latest import or push outcome of a local record.

Use --external entity:id for an external record that never reached the local
store, for example after a failed first import.

Examples:
  listingsync status 7
  listingsync status --external listing:12345`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case len(args) == 1 && external != "":
				return fmt.Errorf("give either a record id or --external, not both")
			case len(args) == 1:
				return runStatus(args[0], "")
			case external != "":
				return runStatus("", external)
			default:
				return fmt.Errorf("a record id or --external is required")
			}
		},
	}

	cmd.Flags().StringVar(&external, "external", "", "external record as entity:id")

	return cmd
}

func runStatus(id, external string) error {
	ctx, formatter, container, err := appRuntime()
	if err != nil {
		return err
	}
	eng := container.Engine()

	var (
		o     *outcome.Outcome
		label string
	)
	if external != "" {
		entityArg, externalID, ok := strings.Cut(external, ":")
		if !ok || externalID == "" {
			return fmt.Errorf("invalid --external %q: expected entity:id", external)
		}
		entity, err := parseEntity(entityArg)
		if err != nil {
			return err
		}
		label = fmt.Sprintf("%s %s", entity, externalID)
		o, err = eng.GetLastOutcomeByExternal(ctx, entity, externalID)
		if err != nil {
			return err
		}
	} else {
		label = "record " + id
		o, err = eng.GetLastOutcome(ctx, record.RecordID(id))
		if err != nil {
			return err
		}
	}

	if formatter.IsJSON() {
		return formatter.JSON(o)
	}
	if o == nil {
		formatter.Info("No sync outcome recorded for %s", label)
		return nil
	}
	printOutcome(formatter, *o)
	return nil
}
