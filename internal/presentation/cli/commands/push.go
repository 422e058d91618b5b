package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// PushResult holds the result of the push command for JSON output.
type PushResult struct {
	Entity   record.EntityType `json:"entity"`
	RecordID record.RecordID   `json:"record_id"`
	Accepted bool              `json:"accepted"`
	Error    string            `json:"error,omitempty"`
}

// NewPushCmd creates the push command.
func NewPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <listing|agent> <record-id>",
		Short: "Push a local record to the CRM API",
		Long: `Build the API payload of a local record and send it to the CRM.

The record must carry the external id it was imported with. The attempt is
recorded as the record's latest sync outcome whether or not the API accepts it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(args[0], args[1])
		},
	}
}

func runPush(entityArg, id string) error {
	entity, err := parseEntity(entityArg)
	if err != nil {
		return err
	}
	ctx, formatter, container, err := appRuntime()
	if err != nil {
		return err
	}

	accepted, pushErr := container.Engine().PushToAPI(ctx, entity, record.RecordID(id))
	result := PushResult{Entity: entity, RecordID: record.RecordID(id), Accepted: accepted}
	if pushErr != nil {
		result.Error = pushErr.Error()
	}

	if formatter.IsJSON() {
		if err := formatter.JSON(result); err != nil {
			return err
		}
	} else if accepted {
		formatter.Success("Pushed %s %s", entity, id)
	}

	if pushErr != nil {
		return pushErr
	}
	if !accepted {
		return fmt.Errorf("push of %s %s was not accepted", entity, id)
	}
	return nil
}
