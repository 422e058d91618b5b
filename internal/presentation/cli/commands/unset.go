package commands

import (
	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/listingsync/internal/domain/record"
)

// NewUnsetCmd creates the unset command.
func NewUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unset <record-id> <field>...",
		Short: "Delete fields from a local record",
		Long: `Delete one or more fields from a local record. Fields maintained by the
sync engine itself, such as the external id and the last sync time, cannot be
unset.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnset(args[0], args[1:])
		},
	}
}

func runUnset(id string, keys []string) error {
	ctx, formatter, container, err := appRuntime()
	if err != nil {
		return err
	}
	if err := container.Engine().UnsetFields(ctx, record.RecordID(id), keys...); err != nil {
		return err
	}
	if formatter.IsJSON() {
		return formatter.JSON(map[string]any{"record_id": id, "unset": keys})
	}
	formatter.Success("Unset %d field(s) on record %s", len(keys), id)
	return nil
}

// NewGalleryCmd creates the gallery command group.
func NewGalleryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gallery",
		Short: "Manage record galleries",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <record-id> <media-id>",
		Short: "Detach one asset from a record's gallery",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGalleryRemove(args[0], args[1])
		},
	})

	return cmd
}

func runGalleryRemove(id, mediaID string) error {
	ctx, formatter, container, err := appRuntime()
	if err != nil {
		return err
	}
	if err := container.Engine().RemoveGalleryItem(ctx, record.RecordID(id), record.MediaID(mediaID)); err != nil {
		return err
	}
	if formatter.IsJSON() {
		return formatter.JSON(map[string]string{"record_id": id, "removed": mediaID})
	}
	formatter.Success("Removed media %s from record %s", mediaID, id)
	return nil
}
