package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/listingsync/internal/application/importer"
	"github.com/jbctechsolutions/listingsync/internal/domain/outcome"
	"github.com/jbctechsolutions/listingsync/internal/presentation/cli/output"
)

type importOptions struct {
	id      string
	page    int
	all     bool
	filters []string
}

// NewImportCmd creates the import command.
func NewImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import <listing|agent>",
		Short: "Import records from the CRM API",
		Long: `Import listings or agents from the CRM API into the local store.

Exactly one of --id, --page or --all selects what to import. Each record is
matched on its external id and either created or updated in place.

Examples:
  listingsync import listing --id 12345
  listingsync import agent --page 2
  listingsync import listing --all --filter state=live`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "external id of a single record")
	cmd.Flags().IntVar(&opts.page, "page", 0, "index page to import")
	cmd.Flags().BoolVar(&opts.all, "all", false, "import every index page")
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, "API filter as key=value (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("id", "page", "all")
	cmd.MarkFlagsOneRequired("id", "page", "all")

	return cmd
}

func runImport(entityArg string, opts importOptions) error {
	entity, err := parseEntity(entityArg)
	if err != nil {
		return err
	}
	filter, err := parseFilter(opts.filters)
	if err != nil {
		return err
	}
	ctx, formatter, container, err := appRuntime()
	if err != nil {
		return err
	}
	eng := container.Engine()

	switch {
	case opts.id != "":
		o := eng.ImportOne(ctx, entity, opts.id)
		if formatter.IsJSON() {
			if err := formatter.JSON(o); err != nil {
				return err
			}
		} else {
			printOutcome(formatter, o)
		}
		if o.Failed() {
			return fmt.Errorf("import of %s %s failed", entity, opts.id)
		}
		return nil

	case opts.page > 0:
		outcomes := eng.ImportPage(ctx, entity, filter, opts.page)
		var summary outcome.Summary
		for _, o := range outcomes {
			summary.Add(o)
		}
		summary.Pages = 1
		return printBatch(formatter, importer.BatchResult{Outcomes: outcomes, Summary: summary})

	case opts.all:
		return printBatch(formatter, eng.ImportAll(ctx, entity, filter))
	}

	return fmt.Errorf("one of --id, --page or --all is required")
}

// printBatch renders a bulk import and fails when page iteration stopped early.
func printBatch(formatter *output.Formatter, result importer.BatchResult) error {
	if formatter.IsJSON() {
		if err := formatter.JSON(result); err != nil {
			return err
		}
	} else {
		printOutcomeTable(formatter, result.Outcomes)
		s := result.Summary
		formatter.Println("")
		formatter.Println("%d created, %d updated, %d unchanged, %d failed across %d page(s)",
			s.Created, s.Updated, s.Unchanged, s.Failed, s.Pages)
	}
	if result.Summary.Fatal != "" {
		return fmt.Errorf("import stopped: %s", result.Summary.Fatal)
	}
	return nil
}

func printOutcomeTable(formatter *output.Formatter, outcomes []outcome.Outcome) {
	if len(outcomes) == 0 {
		formatter.Info("No records to import")
		return
	}
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{
			o.ExternalID,
			string(o.RecordID),
			formatter.Status(string(o.Status)),
			o.Message,
		})
	}
	formatter.Table(output.TableData{
		Columns: []output.TableColumn{
			{Header: "EXTERNAL ID"},
			{Header: "RECORD"},
			{Header: "STATUS"},
			{Header: "MESSAGE"},
		},
		Rows: rows,
	})
}

// printOutcome renders one outcome in text form.
func printOutcome(formatter *output.Formatter, o outcome.Outcome) {
	formatter.Header(fmt.Sprintf("%s %s", o.EntityType, firstNonEmpty(o.ExternalID, string(o.RecordID))))
	formatter.Item("Direction", string(o.Direction))
	formatter.Item("Status", formatter.Status(string(o.Status)))
	if o.RecordID != "" {
		formatter.Item("Record", string(o.RecordID))
	}
	if o.ExternalID != "" {
		formatter.Item("External ID", o.ExternalID)
	}
	if o.Message != "" {
		formatter.Item("Message", o.Message)
	}
	if len(o.Changed) > 0 {
		formatter.Item("Changed", fmt.Sprintf("%v", o.Changed))
	}
	if !o.Timestamp.IsZero() {
		formatter.Item("At", o.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	for _, w := range o.Warnings {
		formatter.BulletItem(formatter.Colorize(w, output.ColorYellow))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
