package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/listingsync/internal/domain/mapping"
	"github.com/jbctechsolutions/listingsync/internal/presentation/cli/output"
)

// MappingRow is one rule of the mapping command's JSON output.
type MappingRow struct {
	Target    string   `json:"target"`
	Source    string   `json:"source,omitempty"`
	Alt       []string `json:"alt,omitempty"`
	Kind      string   `json:"kind"`
	Numeric   string   `json:"numeric,omitempty"`
	Serialize bool     `json:"serialize,omitempty"`
	PullOnly  bool     `json:"pull_only,omitempty"`
	Derived   bool     `json:"derived,omitempty"`
}

// NewMappingCmd creates the mapping command.
func NewMappingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mapping <listing|agent>",
		Short: "Show the active field mapping of an entity",
		Long: `Print the mapping table used for an entity after configured overrides
have been applied. Computed targets are produced outside the table and are
shown for reference.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMapping(args[0])
		},
	}
}

func runMapping(entityArg string) error {
	entity, err := parseEntity(entityArg)
	if err != nil {
		return err
	}
	_, formatter, container, err := appRuntime()
	if err != nil {
		return err
	}
	table, err := container.Engine().Table(entity)
	if err != nil {
		return err
	}

	rows := mappingRows(table)
	if formatter.IsJSON() {
		return formatter.JSON(rows)
	}

	data := output.TableData{
		Columns: []output.TableColumn{
			{Header: "TARGET"},
			{Header: "SOURCE"},
			{Header: "KIND"},
			{Header: "FLAGS"},
		},
	}
	for _, r := range rows {
		source := r.Source
		if len(r.Alt) > 0 {
			source += " (" + strings.Join(r.Alt, ", ") + ")"
		}
		if r.Derived {
			source = formatter.Dim("derived")
		}
		kind := r.Kind
		if r.Numeric != "" {
			kind += "/" + r.Numeric
		}
		data.Rows = append(data.Rows, []string{r.Target, source, kind, ruleFlags(r)})
	}
	return formatter.Table(data)
}

func mappingRows(table *mapping.Table) []MappingRow {
	rules := table.Rules()
	rows := make([]MappingRow, 0, len(rules))
	for _, r := range rules {
		rows = append(rows, MappingRow{
			Target:    r.Target,
			Source:    r.Source,
			Alt:       r.Alt,
			Kind:      string(r.Kind),
			Numeric:   string(r.Numeric),
			Serialize: r.Serialize,
			PullOnly:  r.PullOnly,
			Derived:   r.IsDerived(),
		})
	}
	return rows
}

func ruleFlags(r MappingRow) string {
	var flags []string
	if r.Serialize {
		flags = append(flags, "serialize")
	}
	if r.PullOnly {
		flags = append(flags, "pull-only")
	}
	return strings.Join(flags, ",")
}
