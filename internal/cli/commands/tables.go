package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/schemagraph/internal/cli/output"
	"github.com/leapstack-labs/schemagraph/internal/engine"
	"github.com/leapstack-labs/schemagraph/internal/filter"
	"github.com/leapstack-labs/schemagraph/internal/graph"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// TablesOptions holds options for the tables command.
type TablesOptions struct {
	Types        []string
	Hidden       []string
	HideIsolated bool
}

// TableRow is one table in the tables command output.
type TableRow struct {
	ID         core.TableID `json:"id" yaml:"id"`
	Title      string       `json:"title" yaml:"title"`
	Color      string       `json:"color" yaml:"color"`
	Properties int          `json:"properties" yaml:"properties"`
	Outgoing   int          `json:"outgoing" yaml:"outgoing"`
	Incoming   int          `json:"incoming" yaml:"incoming"`
	Visible    bool         `json:"visible" yaml:"visible"`
}

// TablesOutput is the structured output of the tables command.
type TablesOutput struct {
	Source    string     `json:"source" yaml:"source"`
	Tier      string     `json:"tier" yaml:"tier"`
	Capped    bool       `json:"capped" yaml:"capped"`
	Visible   int        `json:"visible" yaml:"visible"`
	Relations int        `json:"relations" yaml:"relations"`
	Tables    []TableRow `json:"tables" yaml:"tables"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	opts := &TablesOptions{}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List workspace tables with relation counts and visibility",
		Long: `Fetch the workspace schema and list every table with its relation
counts and whether it survives the given filters and the plan's table cap.

Without a provider token the built-in demo workspace is listed.

Output adapts to environment:
  - Terminal: styled table
  - Piped/Scripted: JSON

Use --output to override: auto, table, json, yaml`,
		Example: `  # List demo tables
  schemagraph tables

  # List a real workspace
  SCHEMAGRAPH_PROVIDER__TOKEN=secret_... schemagraph tables

  # Only tables with a relation property, dropping isolated ones
  schemagraph tables --type relation --hide-isolated -o yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTables(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Types, "type", nil, "Keep tables having a property of this type (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Hidden, "hide", nil, "Hide a table by id (repeatable)")
	cmd.Flags().BoolVar(&opts.HideIsolated, "hide-isolated", false, "Hide tables without relations")

	return cmd
}

func runTables(cmd *cobra.Command, opts *TablesOptions) error {
	cmdCtx := NewCommandContext(cmd)
	cfg := cmdCtx.Cfg

	source := "demo"
	schema := engine.DemoSchema()
	token := cfg.Provider.Token
	if token != "" {
		client := newSchemaClient(cfg, nil, cmdCtx.Logger)
		fetched, err := client.FetchSchema(cmd.Context(), token)
		if err != nil {
			return fmt.Errorf("failed to fetch schema: %w", err)
		}
		schema = fetched
		source = "provider"
	}

	vis := core.NewVisibilityState()
	for _, t := range opts.Types {
		vis.SelectedPropertyTypes[t] = struct{}{}
	}
	for _, id := range opts.Hidden {
		vis.HiddenTableIDs[id] = struct{}{}
	}
	vis.HideIsolated = opts.HideIsolated

	tier := cfg.Tier()
	connected := token != ""
	visible := filter.ComputeVisible(schema.Tables, schema.Relations, vis, tier, connected)
	idx := graph.NewIndex(schema.Relations)

	out := TablesOutput{
		Source:    source,
		Tier:      string(tier),
		Capped:    filter.IsCapped(len(schema.Tables), tier, connected),
		Visible:   len(visible),
		Relations: idx.EdgeCount(),
		Tables:    make([]TableRow, 0, len(schema.Tables)),
	}
	for _, t := range schema.Tables {
		out.Tables = append(out.Tables, TableRow{
			ID:         t.ID,
			Title:      t.Title,
			Color:      t.Color,
			Properties: len(t.Properties),
			Outgoing:   idx.OutDegree(t.ID),
			Incoming:   idx.InDegree(t.ID),
			Visible:    visible.Has(t.ID),
		})
	}

	r := cmdCtx.Renderer
	if ok, err := r.Structured(out); ok || err != nil {
		return err
	}
	return tablesText(r, out)
}

// tablesText outputs tables in styled text format.
func tablesText(r *output.Renderer, out TablesOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Header(1, fmt.Sprintf("Tables (%d total, %d visible, %d relations)", len(out.Tables), out.Visible, out.Relations))
	r.Println(styles.Muted.Render(fmt.Sprintf("Source: %s, plan: %s", out.Source, out.Tier)))
	r.Println("")

	rows := make([][]any, 0, len(out.Tables))
	for _, t := range out.Tables {
		mark := styles.Success.Render("yes")
		if !t.Visible {
			mark = styles.Muted.Render("no")
		}
		rows = append(rows, []any{
			styles.Swatch(t.Color) + " " + t.Title,
			t.ID,
			t.Properties,
			t.Outgoing,
			t.Incoming,
			mark,
		})
	}
	r.Table([]string{"Table", "ID", "Props", "Out", "In", "Visible"}, rows)

	if out.Capped {
		r.Println("")
		r.Warnf("The free plan shows the first %d tables. Upgrade to see all %d.", core.FreeTierTableLimit, len(out.Tables))
	}
	r.Println("")
	return nil
}

// typeList joins names for display, or "-" when empty.
func typeList(types []string) string {
	if len(types) == 0 {
		return "-"
	}
	return strings.Join(types, ", ")
}
