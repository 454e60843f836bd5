package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eclipse-efbt/efbt-sub000/internal/cli/output"
	"github.com/eclipse-efbt/efbt-sub000/internal/lineage"
	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// NewLineageCommand creates the lineage command.
func NewLineageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <trail-id>",
		Short: "Assemble the complete lineage graph of a trail",
		Long: `Assemble everything recorded under a trail into one provenance graph:
the schema tables involved, every populated and evaluated table with its
rows and values, and all five kinds of lineage references.

JSON output is the full graph as served by the HTTP API. Text and
markdown output summarize it table by table.`,
		Example: `  # Summarize the graph in the terminal
  trailctl lineage 42

  # Export the full graph
  trailctl lineage 42 -o json > trail-42.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "trail id")
			if err != nil {
				return err
			}
			return runLineage(cmd, id)
		},
	}
}

func runLineage(cmd *cobra.Command, trailID int64) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	graph, err := cmdCtx.Engine.AssembleCompleteLineage(cmd.Context(), trailID)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(graph)
	}
	renderGraph(r, graph)
	return nil
}

func renderGraph(r *output.Renderer, g *lineage.Graph) {
	r.Header(1, fmt.Sprintf("Lineage: trail %d (%s)", g.Trail.ID, g.Trail.Name))
	r.Printf("Schema version %s, generated %s\n\n", g.Metadata.SchemaVersion, g.Metadata.GeneratedAt.Format("2006-01-02 15:04:05"))

	r.Header(2, "Populated Database Tables")
	rows := make([][]string, 0, len(g.PopulatedDatabaseTables))
	for _, pt := range g.PopulatedDatabaseTables {
		values := 0
		for _, row := range pt.Rows {
			values += len(row.Values)
		}
		rows = append(rows, []string{
			strconv.FormatInt(pt.ID, 10), pt.TableName, strconv.Itoa(len(pt.Rows)), strconv.Itoa(values),
		})
	}
	r.Table([]string{"ID", "Table", "Rows", "Values"}, rows)
	r.Println("")

	r.Header(2, "Evaluated Derived Tables")
	rows = make([][]string, 0, len(g.EvaluatedDerivedTables))
	for _, et := range g.EvaluatedDerivedTables {
		functions := 0
		for _, row := range et.Rows {
			functions += len(row.EvaluatedFunctions)
		}
		rows = append(rows, []string{
			strconv.FormatInt(et.ID, 10), et.TableName, strconv.Itoa(len(et.Rows)), strconv.Itoa(functions),
		})
	}
	r.Table([]string{"ID", "Table", "Rows", "Evaluated Functions"}, rows)
	r.Println("")

	rel := g.LineageRelationships
	r.Header(2, "Lineage Relationships")
	r.Table([]string{"Kind", "Edges"}, [][]string{
		{string(core.RefFunctionColumn), strconv.Itoa(len(rel.FunctionColumnReferences))},
		{string(core.RefRowSource), strconv.Itoa(len(rel.DerivedRowSourceReferences))},
		{string(core.RefValueSource), strconv.Itoa(len(rel.EvaluatedFunctionSourceValues))},
		{string(core.RefTableSource), strconv.Itoa(len(rel.TableCreationSourceTables))},
		{string(core.RefTableCreationColumn), strconv.Itoa(len(rel.TableCreationFunctionColumns))},
	})
	r.Println("")

	renderSummaryTable(r, &g.Metadata.TotalCounts)
	renderWarnings(r, g.Metadata.Warnings)
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <trail-id>",
		Short: "Show record counts for a trail",
		Example: `  trailctl summary 42
  trailctl summary 42 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "trail id")
			if err != nil {
				return err
			}

			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			sum, err := cmdCtx.Engine.Summarize(cmd.Context(), id)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(sum)
			}
			renderSummaryTable(r, sum)
			return nil
		},
	}
}

func renderSummaryTable(r *output.Renderer, s *core.TrailSummary) {
	r.Header(2, "Summary")
	r.Table([]string{"Count", "Value"}, [][]string{
		{"database_tables", strconv.Itoa(s.DatabaseTables)},
		{"derived_tables", strconv.Itoa(s.DerivedTables)},
		{"database_rows", strconv.Itoa(s.DatabaseRows)},
		{"derived_rows", strconv.Itoa(s.DerivedRows)},
		{"total_rows", strconv.Itoa(s.TotalRows)},
		{"column_values", strconv.Itoa(s.ColumnValues)},
		{"evaluated_functions", strconv.Itoa(s.EvaluatedFunctions)},
		{"has_lineage_data", strconv.FormatBool(s.HasLineageData)},
	})
}

func renderWarnings(r *output.Renderer, warnings []lineage.Warning) {
	for _, w := range warnings {
		if len(w.Path) > 0 {
			r.Warnf("%s: %s (%s)", w.Kind, w.Message, strings.Join(w.Path, " -> "))
			continue
		}
		r.Warnf("%s: %s", w.Kind, w.Message)
	}
}

// NewTraceCommand creates the trace command.
func NewTraceCommand() *cobra.Command {
	opts := &lineage.TraceOptions{}

	cmd := &cobra.Command{
		Use:   "trace <trail-id> <object-type> <object-id>",
		Short: "List what a row or value was derived from, or fed into",
		Long: `Walk row and value references from one recorded instance. Upstream
lists every artifact it was transitively derived from; downstream lists
every artifact transitively computed from it. Direct neighbours are
marked.

Object types are databaserow, derivedrow, databasecolumnvalue and
evaluatedfunction (case-insensitive).`,
		Example: `  # Where did evaluated function 17 get its inputs?
  trailctl trace 42 evaluatedfunction 17

  # What is affected if column value 5 was wrong?
  trailctl trace 42 databasecolumnvalue 5 --downstream --upstream=false`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			trailID, err := parseID(args[0], "trail id")
			if err != nil {
				return err
			}
			objectType, err := core.ParseObjectType(args[1])
			if err != nil {
				return err
			}
			objectID, err := parseID(args[2], "object id")
			if err != nil {
				return err
			}
			if !opts.Upstream && !opts.Downstream {
				return fmt.Errorf("nothing to trace: enable --upstream or --downstream")
			}
			return runTrace(cmd, trailID, objectType, objectID, *opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Upstream, "upstream", true, "List what the object was derived from")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", false, "List what was derived from the object")

	return cmd
}

func runTrace(cmd *cobra.Command, trailID int64, objectType core.ObjectType, objectID int64, opts lineage.TraceOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	trace, err := cmdCtx.Engine.Trace(cmd.Context(), trailID, objectType, objectID, opts)
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(trace)
	}

	subject := fmt.Sprintf("%s %d (%s)", trace.Object.Type, trace.Object.ID, trace.Object.Label)
	if opts.Upstream {
		r.Header(1, "Upstream of "+subject)
		r.Table(traceHeaders, traceRows(trace.Upstream))
	}
	if opts.Downstream {
		r.Header(1, "Downstream of "+subject)
		r.Table(traceHeaders, traceRows(trace.Downstream))
	}
	renderWarnings(r, trace.Warnings)
	return nil
}

var traceHeaders = []string{"Type", "ID", "Label", "Direct"}

func traceRows(refs []lineage.ObjectRef) [][]string {
	rows := make([][]string, 0, len(refs))
	for _, ref := range refs {
		direct := ""
		if ref.Direct {
			direct = "yes"
		}
		rows = append(rows, []string{string(ref.Type), strconv.FormatInt(ref.ID, 10), ref.Label, direct})
	}
	return rows
}
