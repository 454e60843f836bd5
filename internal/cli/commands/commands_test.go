package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clitest "github.com/eclipse-efbt/efbt-sub000/internal/cli/testutil"
	"github.com/eclipse-efbt/efbt-sub000/internal/lineage"
	"github.com/eclipse-efbt/efbt-sub000/internal/testutil"
	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

func TestNewVersionCommand(t *testing.T) {
	for _, version := range []string{"0.1.0", "1.2.3", "dev"} {
		t.Run(version, func(t *testing.T) {
			cmd := NewVersionCommand(version)
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)

			require.NoError(t, cmd.Execute())
			assert.Contains(t, buf.String(), "trailctl v"+version)
			assert.Contains(t, buf.String(), "lineage")
		})
	}
}

func TestCommandConstructors(t *testing.T) {
	tests := []struct {
		cmd   func() *cobra.Command
		use   string
		flags []string
	}{
		{NewMigrateCommand, "migrate", nil},
		{NewServeCommand, "serve", []string{"addr", "watch-schema"}},
		{NewIngestCommand, "ingest <file|->", nil},
		{NewLineageCommand, "lineage <trail-id>", nil},
		{NewSummaryCommand, "summary <trail-id>", nil},
		{NewTraceCommand, "trace <trail-id> <object-type> <object-id>", []string{"upstream", "downstream"}},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			cmd := tt.cmd()
			assert.Equal(t, tt.use, cmd.Use)
			assert.NotEmpty(t, cmd.Short, "Short should not be empty")
			for _, flag := range tt.flags {
				assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestTrailSubcommands(t *testing.T) {
	cmd := NewTrailCommand()

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"create", "list", "show", "delete"}, names)

	list, _, err := cmd.Find([]string{"list"})
	require.NoError(t, err)
	assert.NotNil(t, list.Flags().Lookup("limit"))
	assert.NotNil(t, list.Flags().Lookup("offset"))

	create, _, err := cmd.Find([]string{"create"})
	require.NoError(t, err)
	assert.NotNil(t, create.Flags().Lookup("context"))
	assert.NotNil(t, create.Flags().Lookup("context-json"))
}

func TestParseID(t *testing.T) {
	id, err := parseID("42", "trail id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-3", "4x"} {
		_, err := parseID(bad, "trail id")
		assert.Error(t, err, bad)
	}
}

func sampleGraph() *lineage.Graph {
	v := 10.0
	return &lineage.Graph{
		Trail: core.Trail{ID: 7, Name: "nightly"},
		PopulatedDatabaseTables: []lineage.PopulatedTableView{{
			ID: 1, TableID: testutil.TableDT1, TableName: "DT1", TrailID: 7,
			Rows: []lineage.DatabaseRowView{{
				ID: 1, RowIdentifier: "1", PopulatedTableID: 1,
				Values: []lineage.ValueView{{ID: 1, Value: &v, ColumnID: testutil.FieldF1, ColumnName: "F1", RowID: 1}},
			}},
		}},
		EvaluatedDerivedTables: []lineage.EvaluatedTableView{},
		LineageRelationships: lineage.Relationships{
			DerivedRowSourceReferences: []lineage.DerivedRowSourceReference{{ID: 1}},
		},
		Metadata: lineage.Metadata{
			GeneratedAt:   time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC),
			SchemaVersion: "test-1",
			TotalCounts:   core.TrailSummary{DatabaseTables: 1, DatabaseRows: 1, ColumnValues: 1}.Finalize(),
			Warnings: []lineage.Warning{{
				Kind:    lineage.WarningCycle,
				Message: "row references form a cycle",
				Path:    []string{"derivedrow:1", "derivedrow:2", "derivedrow:1"},
			}},
		},
	}
}

func TestRenderGraph_Markdown(t *testing.T) {
	tr := clitest.NewTestRendererMarkdown()
	renderGraph(tr.Renderer, sampleGraph())

	out := tr.Output()
	clitest.AssertValidMarkdown(t, out)
	clitest.AssertNoANSI(t, out)
	assert.Contains(t, out, "# Lineage: trail 7 (nightly)")
	assert.Contains(t, out, "Schema version test-1, generated 2024-12-31 23:00:00")
	assert.Contains(t, out, "| 1 | DT1 | 1 | 1 |")
	assert.Contains(t, out, "| row_source | 1 |")
	assert.Contains(t, out, "| has_lineage_data | true |")
	assert.Contains(t, out, "## Evaluated Derived Tables\n\n(0 rows)")

	assert.Equal(t,
		"Warning: cycle: row references form a cycle (derivedrow:1 -> derivedrow:2 -> derivedrow:1)\n",
		tr.ErrorOutput())
}

func TestRenderGraph_Text(t *testing.T) {
	tr := clitest.NewTestRendererText()
	renderGraph(tr.Renderer, sampleGraph())

	out := tr.Output()
	assert.Contains(t, out, "Lineage: trail 7 (nightly)\n----")
	assert.Contains(t, out, "DT1")
	assert.NotContains(t, out, "| --- |")
}

func TestRenderTrail(t *testing.T) {
	trail := &core.Trail{
		ID:               3,
		Name:             "adhoc",
		CreatedAt:        time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		ExecutionContext: map[string]any{"env": "test"},
	}

	tr := clitest.NewTestRenderer("json", false)
	require.NoError(t, renderTrail(tr.Renderer, trail, nil))
	assert.Contains(t, tr.Output(), `"name": "adhoc"`)
	assert.NotContains(t, tr.Output(), "summary")

	tr = clitest.NewTestRendererMarkdown()
	sum := core.TrailSummary{}.Finalize()
	require.NoError(t, renderTrail(tr.Renderer, trail, &sum))
	assert.Contains(t, tr.Output(), `| Execution Context | {"env":"test"} |`)
	assert.Contains(t, tr.Output(), "| has_lineage_data | false |")
}

func TestCompactJSON(t *testing.T) {
	assert.Equal(t, "{}", compactJSON(nil))
	assert.Equal(t, `{"a":1,"b":"x"}`, compactJSON(map[string]any{"b": "x", "a": 1}))
}
