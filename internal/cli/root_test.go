package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-efbt/efbt-sub000/internal/cli/config"
	clitest "github.com/eclipse-efbt/efbt-sub000/internal/cli/testutil"
	"github.com/eclipse-efbt/efbt-sub000/internal/ingest"
	"github.com/eclipse-efbt/efbt-sub000/internal/lineage"
	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

const runDocument = `trail:
  name: nightly
  execution_context:
    job: finrep
events:
  - op: populated_table
    ref: dt1
    args: {table_id: 1}
  - op: row
    ref: r1
    args: {table: $dt1, row_identifier: "1"}
  - op: column_value
    ref: v1
    args: {row: $r1, column_id: 11, value: 10}
  - op: evaluated_table
    ref: dd1
    args: {table_id: 2}
  - op: derived_row
    ref: d1
    args: {table: $dd1, row_identifier: "1"}
  - op: evaluated_function
    ref: f1
    args: {row: $d1, function_id: 21, value: 20}
  - op: value_source_ref
    args: {source: $f1, target_type: databasecolumnvalue, target: $v1}
  - op: row_source_ref
    args: {source: $d1, target_type: databaserow, target: $r1}
  - op: function_column_ref
    args: {source: 21, target_type: databasefield, target: 11}
`

type result struct {
	stdout string
	stderr string
	err    error
}

func execute(t *testing.T, p *clitest.TestProject, stdin string, args ...string) result {
	t.Helper()
	config.ResetConfig()

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", p.ConfigPath}, args...))

	err := cmd.Execute()
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

func ingestRun(t *testing.T, p *clitest.TestProject) *ingest.Result {
	t.Helper()
	docPath := p.WriteFile(t, "run.yaml", runDocument)

	res := execute(t, p, "", "ingest", docPath, "-o", "json")
	require.NoError(t, res.err, res.stderr)

	var out ingest.Result
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	return &out
}

func TestMigrate(t *testing.T) {
	p := clitest.SetupTestProject(t)

	res := execute(t, p, "", "migrate", "-o", "json")
	require.NoError(t, res.err)

	var out struct {
		Driver  string `json:"driver"`
		Version int64  `json:"version"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))
	assert.Equal(t, "sqlite", out.Driver)
	assert.Positive(t, out.Version)
	assert.FileExists(t, p.StorePath)
}

func TestIngestAndQuery(t *testing.T) {
	p := clitest.SetupTestProject(t)
	ing := ingestRun(t, p)
	assert.Equal(t, 9, ing.Applied)
	trailID := strconv.FormatInt(ing.TrailID, 10)

	t.Run("summary", func(t *testing.T) {
		res := execute(t, p, "", "summary", trailID, "-o", "json")
		require.NoError(t, res.err)

		var sum core.TrailSummary
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &sum))
		assert.Equal(t, core.TrailSummary{
			DatabaseTables:     1,
			DerivedTables:      1,
			TotalRows:          2,
			DatabaseRows:       1,
			DerivedRows:        1,
			ColumnValues:       1,
			EvaluatedFunctions: 1,
			HasLineageData:     true,
		}, sum)
	})

	t.Run("lineage json", func(t *testing.T) {
		res := execute(t, p, "", "lineage", trailID, "-o", "json")
		require.NoError(t, res.err)

		var g lineage.Graph
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &g))
		assert.Equal(t, "nightly", g.Trail.Name)
		assert.Equal(t, "finrep", g.Trail.ExecutionContext["job"])
		require.Len(t, g.PopulatedDatabaseTables, 1)
		assert.Equal(t, "DT1", g.PopulatedDatabaseTables[0].TableName)
		assert.Len(t, g.LineageRelationships.EvaluatedFunctionSourceValues, 1)
		assert.Len(t, g.LineageRelationships.DerivedRowSourceReferences, 1)
		assert.Len(t, g.LineageRelationships.FunctionColumnReferences, 1)
		assert.Empty(t, g.Metadata.Warnings)
	})

	t.Run("lineage markdown", func(t *testing.T) {
		res := execute(t, p, "", "lineage", trailID, "-o", "markdown")
		require.NoError(t, res.err)
		clitest.AssertValidMarkdown(t, res.stdout)
		clitest.AssertNoANSI(t, res.stdout)
		assert.Contains(t, res.stdout, "# Lineage: trail "+trailID+" (nightly)")
		assert.Contains(t, res.stdout, "| DT1 |")
		assert.Contains(t, res.stdout, "| value_source | 1 |")
	})

	t.Run("trace", func(t *testing.T) {
		fn := strconv.FormatInt(ing.Refs["f1"], 10)
		res := execute(t, p, "", "trace", trailID, "EvaluatedFunction", fn, "-o", "json")
		require.NoError(t, res.err)

		var tr lineage.Trace
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &tr))
		assert.Equal(t, core.ObjectEvaluatedFunction, tr.Object.Type)
		assert.Contains(t, tr.Upstream, lineage.ObjectRef{
			Type:   core.ObjectDatabaseColumnValue,
			ID:     ing.Refs["v1"],
			Label:  "F1",
			Direct: true,
		})
		assert.Nil(t, tr.Downstream)
	})

	t.Run("trace downstream", func(t *testing.T) {
		v := strconv.FormatInt(ing.Refs["v1"], 10)
		res := execute(t, p, "", "trace", trailID, "databasecolumnvalue", v, "--downstream", "--upstream=false", "-o", "json")
		require.NoError(t, res.err)

		var tr lineage.Trace
		require.NoError(t, json.Unmarshal([]byte(res.stdout), &tr))
		assert.Nil(t, tr.Upstream)
		assert.Contains(t, tr.Downstream, lineage.ObjectRef{
			Type:   core.ObjectEvaluatedFunction,
			ID:     ing.Refs["f1"],
			Label:  "fn1",
			Direct: true,
		})
	})

	t.Run("trace text both directions", func(t *testing.T) {
		v := strconv.FormatInt(ing.Refs["v1"], 10)
		res := execute(t, p, "", "trace", trailID, "databasecolumnvalue", v, "--downstream", "-o", "text")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "Upstream of databasecolumnvalue "+v)
		assert.Contains(t, res.stdout, "Downstream of databasecolumnvalue "+v)
	})

	t.Run("trace with no direction", func(t *testing.T) {
		res := execute(t, p, "", "trace", trailID, "databasecolumnvalue", "1", "--upstream=false")
		require.Error(t, res.err)
		assert.Contains(t, res.err.Error(), "nothing to trace")
	})

	t.Run("trail show text", func(t *testing.T) {
		res := execute(t, p, "", "trail", "show", trailID, "-o", "text")
		require.NoError(t, res.err)
		assert.Contains(t, res.stdout, "nightly")
		assert.Contains(t, res.stdout, "total_rows")
	})
}

func TestTrailLifecycle(t *testing.T) {
	p := clitest.SetupTestProject(t)

	res := execute(t, p, "", "trail", "create", "adhoc", "--context", "env=test", "-o", "json")
	require.NoError(t, res.err, res.stderr)
	var created core.Trail
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &created))
	assert.Equal(t, "adhoc", created.Name)
	assert.Equal(t, map[string]any{"env": "test"}, created.ExecutionContext)

	res = execute(t, p, "", "trail", "list", "-o", "json")
	require.NoError(t, res.err)
	var listed struct {
		Trails []core.Trail `json:"trails"`
		Limit  int          `json:"limit"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &listed))
	require.Len(t, listed.Trails, 1)
	assert.Equal(t, core.DefaultPageLimit, listed.Limit)

	id := strconv.FormatInt(created.ID, 10)
	res = execute(t, p, "", "trail", "delete", id)
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Deleted trail "+id)

	res = execute(t, p, "", "summary", id)
	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, core.ErrNotFound)
}

func TestIngestFromStdinReportsFailingEvent(t *testing.T) {
	p := clitest.SetupTestProject(t)

	doc := `{"trail": {"name": "broken"}, "events": [
		{"op": "populated_table", "ref": "t", "args": {"table_id": 1}},
		{"op": "row", "ref": "r", "args": {"table": "$t", "row_identifier": "1"}},
		{"op": "column_value", "args": {"row": "$r", "column_id": 31, "value": 1}}
	]}`
	res := execute(t, p, doc, "ingest", "-", "-o", "text")
	require.Error(t, res.err)

	var evErr *ingest.EventError
	require.ErrorAs(t, res.err, &evErr)
	assert.Equal(t, 2, evErr.Index)
	assert.ErrorIs(t, res.err, core.ErrUnknownColumn)
	assert.Contains(t, res.stdout, "2 of 3")
}

func TestSchemaCommands(t *testing.T) {
	p := clitest.SetupTestProject(t)

	res := execute(t, p, "", "schema", "show", "-o", "markdown")
	require.NoError(t, res.err)
	clitest.AssertValidMarkdown(t, res.stdout)
	assert.Contains(t, res.stdout, "# Schema test-1")
	assert.Contains(t, res.stdout, "### DD1.fn1")

	res = execute(t, p, "", "schema", "validate", "-o", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"valid": true`)

	res = execute(t, p, "version: bad\ndatabase_tables:\n  - id: 0\n    name: X\n", "schema", "validate", "-")
	require.Error(t, res.err)
}

func TestFlagsOverrideConfig(t *testing.T) {
	p := clitest.SetupTestProject(t)
	other := p.WriteFile(t, "other.yaml", strings.Replace(
		mustRead(t, p.SchemaPath), "version: test-1", "version: other", 1))

	res := execute(t, p, "", "schema", "show", "--schema", other, "-o", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"version": "other"`)
}

func TestInvalidArguments(t *testing.T) {
	p := clitest.SetupTestProject(t)

	tests := []struct {
		name string
		args []string
	}{
		{"non-numeric trail id", []string{"summary", "abc"}},
		{"zero trail id", []string{"lineage", "0"}},
		{"unknown object type", []string{"trace", "1", "widget", "1"}},
		{"bad output mode", []string{"summary", "1", "-o", "html"}},
		{"unknown driver", []string{"migrate", "--driver", "mysql"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, execute(t, p, "", tt.args...).err)
		})
	}
}

func TestCompletionCommand(t *testing.T) {
	p := clitest.SetupTestProject(t)
	res := execute(t, p, "", "completion", "bash")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "trailctl")
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
