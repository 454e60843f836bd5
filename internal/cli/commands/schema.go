package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eclipse-efbt/efbt-sub000/internal/cli/output"
	"github.com/eclipse-efbt/efbt-sub000/internal/schema"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect and validate the schema registry",
		Long: `The schema registry defines the database tables, their fields, the
derived tables and their functions that trails record instances of.`,
	}

	cmd.AddCommand(newSchemaShowCommand(), newSchemaValidateCommand())
	return cmd
}

func newSchemaShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the tables and functions of the configured schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContextWithoutStore(cmd)
			if err := cmdCtx.Cfg.ValidateSchemaFile(); err != nil {
				return err
			}
			snap, err := schema.LoadFile(cmdCtx.Cfg.SchemaPath)
			if err != nil {
				return err
			}
			return renderSchema(cmdCtx.Renderer, snap)
		},
	}
}

func newSchemaValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Check a schema file without loading it into a server",
		Long: `Parse and validate a schema file. IDs must be positive and unique per
kind and names must be non-empty. Defaults to the configured schema_path.`,
		Example: `  trailctl schema validate
  trailctl schema validate next-release.yaml
  cat schema.yaml | trailctl schema validate -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContextWithoutStore(cmd)
			path := cmdCtx.Cfg.SchemaPath
			if len(args) == 1 {
				path = args[0]
			}

			var (
				data []byte
				err  error
			)
			if path == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(path)
			}
			if err != nil {
				return fmt.Errorf("failed to read schema: %w", err)
			}

			snap, err := schema.Parse(data)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(map[string]any{
					"valid":           true,
					"version":         snap.Version(),
					"database_tables": len(snap.DatabaseTables()),
					"fields":          snap.FieldCount(),
					"derived_tables":  len(snap.DerivedTables()),
					"functions":       snap.FunctionCount(),
				})
			}
			r.Printf("Schema %s is valid: %d database tables, %d fields, %d derived tables, %d functions\n",
				snap.Version(), len(snap.DatabaseTables()), snap.FieldCount(), len(snap.DerivedTables()), snap.FunctionCount())
			return nil
		},
	}
}

func renderSchema(r *output.Renderer, snap *schema.Snapshot) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"version":         snap.Version(),
			"database_tables": snap.DatabaseTables(),
			"derived_tables":  snap.DerivedTables(),
		})
	}

	r.Header(1, fmt.Sprintf("Schema %s", snap.Version()))

	r.Header(2, "Database Tables")
	var rows [][]string
	for _, t := range snap.DatabaseTables() {
		for _, f := range t.Fields {
			rows = append(rows, []string{
				strconv.FormatInt(t.ID, 10), t.Name, strconv.FormatInt(f.ID, 10), f.Name,
			})
		}
		if len(t.Fields) == 0 {
			rows = append(rows, []string{strconv.FormatInt(t.ID, 10), t.Name, "", ""})
		}
	}
	r.Table([]string{"Table ID", "Table", "Field ID", "Field"}, rows)
	r.Println("")

	r.Header(2, "Derived Tables")
	rows = nil
	for _, t := range snap.DerivedTables() {
		for _, fn := range t.Functions {
			creates := ""
			if t.TableCreationFunctionID != nil && *t.TableCreationFunctionID == fn.ID {
				creates = "yes"
			}
			rows = append(rows, []string{
				strconv.FormatInt(t.ID, 10), t.Name, strconv.FormatInt(fn.ID, 10), fn.Name, fn.Language, creates,
			})
		}
		if len(t.Functions) == 0 {
			rows = append(rows, []string{strconv.FormatInt(t.ID, 10), t.Name, "", "", "", ""})
		}
	}
	r.Table([]string{"Table ID", "Table", "Function ID", "Function", "Language", "Creates Table"}, rows)

	if r.EffectiveMode() == output.ModeMarkdown {
		for _, t := range snap.DerivedTables() {
			for _, fn := range t.Functions {
				if fn.Text == "" {
					continue
				}
				r.Println("")
				r.Println(output.FormatHeader(3, fmt.Sprintf("%s.%s", t.Name, fn.Name)))
				r.Println("")
				r.Println(output.FormatCodeBlock(fn.Language, fn.Text))
			}
		}
	}
	return nil
}
