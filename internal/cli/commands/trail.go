package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/eclipse-efbt/efbt-sub000/internal/cli/output"
	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// NewTrailCommand creates the trail command group.
func NewTrailCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trail",
		Short: "Create, list, show and delete trails",
		Long: `Manage trails. A trail is one recorded execution: every table, row and
value captured while it ran, plus the references between them.`,
	}

	cmd.AddCommand(
		newTrailCreateCommand(),
		newTrailListCommand(),
		newTrailShowCommand(),
		newTrailDeleteCommand(),
	)
	return cmd
}

// TrailCreateOptions holds options for trail create.
type TrailCreateOptions struct {
	Context     map[string]string
	ContextJSON string
}

func newTrailCreateCommand() *cobra.Command {
	opts := &TrailCreateOptions{}

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Start a new trail",
		Long: `Start a new, empty trail. Without a name a unique one of the form
trail-<uuid> is generated.`,
		Example: `  # Create a named trail with execution context
  trailctl trail create nightly-run --context env=prod --context job=finrep

  # Attach nested context as JSON
  trailctl trail create --context-json '{"inputs": {"date": "2024-12-31"}}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runTrailCreate(cmd, name, opts)
		},
	}

	cmd.Flags().StringToStringVar(&opts.Context, "context", nil, "Execution context entry (key=value, repeatable)")
	cmd.Flags().StringVar(&opts.ContextJSON, "context-json", "", "Execution context as a JSON object")

	return cmd
}

func runTrailCreate(cmd *cobra.Command, name string, opts *TrailCreateOptions) error {
	execCtx := make(map[string]any)
	if opts.ContextJSON != "" {
		if err := json.Unmarshal([]byte(opts.ContextJSON), &execCtx); err != nil {
			return fmt.Errorf("invalid --context-json: %w", err)
		}
	}
	for k, v := range opts.Context {
		execCtx[k] = v
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	trail, err := cmdCtx.Recorder.CreateTrail(cmd.Context(), name, execCtx)
	if err != nil {
		return err
	}
	return renderTrail(cmdCtx.Renderer, trail, nil)
}

// TrailListOptions holds options for trail list.
type TrailListOptions struct {
	Limit  int
	Offset int
}

func newTrailListCommand() *cobra.Command {
	opts := &TrailListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trails, newest first",
		Example: `  # First page
  trailctl trail list

  # Second page of 20 as JSON
  trailctl trail list --limit 20 --offset 20 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrailList(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", core.DefaultPageLimit, "Maximum trails to return")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Trails to skip")

	return cmd
}

func runTrailList(cmd *cobra.Command, opts *TrailListOptions) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	page := core.Page{Limit: opts.Limit, Offset: opts.Offset}.Normalize()
	trails, err := cmdCtx.Store.ListTrails(cmd.Context(), page)
	if err != nil {
		return err
	}
	if trails == nil {
		trails = []core.Trail{}
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"trails": trails,
			"limit":  page.Limit,
			"offset": page.Offset,
		})
	}

	rows := make([][]string, 0, len(trails))
	for _, t := range trails {
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Name,
			t.CreatedAt.Format(time.RFC3339),
			compactJSON(t.ExecutionContext),
		})
	}
	r.Table([]string{"ID", "Name", "Created", "Execution Context"}, rows)
	if len(rows) > 0 {
		r.Printf("(%d rows)\n", len(rows))
	}
	return nil
}

func newTrailShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <trail-id>",
		Short: "Show a trail and its summary counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "trail id")
			if err != nil {
				return err
			}
			return runTrailShow(cmd, id)
		},
	}
}

func runTrailShow(cmd *cobra.Command, id int64) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	trail, err := cmdCtx.Store.GetTrail(cmd.Context(), id)
	if err != nil {
		return err
	}
	sum, err := cmdCtx.Engine.Summarize(cmd.Context(), id)
	if err != nil {
		return err
	}
	return renderTrail(cmdCtx.Renderer, trail, sum)
}

func newTrailDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <trail-id>",
		Short: "Delete a trail and everything recorded under it",
		Args:  cobra.ExactArgs(1),
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

			if err := cmdCtx.Store.DeleteTrail(cmd.Context(), id); err != nil {
				return err
			}
			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(map[string]any{"deleted": id})
			}
			r.Printf("Deleted trail %d\n", id)
			return nil
		},
	}
}

// trailOutput is the JSON form of trail create and trail show.
type trailOutput struct {
	*core.Trail
	Summary *core.TrailSummary `json:"summary,omitempty"`
}

func renderTrail(r *output.Renderer, trail *core.Trail, sum *core.TrailSummary) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(trailOutput{Trail: trail, Summary: sum})
	}

	r.Header(1, fmt.Sprintf("Trail %d", trail.ID))
	r.KeyValues([][2]string{
		{"ID", strconv.FormatInt(trail.ID, 10)},
		{"Name", trail.Name},
		{"Created", trail.CreatedAt.Format(time.RFC3339)},
		{"Execution Context", compactJSON(trail.ExecutionContext)},
	})
	if sum != nil {
		r.Println("")
		renderSummaryTable(r, sum)
	}
	return nil
}

func compactJSON(v map[string]any) string {
	if len(v) == 0 {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
