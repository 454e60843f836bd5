package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eclipse-efbt/efbt-sub000/internal/cli/output"
	"github.com/eclipse-efbt/efbt-sub000/internal/ingest"
)

// NewIngestCommand creates the ingest command.
func NewIngestCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file|->",
		Short: "Record a trail from a YAML or JSON document",
		Long: `Create a trail and replay the recording events of a document against it.

Events run in order. Each event may name its result with "ref" so later
events can point at it with "$name". The first failing event stops the
batch; everything recorded before it stays in the trail.

Use - to read the document from standard input.`,
		Example: `  # Record a trail from a file
  trailctl ingest run-2024-12-31.yaml

  # Pipe a JSON document
  producer --emit-lineage | trailctl ingest - -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, args[0])
		},
	}

	return cmd
}

func runIngest(cmd *cobra.Command, source string) error {
	var (
		doc *ingest.Document
		err error
	)
	if source == "-" {
		data, readErr := io.ReadAll(cmd.InOrStdin())
		if readErr != nil {
			return fmt.Errorf("failed to read standard input: %w", readErr)
		}
		doc, err = ingest.Parse(data)
	} else {
		doc, err = ingest.LoadFile(source)
	}
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ingester := ingest.New(cmdCtx.Recorder, cmdCtx.Logger)
	res, applyErr := ingester.Apply(cmd.Context(), doc)

	var evErr *ingest.EventError
	if applyErr != nil && !errors.As(applyErr, &evErr) {
		return applyErr
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(res); err != nil {
			return err
		}
		return applyErr
	}

	r.Header(1, fmt.Sprintf("Ingested trail %d", res.TrailID))
	r.KeyValues([][2]string{
		{"Batch", res.BatchID},
		{"Trail", strconv.FormatInt(res.TrailID, 10)},
		{"Events applied", fmt.Sprintf("%d of %d", res.Applied, len(doc.Events))},
	})

	names := make([]string, 0, len(res.Refs))
	for name := range res.Refs {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, strconv.FormatInt(res.Refs[name], 10)})
	}
	r.Println("")
	r.Header(2, "Refs")
	r.Table([]string{"Ref", "ID"}, rows)

	return applyErr
}
