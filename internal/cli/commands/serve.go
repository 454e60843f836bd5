package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eclipse-efbt/efbt-sub000/internal/api"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lineage HTTP API",
		Long: `Start the HTTP API for recording and querying trails.

The server exposes trail management, ingestion of recorded documents and
the lineage, summary and trace queries. With --watch-schema the schema
registry reloads whenever its file changes.`,
		Example: `  # Serve on the default address (:8080)
  trailctl serve

  # Serve on a custom address and reload the schema on change
  trailctl serve --addr 127.0.0.1:9000 --watch-schema`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().Bool("watch-schema", false, "Reload the schema registry when its file changes")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := cmdCtx.Cfg
	srv := api.NewServer(api.Config{
		Store:             cmdCtx.Store,
		Engine:            cmdCtx.Engine,
		Recorder:          cmdCtx.Recorder,
		Registry:          cmdCtx.Registry,
		Addr:              cfg.Server.Addr,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		WatchSchema:       cfg.Server.WatchSchema,
		Logger:            cmdCtx.Logger,
	})
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Serving lineage API on %s (Ctrl+C to stop)\n", cfg.Server.Addr)
	return srv.Serve(ctx)
}
