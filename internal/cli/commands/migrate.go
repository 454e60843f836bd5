package commands

import (
	"github.com/spf13/cobra"

	"github.com/eclipse-efbt/efbt-sub000/internal/cli/output"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending store migrations",
		Long: `Create or upgrade the trail store schema.

Every command that opens the store migrates it first; run this on its own
to prepare a database ahead of time, for example before starting several
API replicas against one PostgreSQL instance.`,
		Example: `  # Migrate the SQLite store from trailctl.yaml
  trailctl migrate

  # Migrate a PostgreSQL store
  TRAILCTL_STORE_DRIVER=postgres TRAILCTL_STORE_POSTGRES_DATABASE=trails trailctl migrate`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cmdCtx := NewCommandContextWithoutStore(cmd)

	store, err := openStore(cmd, cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	version, err := store.MigrationVersion(cmd.Context())
	if err != nil {
		return err
	}

	r := cmdCtx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(map[string]any{
			"driver":  store.Dialect().Name,
			"version": version,
		})
	}
	r.Printf("Store (%s) is at migration version %d\n", store.Dialect().Name, version)
	return nil
}
