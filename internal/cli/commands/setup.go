package commands

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/eclipse-efbt/efbt-sub000/internal/cli/config"
	"github.com/eclipse-efbt/efbt-sub000/internal/cli/output"
	"github.com/eclipse-efbt/efbt-sub000/internal/lineage"
	"github.com/eclipse-efbt/efbt-sub000/internal/schema"
	"github.com/eclipse-efbt/efbt-sub000/internal/state"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Store    *state.Store
	Registry *schema.Registry
	Recorder *lineage.Recorder
	Engine   *lineage.Engine
	Renderer *output.Renderer
}

// NewCommandContext opens the store, applies pending migrations and loads
// the schema registry.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutStore(cmd)
	cfg := cmdCtx.Cfg

	if err := cfg.ValidateSchemaFile(); err != nil {
		return nil, nil, err
	}
	registry, err := schema.NewRegistry(cfg.SchemaPath, schema.WithLogger(cmdCtx.Logger))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schema: %w", err)
	}

	store, err := openStore(cmd, cfg, cmdCtx.Logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = store.Close()
	}

	recorder, err := lineage.NewRecorder(lineage.RecorderConfig{
		Store:       store,
		Schema:      registry,
		UniqueNames: cfg.Trails.UniqueNames,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	engine, err := lineage.NewEngine(lineage.EngineConfig{
		Store:  store,
		Schema: registry,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	cmdCtx.Store = store
	cmdCtx.Registry = registry
	cmdCtx.Recorder = recorder
	cmdCtx.Engine = engine
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutStore creates a CommandContext with only config,
// logger and renderer. Useful for commands that don't need database access.
func NewCommandContextWithoutStore(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.OutputMode(cfg.Output))

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration, loading defaults when the
// command runs outside the root command (as in unit tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg, err := config.LoadConfig("", nil)
	if err != nil {
		return &config.Config{
			Store:      config.StoreConfig{Driver: config.DefaultDriver, Path: config.DefaultStorePath},
			SchemaPath: config.DefaultSchemaPath,
			Output:     config.DefaultOutput,
		}
	}
	return cfg
}

func openStore(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) (*state.Store, error) {
	sc, err := cfg.StateConfig(logger)
	if err != nil {
		return nil, err
	}
	store, err := state.Open(cmd.Context(), sc)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(cmd.Context()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", what, arg)
	}
	return id, nil
}
