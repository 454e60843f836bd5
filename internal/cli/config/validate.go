package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/eclipse-efbt/efbt-sub000/internal/cli/output"
	"github.com/eclipse-efbt/efbt-sub000/internal/state"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, ok := state.GetDialect(c.Store.Driver); !ok {
		return &state.UnknownDriverError{Driver: c.Store.Driver, Available: state.ListDrivers()}
	}
	if c.SchemaPath == "" {
		return fmt.Errorf("schema_path is required")
	}
	if !output.OutputMode(c.Output).Valid() {
		return fmt.Errorf("invalid output mode %q (expected one of %v)", c.Output, output.Modes)
	}
	if c.Server.ReadHeaderTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (expected text or json)", c.Log.Format)
	}
	return nil
}

// ValidateSchemaFile checks that the schema registry file exists.
// Help and version commands never need it.
func (c *Config) ValidateSchemaFile() error {
	if _, err := os.Stat(c.SchemaPath); os.IsNotExist(err) {
		return fmt.Errorf("schema file does not exist: %s\nHint: Set schema_path in trailctl.yaml or use --schema", c.SchemaPath)
	}
	return nil
}

// StateConfig converts the store settings into a state.Config. SQLite
// databases get their parent directory created on demand.
func (c *Config) StateConfig(logger *slog.Logger) (state.Config, error) {
	sc := state.Config{Driver: c.Store.Driver, DSN: c.Store.DSN, Logger: logger}
	if sc.DSN != "" {
		return sc, nil
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path != "" && c.Store.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(c.Store.Path), 0o755); err != nil {
				return sc, fmt.Errorf("failed to create store directory: %w", err)
			}
		}
		sc.DSN = state.SQLiteDSN(c.Store.Path)
	case "postgres":
		if c.Store.Postgres.Database == "" {
			return sc, fmt.Errorf("store.postgres.database is required for the postgres driver")
		}
		sc.DSN = c.Store.Postgres.DSN()
	}
	return sc, nil
}
