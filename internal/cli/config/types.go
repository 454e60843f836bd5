// Package config provides configuration management for the trailctl CLI.
//
// Settings are layered with koanf: built-in defaults, then trailctl.yaml,
// then TRAILCTL_* environment variables, then explicitly set flags.
package config

import (
	"time"

	"github.com/eclipse-efbt/efbt-sub000/internal/state"
)

// Config holds all CLI configuration options.
type Config struct {
	Store      StoreConfig  `koanf:"store"`
	SchemaPath string       `koanf:"schema_path"`
	Server     ServerConfig `koanf:"server"`
	Trails     TrailsConfig `koanf:"trails"`
	Log        LogConfig    `koanf:"log"`
	Output     string       `koanf:"output"`
}

// StoreConfig selects the trail store backend.
type StoreConfig struct {
	Driver string `koanf:"driver"`
	// Path is the SQLite database file. ":memory:" keeps it in memory.
	Path string `koanf:"path"`
	// DSN overrides the connection string derived from Path or Postgres.
	DSN      string               `koanf:"dsn"`
	Postgres state.PostgresConfig `koanf:"postgres"`
}

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Addr              string        `koanf:"addr"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	WatchSchema       bool          `koanf:"watch_schema"`
}

// TrailsConfig controls trail creation.
type TrailsConfig struct {
	UniqueNames bool `koanf:"unique_names"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default configuration values.
const (
	DefaultDriver            = "sqlite"
	DefaultStorePath         = ".trailctl/trails.db"
	DefaultSchemaPath        = "schema.yaml"
	DefaultAddr              = ":8080"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultLogLevel          = "warn"
	DefaultLogFormat         = "text"
	DefaultOutput            = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)
