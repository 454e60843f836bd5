package state

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

func init() {
	RegisterDialect(&Dialect{
		Name:                 "postgres",
		Driver:               "pgx",
		GooseDialect:         "postgres",
		NumberedPlaceholders: true,
		SnapshotOptions:      &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
		NameLock:             `SELECT pg_advisory_xact_lock(hashtext(?))`,
	})
}

// PostgresConfig holds the connection settings for the postgres driver.
type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
	SSLMode  string `koanf:"sslmode"`
}

// DSN builds a key=value connection string.
func (c PostgresConfig) DSN() string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}

	port := c.Port
	if port == 0 {
		port = 5432
	}

	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, c.Database, sslmode)

	if c.User != "" {
		dsn += fmt.Sprintf(" user=%s", c.User)
	}
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}

	return dsn
}
