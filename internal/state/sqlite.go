package state

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

func init() {
	RegisterDialect(&Dialect{
		Name:         "sqlite",
		Driver:       "sqlite",
		GooseDialect: "sqlite",
		// read-only transactions begin deferred even under _txlock=immediate
		SnapshotOptions: &sql.TxOptions{ReadOnly: true},
		Configure: func(db *sql.DB, dsn string) {
			// every connection to :memory: is a separate database
			if strings.Contains(dsn, ":memory:") {
				db.SetMaxOpenConns(1)
			}
		},
	})
}

// SQLiteDSN builds a DSN for the modernc driver with foreign keys enabled.
// File databases also run in WAL mode with a busy timeout so readers do not
// block the writer. Write transactions begin IMMEDIATE: a deferred
// transaction that reads before it writes cannot wait for the write lock
// and fails with SQLITE_BUSY instead. Use ":memory:" for an in-memory
// database.
func SQLiteDSN(path string) string {
	if path == "" || path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate", path)
}
