package state

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Dialect captures what differs between the supported SQL backends.
type Dialect struct {
	// Name is the registry key and the migrations subdirectory.
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// GooseDialect is passed to goose.SetDialect.
	GooseDialect string
	// NumberedPlaceholders rewrites ? placeholders to $1, $2, ...
	NumberedPlaceholders bool
	// SnapshotOptions are used to open read snapshots. Nil means the driver
	// default.
	SnapshotOptions *sql.TxOptions
	// NameLock, when set, is executed with the trail name inside the
	// transaction of a unique-name create and holds until it ends. Dialects
	// whose write transactions are already serialized leave it empty.
	NameLock string
	// Configure tunes the connection pool after opening.
	Configure func(db *sql.DB, dsn string)
}

var (
	dialectsMu sync.RWMutex
	dialects   = make(map[string]*Dialect)
)

// RegisterDialect adds a dialect to the registry. Called from init().
func RegisterDialect(d *Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	dialects[d.Name] = d
}

// GetDialect retrieves a dialect by name.
func GetDialect(name string) (*Dialect, bool) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialects[name]
	return d, ok
}

// ListDrivers returns all registered dialect names (sorted).
func ListDrivers() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownDriverError is returned when an unknown store driver is requested.
type UnknownDriverError struct {
	Driver    string
	Available []string
}

func (e *UnknownDriverError) Error() string {
	return fmt.Sprintf("unknown store driver %q\nAvailable drivers: %v\nHint: Check store.driver in trailctl.yaml", e.Driver, e.Available)
}

// Rebind rewrites ? placeholders for dialects that number them.
func (d *Dialect) Rebind(query string) string {
	if !d.NumberedPlaceholders || !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
