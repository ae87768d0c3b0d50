// Package store opens the relational sources behind SQL feeds.
//
// Databases are embedded SQLite files opened through the ncruces driver. The
// journal mode is left to whoever owns the file. Readers wait out a writer's
// lock for the busy timeout, and the server never writes: every connection
// is opened with query_only set.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/sdshare/sdshare/internal/query"
)

// Options configures how a database is opened.
type Options struct {
	// BusyTimeout is how long SQLite waits on a locked database before
	// failing with SQLITE_BUSY (default: 5s).
	BusyTimeout time.Duration

	// ReadOnly sets PRAGMA query_only (default: true).
	ReadOnly bool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		BusyTimeout: 5 * time.Second,
		ReadOnly:    true,
	}
}

// Open creates a connection to the database at path.
//
// The database must already exist: a feed over a missing file is a
// configuration error, not an empty table.
//
// The caller MUST call Close() on the returned *sql.DB.
//
// Example:
//
//	db, err := store.Open(ctx, "data/people.db", store.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	file, _, _ := strings.Cut(strings.TrimPrefix(path, "file:"), "?")
	if _, err := os.Stat(file); err != nil {
		return nil, fmt.Errorf("failed to stat database %s: %w", path, err)
	}

	db, err := sql.Open("sqlite3", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One physical connection per channel; the channel serializes use.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Opener returns a query.Opener that reopens path with opts each time the
// channel reconnects.
func Opener(path string, opts Options) query.Opener {
	return func(ctx context.Context) (query.Conn, error) {
		return Open(ctx, path, opts)
	}
}

// dsn carries the pragmas in the connection string, so the driver applies
// them to every connection the pool opens.
func dsn(path string, opts Options) string {
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	pragmas := []string{fmt.Sprintf("_pragma=busy_timeout(%d)", opts.BusyTimeout.Milliseconds())}
	if opts.ReadOnly {
		pragmas = append(pragmas, "_pragma=query_only(1)")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(pragmas, "&")
}
