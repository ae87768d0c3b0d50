package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdshare/sdshare/internal/query"
)

// seed creates a writable database with one table.
func seed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "people.db")

	db, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO people VALUES (1, 'Ann'), (2, 'Bob')`)
	require.NoError(t, err)
	return path
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.db"), DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat database")
}

func TestOpen_ReadOnly(t *testing.T) {
	path := seed(t)
	ctx := context.Background()

	db, err := Open(ctx, path, DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM people`).Scan(&n))
	assert.Equal(t, 2, n)

	_, err = db.ExecContext(ctx, `INSERT INTO people VALUES (3, 'Cy')`)
	assert.Error(t, err, "query_only must reject writes")
}

// The pool may open more connections than the first one; each must carry
// the pragmas.
func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	path := seed(t)
	ctx := context.Background()

	db, err := Open(ctx, path, Options{BusyTimeout: 1500 * time.Millisecond, ReadOnly: true})
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(2)

	first, err := db.Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := db.Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	for i, conn := range []*sql.Conn{first, second} {
		var timeout int
		require.NoError(t, conn.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout))
		assert.Equal(t, 1500, timeout, "connection %d", i)

		_, err := conn.ExecContext(ctx, `INSERT INTO people VALUES (3, 'Cy')`)
		assert.Error(t, err, "connection %d must reject writes", i)
	}
}

func TestDSN(t *testing.T) {
	opts := Options{BusyTimeout: 5 * time.Second, ReadOnly: true}
	assert.Equal(t, "file:a.db?_pragma=busy_timeout(5000)&_pragma=query_only(1)", dsn("a.db", opts))
	assert.Equal(t, "file:a.db?_txlock=deferred&_pragma=busy_timeout(5000)&_pragma=query_only(1)",
		dsn("file:a.db?_txlock=deferred", opts))
	assert.Equal(t, "file:a.db?_pragma=busy_timeout(0)", dsn("a.db", Options{}))
}

func TestOpen_FilePrefixAndParams(t *testing.T) {
	path := seed(t)

	db, err := Open(context.Background(), "file:"+path+"?_txlock=deferred", Options{ReadOnly: false})
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO people VALUES (3, 'Cy')`)
	assert.NoError(t, err)
}

func TestOpener_FeedsChannel(t *testing.T) {
	path := seed(t)
	ch := query.New(Opener(path, DefaultOptions()), nil)
	defer ch.Close()

	var names []string
	err := ch.Execute(context.Background(), query.Static(`SELECT name FROM people ORDER BY id`), func(r query.Row) error {
		names = append(names, r.String("name"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ann", "Bob"}, names)
}
