package config

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdshare/sdshare/internal/feed"
	"github.com/sdshare/sdshare/internal/query"
	"github.com/sdshare/sdshare/internal/store"
)

const collectionsYAML = `
title: Example server
author: Ann
collections:
  - id: people
    title: People
    feeds:
      - type: csv
        source: people.csv
        timestamp: changed
        rdf_type: http://xmlns.com/foaf/0.1/Person
        subject: http://example.org/person/%s
        id_field: id
        columns:
          - name: name
            property: http://xmlns.com/foaf/0.1/name
  - id: items
    title: Items
    feeds:
      - type: sql
        database: items.db
        table: items
        id_column: id
        time_column: updated
        rdf_type: http://example.org/ns/Item
        subject: http://example.org/item/%s
        columns:
          - name: title
            property: http://purl.org/dc/terms/title
          - name: owner
            property: http://example.org/ns/owner
            reference: true
            pattern: http://example.org/person/%s
  - id: archive
    title: Archive
    feeds:
      - type: sql
        database: items.db
        table: items
        id_column: id
        time_column: updated
        filter: archived = 1
        rdf_type: http://example.org/ns/Item
        subject: http://example.org/item/%s
        columns: []
`

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(collectionsYAML), "test.yaml")
	require.NoError(t, err)

	assert.Equal(t, "Example server", f.Title)
	require.Len(t, f.Collections, 3)
	assert.Equal(t, TypeCSV, f.Collections[0].Feeds[0].Type)

	m := f.Collections[1].Feeds[0].Mapping()
	assert.Equal(t, "http://example.org/ns/Item", m.Type)
	require.Len(t, m.Columns, 2)
	assert.True(t, m.Columns[0].Literal)
	assert.False(t, m.Columns[1].Literal)
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte(`
title: x
collections:
  - id: a
    colour: blue
    feeds: []
`), "bad.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestParse_Validation(t *testing.T) {
	tests := map[string]string{
		"empty":        ``,
		"no id":        "collections:\n  - title: x\n    feeds: [{type: csv, source: a, timestamp: t, rdf_type: T, id_field: id}]\n",
		"no feeds":     "collections:\n  - id: a\n",
		"bad type":     "collections:\n  - id: a\n    feeds: [{type: mongo, rdf_type: T}]\n",
		"csv no src":   "collections:\n  - id: a\n    feeds: [{type: csv, timestamp: t, rdf_type: T, id_field: id}]\n",
		"sql no table": "collections:\n  - id: a\n    feeds: [{type: sql, database: d, id_column: id, time_column: t, rdf_type: T}]\n",
		"no rdf type":  "collections:\n  - id: a\n    feeds: [{type: csv, source: a, timestamp: t, id_field: id}]\n",
		"column":       "collections:\n  - id: a\n    feeds: [{type: csv, source: a, timestamp: t, rdf_type: T, id_field: id, columns: [{name: x}]}]\n",
		"urn property": "collections:\n  - id: a\n    feeds: [{type: csv, source: a, timestamp: t, rdf_type: T, id_field: id, columns: [{name: x, property: \"urn:x:title\"}]}]\n",
		"no local":     "collections:\n  - id: a\n    feeds: [{type: csv, source: a, timestamp: t, rdf_type: T, id_field: id, columns: [{name: x, property: \"http://example.org/ns#\"}]}]\n",
		"duplicate": "collections:\n" +
			"  - id: a\n    feeds: [{type: csv, source: a, timestamp: t, rdf_type: T, id_field: id}]\n" +
			"  - id: a\n    feeds: [{type: csv, source: a, timestamp: t, rdf_type: T, id_field: id}]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), name)
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(afero.NewMemMapFs(), "/etc/sdshare.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSettings_EnvOverrides(t *testing.T) {
	t.Setenv("SDSHARE_PAGE_SIZE", "25")
	t.Setenv("SDSHARE_BACKOFF", "2s")

	s := FromViper(NewViper())
	assert.Equal(t, 25, s.PageSize)
	assert.Equal(t, 2*time.Second, s.Backoff)
	assert.Equal(t, ":8080", s.Addr)
	assert.Equal(t, query.DefaultMaxAttempts, s.MaxAttempts)
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("sqlite3", "file:"+filepath.Join(dir, "items.db"))
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, updated TEXT, title TEXT, owner TEXT, archived INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO items VALUES
		(1, '2020-01-01T00:00:00Z', 'one', 'ann', 0),
		(2, '2020-01-02T00:00:00Z', 'two', NULL, 1)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "people.csv"),
		[]byte("id,name,changed\n1,Ann,2020-01-01T00:00:00Z\n"), 0o644))

	f, err := Parse([]byte(collectionsYAML), "test.yaml")
	require.NoError(t, err)

	var opened []string
	reg, err := Build(f, BuildOptions{
		Settings: Settings{PageSize: 10, BatchSize: 5},
		Fs:       fs,
		BaseDir:  dir,
		Opener: func(path string) query.Opener {
			opened = append(opened, path)
			return store.Opener(path, store.DefaultOptions())
		},
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	defer reg.Close()

	assert.Equal(t, []string{filepath.Join(dir, "items.db")}, opened, "one channel per database")
	assert.Equal(t, []string{"archive", "items", "people"}, reg.IDs())

	ctx := context.Background()

	people, err := reg.Collection("people")
	require.NoError(t, err)
	page, err := people.FetchPage(ctx, feed.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, page.IDs())

	items, err := reg.Collection("items")
	require.NoError(t, err)
	frag, err := items.FetchOne(ctx, "1")
	require.NoError(t, err)
	res := frag.Resource()
	require.Len(t, res.Properties, 2)
	assert.Equal(t, "http://example.org/person/ann", res.Properties[1].Value)

	archive, err := reg.Collection("archive")
	require.NoError(t, err)
	page, err = archive.FetchPage(ctx, feed.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, page.IDs())
}

func TestBuild_CustomPermanentCodes(t *testing.T) {
	fd := &Feed{Permanent: []CodeRange{{From: 1, To: 1}}}
	c, ok := classifier(fd).(query.CodeRangeClassifier)
	require.True(t, ok)
	assert.Equal(t, []query.CodeRange{{From: 1, To: 1}}, c.Permanent)

	_, ok = classifier(&Feed{}).(query.SQLiteClassifier)
	assert.True(t, ok)
}
