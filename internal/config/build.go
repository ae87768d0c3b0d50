package config

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sdshare/sdshare/internal/feed"
	"github.com/sdshare/sdshare/internal/query"
	"github.com/sdshare/sdshare/internal/registry"
	"github.com/sdshare/sdshare/internal/store"
)

// BuildOptions controls how a File becomes a Registry.
type BuildOptions struct {
	// Settings supply process-wide defaults for page and batch sizes and
	// for retry behaviour.
	Settings Settings

	// Fs CSV sources are read from (default: the OS filesystem).
	Fs afero.Fs

	// BaseDir resolves relative source and database paths, normally the
	// directory of the collections file.
	BaseDir string

	// Store options for SQL feeds (default: store.DefaultOptions()).
	Store *store.Options

	// Opener overrides how databases are opened, mainly in tests.
	Opener func(path string) query.Opener

	Logger logrus.FieldLogger
}

// Build constructs the registry. SQL feeds naming the same database share
// one query.Channel; the registry closes the channels on Close.
func Build(f *File, opts BuildOptions) (*registry.Registry, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	storeOpts := store.DefaultOptions()
	if opts.Store != nil {
		storeOpts = *opts.Store
	}
	if opts.Opener == nil {
		opts.Opener = func(path string) query.Opener { return store.Opener(path, storeOpts) }
	}

	reg := registry.New(f.Title, f.Author)
	channels := make(map[string]*query.Channel)

	channelFor := func(fd *Feed) *query.Channel {
		path := opts.resolve(fd.Database)
		if ch, ok := channels[path]; ok {
			return ch
		}
		ch := query.New(opts.Opener(path), &query.Config{
			MaxAttempts: opts.Settings.MaxAttempts,
			Backoff:     opts.Settings.Backoff,
			Classifier:  classifier(fd),
			Logger:      opts.Logger.WithField("database", path),
		})
		channels[path] = ch
		reg.OnClose(ch.Close)
		return ch
	}

	for _, c := range f.Collections {
		feeds := make([]feed.Feed, 0, len(c.Feeds))
		for i := range c.Feeds {
			fd := &c.Feeds[i]
			log := opts.Logger.WithFields(logrus.Fields{"collection": c.ID, "feed": i})
			built, err := buildFeed(fd, opts, channelFor, log)
			if err != nil {
				_ = reg.Close()
				return nil, fmt.Errorf("failed to build collection %q feed %d: %w", c.ID, i, err)
			}
			feeds = append(feeds, built)
		}
		if _, err := reg.Add(c.ID, c.Title, feeds...); err != nil {
			_ = reg.Close()
			return nil, err
		}
	}
	return reg, nil
}

func buildFeed(fd *Feed, opts BuildOptions, channelFor func(*Feed) *query.Channel, log logrus.FieldLogger) (feed.Feed, error) {
	pageSize := fd.PageSize
	if pageSize <= 0 {
		pageSize = opts.Settings.PageSize
	}

	switch fd.Type {
	case TypeCSV:
		return feed.NewCSVFeed(feed.CSVConfig{
			Source:         opts.resolve(fd.Source),
			Fs:             opts.Fs,
			Mapping:        fd.Mapping(),
			TimestampField: fd.Timestamp,
			PageSize:       pageSize,
			Logger:         log,
		})
	case TypeSQL:
		batch := fd.BatchSize
		if batch <= 0 {
			batch = opts.Settings.BatchSize
		}
		return feed.NewSQLFeed(channelFor(fd), feed.SQLConfig{
			Table:      fd.Table,
			IDColumn:   fd.IDColumn,
			TimeColumn: fd.TimeColumn,
			Filter:     fd.Filter,
			Keys:       fd.Keys,
			PageSize:   pageSize,
			BatchSize:  batch,
			Mapping:    fd.Mapping(),
			Logger:     log,
		})
	default:
		return nil, fmt.Errorf("unknown feed type %q", fd.Type)
	}
}

// classifier picks the fault classifier of the first feed that opens a
// database.
func classifier(fd *Feed) query.Classifier {
	if len(fd.Permanent) == 0 {
		return query.SQLiteClassifier{}
	}
	ranges := make([]query.CodeRange, len(fd.Permanent))
	for i, r := range fd.Permanent {
		ranges[i] = query.CodeRange{From: r.From, To: r.To}
	}
	return query.CodeRangeClassifier{Permanent: ranges, Code: query.SQLiteCode}
}

func (o BuildOptions) resolve(path string) string {
	if o.BaseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(o.BaseDir, path)
}
