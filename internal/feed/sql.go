package feed

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sdshare/sdshare/internal/keyset"
	"github.com/sdshare/sdshare/internal/mapping"
	"github.com/sdshare/sdshare/internal/query"
	"github.com/sdshare/sdshare/internal/snapshot"
)

// Dialect isolates the backend-specific parts of the SQL a feed issues.
type Dialect interface {
	// QuoteIdent quotes a column name.
	QuoteIdent(name string) string

	// TimestampLiteral returns the SQL expression for a wire timestamp
	// compared with the time column, with its bound arguments.
	TimestampLiteral(ts string) (string, []any)
}

// SQLiteDialect stores timestamps as wire-format text, which compares
// correctly as strings.
type SQLiteDialect struct{}

// QuoteIdent implements Dialect.
func (SQLiteDialect) QuoteIdent(name string) string { return keyset.QuoteIdent(name) }

// TimestampLiteral implements Dialect.
func (SQLiteDialect) TimestampLiteral(ts string) (string, []any) { return "?", []any{ts} }

// SQLConfig configures a relational feed.
type SQLConfig struct {
	Table string

	// IDColumn holds the fragment id; TimeColumn its update time.
	IDColumn   string
	TimeColumn string

	// Filter is an optional static condition ANDed to every query.
	Filter string

	// Keys are the snapshot ordering columns (default: IDColumn).
	Keys []string

	// PageSize bounds fragment pages (default: 1000).
	PageSize int

	// BatchSize bounds snapshot batches (default: snapshot.DefaultBatchSize).
	BatchSize int

	// Mapping renders rows. An empty Mapping.IDField defaults to IDColumn.
	Mapping *mapping.Mapping

	// Dialect (default: SQLiteDialect).
	Dialect Dialect

	// Logger (default: standard logrus logger).
	Logger logrus.FieldLogger
}

// SQLFeed serves a relational table. Every statement runs through the
// feed's query.Channel; feeds over the same database share one.
type SQLFeed struct {
	channel  *query.Channel
	config   SQLConfig
	exporter *snapshot.Exporter
}

// NewSQLFeed creates a feed over config.Table reading through channel.
func NewSQLFeed(channel *query.Channel, config SQLConfig) (*SQLFeed, error) {
	if config.Table == "" || config.IDColumn == "" || config.TimeColumn == "" {
		return nil, fmt.Errorf("sql feed requires table, id column and time column")
	}
	if config.Mapping == nil {
		return nil, fmt.Errorf("sql feed %s requires a mapping", config.Table)
	}
	if config.Mapping.IDField == "" {
		m := *config.Mapping
		m.IDField = config.IDColumn
		config.Mapping = &m
	}
	if len(config.Keys) == 0 {
		config.Keys = []string{config.IDColumn}
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.Dialect == nil {
		config.Dialect = SQLiteDialect{}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	exporter, err := snapshot.New(channel, config.Mapping, snapshot.Config{
		Table:     config.Table,
		Keys:      config.Keys,
		Filter:    config.Filter,
		BatchSize: config.BatchSize,
		Logger:    config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	return &SQLFeed{channel: channel, config: config, exporter: exporter}, nil
}

// Table returns the table the feed reads.
func (f *SQLFeed) Table() string {
	return f.config.Table
}

// FetchPage implements Feed.
func (f *SQLFeed) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	text, args := f.pageStatement(req)
	candidates := make([]*Fragment, 0, f.config.PageSize+1)
	err := f.channel.Execute(ctx, query.Static(text, args...), func(row query.Row) error {
		frag, err := f.fragment(row)
		if err != nil {
			return err
		}
		candidates = append(candidates, frag)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fragments of %s: %w", f.config.Table, err)
	}
	return NewPage(candidates, f.config.PageSize, KeysetContinuation), nil
}

func (f *SQLFeed) pageStatement(req PageRequest) (string, []any) {
	d := f.config.Dialect
	timeCol, idCol := d.QuoteIdent(f.config.TimeColumn), d.QuoteIdent(f.config.IDColumn)

	var conds []string
	var args []any
	switch {
	case req.Since != "" && req.After != "":
		// Strictly after (since, after) in (time, id) order.
		lit, litArgs := d.TimestampLiteral(req.Since)
		conds = append(conds, fmt.Sprintf("(%s > %s OR (%s = %s AND %s > ?))",
			timeCol, lit, timeCol, lit, idCol))
		args = append(args, litArgs...)
		args = append(args, litArgs...)
		args = append(args, req.After)
	case req.Since != "":
		lit, litArgs := d.TimestampLiteral(req.Since)
		conds = append(conds, fmt.Sprintf("%s >= %s", timeCol, lit))
		args = append(args, litArgs...)
	}
	if f.config.Filter != "" {
		conds = append(conds, "("+f.config.Filter+")")
	}

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(snapshot.QuoteTable(f.config.Table))
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s ASC, %s ASC LIMIT ?", timeCol, idCol)
	args = append(args, f.config.PageSize+1)
	return b.String(), args
}

// FetchOne implements Feed.
func (f *SQLFeed) FetchOne(ctx context.Context, id string) (*Fragment, error) {
	d := f.config.Dialect
	text := fmt.Sprintf("SELECT * FROM %s WHERE %s = ?",
		snapshot.QuoteTable(f.config.Table), d.QuoteIdent(f.config.IDColumn))
	if f.config.Filter != "" {
		text += " AND (" + f.config.Filter + ")"
	}
	text += " LIMIT 1"

	var found *Fragment
	err := f.channel.Execute(ctx, query.Static(text, id), func(row query.Row) error {
		frag, err := f.fragment(row)
		if err != nil {
			return err
		}
		found = frag
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fragment %q of %s: %w", id, f.config.Table, err)
	}
	if found == nil {
		return nil, fmt.Errorf("fragment %q: %w", id, ErrNotFound)
	}
	return found, nil
}

// Snapshot implements Feed.
func (f *SQLFeed) Snapshot(ctx context.Context) iter.Seq2[[]byte, error] {
	return f.exporter.Export(ctx)
}

func (f *SQLFeed) fragment(row query.Row) (*Fragment, error) {
	id := row.String(f.config.IDColumn)
	if id == "" {
		return nil, &keyset.MalformedRecordError{Column: f.config.IDColumn}
	}
	updated := row.String(f.config.TimeColumn)
	if updated == "" {
		return nil, &keyset.MalformedRecordError{Column: f.config.TimeColumn}
	}
	res, err := f.config.Mapping.Resource(row.Record())
	if err != nil {
		return nil, fmt.Errorf("failed to map row %q: %w", id, err)
	}
	return NewFragment(id, updated, res), nil
}
