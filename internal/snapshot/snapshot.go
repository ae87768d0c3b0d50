// Package snapshot exports a whole relational feed as one RDF/XML document
// without holding a single long-lived query against the table.
//
// The export runs in batches of a fixed size. Each batch selects the rows
// whose ordering key is strictly greater than the last row emitted, so
// progress is keyed by data rather than by a server-side offset and a
// reconnect in the middle of an export loses nothing.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sdshare/sdshare/internal/keyset"
	"github.com/sdshare/sdshare/internal/mapping"
	"github.com/sdshare/sdshare/internal/query"
	"github.com/sdshare/sdshare/internal/rdf"
)

// DefaultBatchSize is the number of rows per batch query.
const DefaultBatchSize = 10000

// errStopped aborts a batch when the consumer stops pulling.
var errStopped = errors.New("snapshot consumer stopped")

// Config describes the table an Exporter scans.
type Config struct {
	// Table to export. Dotted names are quoted per part.
	Table string

	// Keys are the ordering key columns. Together they must be unique.
	Keys []string

	// Filter is an optional static SQL condition ANDed to every batch.
	Filter string

	// BatchSize bounds each query (default: 10000).
	BatchSize int

	// Logger for export progress (default: standard logrus logger).
	Logger logrus.FieldLogger
}

// Exporter streams snapshots of one table.
type Exporter struct {
	channel *query.Channel
	mapping *mapping.Mapping
	config  Config
}

// New creates an exporter reading through channel and rendering with m.
func New(channel *query.Channel, m *mapping.Mapping, config Config) (*Exporter, error) {
	if config.Table == "" {
		return nil, fmt.Errorf("snapshot table is required")
	}
	if len(config.Keys) == 0 {
		return nil, fmt.Errorf("snapshot of %s needs at least one key column", config.Table)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &Exporter{channel: channel, mapping: m, config: config}, nil
}

// Export returns the snapshot as a lazy sequence of document chunks: the
// header, one chunk per record and the footer. The sequence is single-pass.
//
// The context is checked between batches only. When the consumer stops
// pulling, the export ends without issuing another query. A failure ends the
// sequence with a non-nil error after whatever chunks were already yielded.
func (e *Exporter) Export(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		log := e.config.Logger.WithField("table", e.config.Table)
		ns := e.mapping.Namespaces()
		cursor := keyset.NewCursor(e.config.Keys...)

		var buf bytes.Buffer
		if err := rdf.WriteHeader(&buf, ns); err != nil {
			yield(nil, err)
			return
		}
		if !yield(bytes.Clone(buf.Bytes()), nil) {
			return
		}

		total := 0
		for batch := 1; ; batch++ {
			if err := ctx.Err(); err != nil {
				exportsTotal.WithLabelValues("cancelled").Inc()
				yield(nil, err)
				return
			}

			// Rows of the current attempt; a retried batch restarts the count
			// from the cursor it resumes at.
			rows := 0
			stmt := query.StatementFunc(func() (string, []any) {
				rows = 0
				return e.statement(cursor)
			})

			err := e.channel.Execute(ctx, stmt, func(row query.Row) error {
				if err := cursor.Record(row); err != nil {
					return err
				}
				res, err := e.mapping.Resource(row.Record())
				if err != nil {
					return fmt.Errorf("failed to map row: %w", err)
				}
				buf.Reset()
				if err := res.Render(&buf, ns); err != nil {
					return err
				}
				rows++
				total++
				rowsTotal.Inc()
				if !yield(bytes.Clone(buf.Bytes()), nil) {
					return errStopped
				}
				return nil
			})
			batchesTotal.Inc()

			if errors.Is(err, errStopped) {
				exportsTotal.WithLabelValues("stopped").Inc()
				log.WithField("rows", total).Debug("Snapshot consumer stopped")
				return
			}
			if err != nil {
				exportsTotal.WithLabelValues("failed").Inc()
				log.WithFields(logrus.Fields{"batch": batch, "rows": total}).
					WithError(err).Error("Snapshot export failed")
				yield(nil, err)
				return
			}

			log.WithFields(logrus.Fields{"batch": batch, "rows": rows}).Debug("Snapshot batch done")
			if rows < e.config.BatchSize {
				break
			}
		}

		buf.Reset()
		if err := rdf.WriteFooter(&buf); err != nil {
			yield(nil, err)
			return
		}
		exportsTotal.WithLabelValues("ok").Inc()
		log.WithField("rows", total).Info("Snapshot exported")
		yield(bytes.Clone(buf.Bytes()), nil)
	}
}

// statement builds the next batch query from the cursor state.
func (e *Exporter) statement(cursor *keyset.Cursor) (string, []any) {
	var b strings.Builder
	var args []any

	b.WriteString("SELECT * FROM ")
	b.WriteString(QuoteTable(e.config.Table))

	var conds []string
	if pred := cursor.Predicate(); pred != nil {
		var s string
		s, args = pred.SQL(keyset.QuoteIdent, args)
		conds = append(conds, "("+s+")")
	}
	if e.config.Filter != "" {
		conds = append(conds, "("+e.config.Filter+")")
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	keys := make([]string, len(e.config.Keys))
	for i, k := range e.config.Keys {
		keys[i] = keyset.QuoteIdent(k) + " ASC"
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(keys, ", "))
	b.WriteString(" LIMIT ?")
	args = append(args, e.config.BatchSize)

	return b.String(), args
}

// QuoteTable quotes each dot-separated part of a table name.
func QuoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = keyset.QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}
