// Package query executes SQL statements over a single connection, recovering
// transient connectivity faults by reconnecting and retrying.
//
// A Channel owns one connection and serializes its use. Faults are split by
// a backend-specific Classifier: permanent faults surface immediately as
// *PermanentQueryError, transient ones close the connection, reopen it with
// the original Opener and retry, up to Config.MaxAttempts. Past the cap the
// caller gets *ConnectivityExhaustedError.
//
// Statements are rebuilt on every attempt. A caller whose statement depends
// on progress made by its row function (a keyset cursor, for example)
// therefore resumes where it stopped instead of repeating rows.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultMaxAttempts bounds the attempts of one Execute call.
const DefaultMaxAttempts = 10

// Conn is the connection a Channel drives. *sql.DB and *sql.Conn satisfy it.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

// Opener establishes a connection to the original target with the original
// credentials.
type Opener func(ctx context.Context) (Conn, error)

// Statement produces the SQL text and arguments for one attempt.
type Statement interface {
	SQL() (string, []any)
}

// StatementFunc adapts a function to Statement.
type StatementFunc func() (string, []any)

// SQL implements Statement.
func (f StatementFunc) SQL() (string, []any) { return f() }

// Static returns a statement that never changes between attempts.
func Static(query string, args ...any) Statement {
	return StatementFunc(func() (string, []any) { return query, args })
}

// Config holds channel configuration.
type Config struct {
	// MaxAttempts caps the attempts per Execute (default: 10).
	MaxAttempts int

	// Backoff is multiplied by the attempt number and slept before each
	// retry. Zero retries immediately.
	Backoff time.Duration

	// Classifier splits faults into permanent and transient
	// (default: SQLiteClassifier).
	Classifier Classifier

	// Logger for retry activity (default: standard logrus logger).
	Logger logrus.FieldLogger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: DefaultMaxAttempts,
		Classifier:  SQLiteClassifier{},
		Logger:      logrus.StandardLogger(),
	}
}

// Channel is a fault-tolerant query executor over one connection.
type Channel struct {
	open   Opener
	config *Config

	mu     sync.Mutex
	conn   Conn
	closed bool
}

// New creates a channel. The connection is opened on first use.
func New(open Opener, config *Config) *Channel {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.Classifier == nil {
		config.Classifier = SQLiteClassifier{}
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &Channel{open: open, config: config}
}

// Execute runs stmt and calls fn for every row. Errors returned by fn abort
// the statement and are returned unchanged; they are never retried.
func (c *Channel) Execute(ctx context.Context, stmt Statement, fn func(Row) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.attempt(ctx, stmt, fn)
		if err == nil {
			statementsTotal.WithLabelValues("ok").Inc()
			return nil
		}

		var rerr *rowError
		if errors.As(err, &rerr) {
			return rerr.err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("query cancelled: %w", ctxErr)
		}

		class, code := Transient, ""
		var oerr *openError
		if !errors.As(err, &oerr) {
			class, code = c.config.Classifier.Classify(err)
		}
		if class == Permanent {
			statementsTotal.WithLabelValues("permanent").Inc()
			return &PermanentQueryError{Code: code, Err: err}
		}

		lastErr = err
		c.config.Logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     c.config.MaxAttempts,
			"code":    code,
		}).WithError(err).Warn("Transient query fault, reconnecting")
		c.reset()

		if attempt < c.config.MaxAttempts && c.config.Backoff > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("query cancelled: %w", ctx.Err())
			case <-time.After(time.Duration(attempt) * c.config.Backoff):
			}
		}
	}

	statementsTotal.WithLabelValues("exhausted").Inc()
	c.config.Logger.WithError(lastErr).Errorf("Giving up after %d attempts", c.config.MaxAttempts)
	return &ConnectivityExhaustedError{Attempts: c.config.MaxAttempts, Err: lastErr}
}

// attempt runs stmt once. Rows are always closed before it returns.
func (c *Channel) attempt(ctx context.Context, stmt Statement, fn func(Row) error) error {
	if c.conn == nil {
		conn, err := c.open(ctx)
		if err != nil {
			return &openError{err: err}
		}
		c.conn = conn
	}

	text, args := stmt.SQL()
	rows, err := c.conn.QueryContext(ctx, text, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}
	index := make(map[string]int, len(columns))
	for i, col := range columns {
		index[col] = i
	}

	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		if err := fn(newRow(columns, values, index)); err != nil {
			return &rowError{err: err}
		}
	}
	return rows.Err()
}

// reset closes the current connection; the next attempt reopens it.
func (c *Channel) reset() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.config.Logger.WithError(err).Debug("Error closing faulted connection")
	}
	c.conn = nil
	reconnectsTotal.Inc()
}

// Close releases the connection. Execute fails with ErrClosed afterwards.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}
