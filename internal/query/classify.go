package query

import (
	"database/sql/driver"
	"errors"
	"strconv"

	"github.com/ncruces/go-sqlite3"
)

// Class says whether a fault may be recovered by reconnecting.
type Class int

const (
	// Transient faults are retried after reconnecting.
	Transient Class = iota
	// Permanent faults are surfaced immediately.
	Permanent
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classifier maps a backend error to a fault class and the code that
// triggered it. Classification is backend specific, so every relational
// feed is configured with its own.
type Classifier interface {
	Classify(err error) (Class, string)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(err error) (Class, string)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error) (Class, string) { return f(err) }

// SQLiteClassifier classifies errors from the ncruces SQLite driver.
// Locking, I/O and open failures are transient; every other result code
// comes from the statement and is permanent. Errors that carry no SQLite
// code are treated as connectivity faults.
type SQLiteClassifier struct{}

// Classify implements Classifier.
func (SQLiteClassifier) Classify(err error) (Class, string) {
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		code := serr.Code()
		name := strconv.Itoa(int(code))
		switch code {
		case sqlite3.BUSY, sqlite3.LOCKED, sqlite3.IOERR, sqlite3.CANTOPEN,
			sqlite3.PROTOCOL, sqlite3.NOMEM, sqlite3.INTERRUPT:
			return Transient, name
		default:
			return Permanent, name
		}
	}
	if errors.Is(err, driver.ErrBadConn) {
		return Transient, "bad-conn"
	}
	return Transient, ""
}

// Coded is implemented by backend errors that expose a numeric code.
type Coded interface {
	ErrorCode() int
}

// CodeRange is an inclusive range of numeric error codes.
type CodeRange struct {
	From, To int
}

// Contains reports whether code lies in r.
func (r CodeRange) Contains(code int) bool {
	return code >= r.From && code <= r.To
}

// CodeRangeClassifier marks codes in any of Permanent as permanent and
// every other code as transient. It fits backends that reserve a numeric
// range for application and semantic errors.
type CodeRangeClassifier struct {
	Permanent []CodeRange
	// Code extracts the numeric code. The default looks for a Coded error
	// in the chain.
	Code func(err error) (int, bool)
}

// Classify implements Classifier.
func (c CodeRangeClassifier) Classify(err error) (Class, string) {
	extract := c.Code
	if extract == nil {
		extract = codeOf
	}
	code, ok := extract(err)
	if !ok {
		return Transient, ""
	}
	name := strconv.Itoa(code)
	for _, r := range c.Permanent {
		if r.Contains(code) {
			return Permanent, name
		}
	}
	return Transient, name
}

// SQLiteCode extracts the primary result code of an ncruces SQLite error,
// for use as CodeRangeClassifier.Code.
func SQLiteCode(err error) (int, bool) {
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		return int(serr.Code()), true
	}
	return 0, false
}

func codeOf(err error) (int, bool) {
	var coded Coded
	if errors.As(err, &coded) {
		return coded.ErrorCode(), true
	}
	return 0, false
}
