package query

import (
	"errors"
	"fmt"
)

var (
	// ErrPermanent is matched by every *PermanentQueryError.
	ErrPermanent = errors.New("permanent query error")

	// ErrConnectivityExhausted is matched by every *ConnectivityExhaustedError.
	ErrConnectivityExhausted = errors.New("connectivity retries exhausted")

	// ErrClosed is returned by Execute after Close.
	ErrClosed = errors.New("query channel closed")
)

// PermanentQueryError is a fault caused by the statement itself. Retrying
// cannot help.
type PermanentQueryError struct {
	Code string
	Err  error
}

func (e *PermanentQueryError) Error() string {
	return fmt.Sprintf("permanent query error (code %s): %v", e.Code, e.Err)
}

func (e *PermanentQueryError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrPermanent) succeed.
func (e *PermanentQueryError) Is(target error) bool { return target == ErrPermanent }

// ConnectivityExhaustedError reports that every allowed attempt failed with
// a transient fault. Err is the last cause.
type ConnectivityExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ConnectivityExhaustedError) Error() string {
	return fmt.Sprintf("connectivity exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectivityExhaustedError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConnectivityExhausted) succeed.
func (e *ConnectivityExhaustedError) Is(target error) bool {
	return target == ErrConnectivityExhausted
}

// rowError carries an error returned by the caller's row function. It is
// never classified or retried.
type rowError struct {
	err error
}

func (e *rowError) Error() string { return e.err.Error() }
func (e *rowError) Unwrap() error { return e.err }

// openError is a failure to (re)establish the connection. It is always
// transient.
type openError struct {
	err error
}

func (e *openError) Error() string { return fmt.Sprintf("failed to open connection: %v", e.err) }
func (e *openError) Unwrap() error { return e.err }

// IsRetryable returns true if a later call may succeed: the channel gave up
// on connectivity, not on the statement.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConnectivityExhausted)
}

// IsPermanent returns true if the statement itself is at fault and will fail
// again unchanged.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrPermanent)
}
