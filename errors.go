package zorm

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a row required by get, fetch or update is absent.
var ErrNotFound = errors.New("record not found")

// ErrInvalidValue is returned when a user supplied value fails Field.Validate.
var ErrInvalidValue = errors.New("invalid field value")

// ErrInvalidSQLValue is returned when Field.FromSQLValue rejects a cursor cell.
var ErrInvalidSQLValue = errors.New("invalid sql field value")

// ErrPrimaryKeyViolation is returned when an id based statement touched or
// returned more than one row.
var ErrPrimaryKeyViolation = errors.New("id field is not a primary key")

// ErrInsufficientColumns is returned when a cursor has fewer columns than the
// select groups of a query need.
var ErrInsufficientColumns = errors.New("insufficient columns")

// ErrEmptySelect is returned when a query has nothing to select.
var ErrEmptySelect = errors.New("empty select")

// ErrDuplicateLabel is returned when two selected items share a result name.
var ErrDuplicateLabel = errors.New("duplicate selected item name")

// ErrIllegalState is returned for operations on closed sessions, detached or
// new records where an existing one is required, and sealed schemas.
var ErrIllegalState = errors.New("illegal state")

// ErrSQL marks failures reported by the SQL client.
var ErrSQL = errors.New("sql error")

// ErrEmptyTable is returned when a schema is sealed without a table name. It
// is also an ErrIllegalState.
var ErrEmptyTable = fmt.Errorf("%w: empty table name", ErrIllegalState)

// ErrNoTxSupport is returned by Session.Tx when the connection is in
// auto-commit mode.
var ErrNoTxSupport = errors.New("transaction not supported")

// FieldError reports a value rejected by a field, either coming from user code
// (Kind is ErrInvalidValue) or from a cursor cell (Kind is ErrInvalidSQLValue).
type FieldError struct {
	Kind  error
	Field Field
	Value any
	Err   error
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("%v: field %v, value %#v", e.Kind, e.Field, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalidValue(f Field, v any, cause error) error {
	return errors.WithStack(&FieldError{Kind: ErrInvalidValue, Field: f, Value: v, Err: cause})
}

func invalidSQLValue(f Field, v any, cause error) error {
	return errors.WithStack(&FieldError{Kind: ErrInvalidSQLValue, Field: f, Value: v, Err: cause})
}

// SQLError wraps a SQL client failure together with the emitted statement.
type SQLError struct {
	SQL string
	Err error
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("sql error executing %q: %v", e.SQL, e.Err)
}

func (e *SQLError) Unwrap() []error { return []error{ErrSQL, e.Err} }

func sqlError(query string, err error) error {
	return errors.WithStack(&SQLError{SQL: query, Err: err})
}

func illegalState(format string, args ...any) error {
	return errors.Wrapf(ErrIllegalState, format, args...)
}
