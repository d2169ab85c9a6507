package crud

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound signals that a keyed lookup matched zero rows. It is the
// expected miss outcome, not an exceptional error: callers branch on it
// and it is never logged as an error.
var ErrNotFound = errors.New("not found")

// ConstraintError reports a store-level constraint violation
// (unique, not-null or foreign-key).
type ConstraintError struct {
	Code       string
	Constraint string
	Column     string
	Table      string
}

func (e *ConstraintError) Error() string {
	switch e.Code {
	case "23505":
		return fmt.Sprintf("a record with these values already exists (constraint %s)", e.Constraint)
	case "23502":
		return fmt.Sprintf("required field %q is missing", e.Column)
	case "23503":
		return fmt.Sprintf("a referenced record does not exist (constraint %s)", e.Constraint)
	}
	return fmt.Sprintf("constraint violation %s", e.Code)
}

// ValueTooLongError reports a character-length constraint violation. The
// legacy tables use fixed-width varchar columns, so this case is common
// enough to warrant its own message naming the offending column when the
// store reports it.
type ValueTooLongError struct {
	Column string
}

func (e *ValueTooLongError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("value too long for column %q", e.Column)
	}
	return "value too long for a fixed-width column"
}

// QueryError reports a store execution failure. Timeout distinguishes a
// retryable timeout from a fatal failure.
type QueryError struct {
	Err     error
	Timeout bool
}

func (e *QueryError) Error() string {
	if e.Timeout {
		return "query timed out"
	}
	return "query failed: " + e.Err.Error()
}

func (e *QueryError) Unwrap() error { return e.Err }

// wrapStoreError maps driver errors to the typed taxonomy. Raw store
// internals never cross this boundary.
func wrapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &QueryError{Err: err, Timeout: true}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "22001": // string_data_right_truncation
			return &ValueTooLongError{Column: pqErr.Column}
		case "23505", "23502", "23503":
			return &ConstraintError{
				Code:       string(pqErr.Code),
				Constraint: pqErr.Constraint,
				Column:     pqErr.Column,
				Table:      pqErr.Table,
			}
		case "57014": // query_canceled, raised by statement_timeout
			return &QueryError{Err: err, Timeout: true}
		}
	}
	return &QueryError{Err: err}
}
