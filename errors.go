package litedb

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DatabaseError wraps any failure reported by the underlying SQLite API.
// It carries the SQLite result code, an optional message, enough context
// (the offending SQL and its arguments) to reproduce the failure, and a
// CorrelationID unique to this occurrence, for tying a report back to a
// single log line when the same query fails repeatedly.
type DatabaseError struct {
	Code          int
	Message       string
	SQL           string
	Arguments     []interface{}
	CorrelationID string
	cause         error
}

func (e *DatabaseError) Error() string {
	msg := fmt.Sprintf("SQLite error %d", e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.SQL != "" {
		msg += fmt.Sprintf(" (SQL: %q", e.SQL)
		if len(e.Arguments) > 0 {
			msg += fmt.Sprintf(", arguments: %v", e.Arguments)
		}
		msg += ")"
	}
	if e.CorrelationID != "" {
		msg += " [" + e.CorrelationID + "]"
	}
	return msg
}

func (e *DatabaseError) Unwrap() error { return e.cause }

// newDatabaseError builds a DatabaseError, attaching sql/args context
// when available, stamping it with a fresh correlation id, and wraps it
// with a stack trace via pkg/errors.
func newDatabaseError(code int, message, sql string, args []interface{}, cause error) error {
	de := &DatabaseError{
		Code:          code,
		Message:       message,
		SQL:           sql,
		Arguments:     args,
		CorrelationID: uuid.NewString(),
		cause:         cause,
	}
	return errors.WithStack(de)
}

// ConversionError reports that a required value was NULL or could not
// be converted to the requested type without loss, per the affinity
// matrix in spec §4.1.
type ConversionError struct {
	Column string
	From   string
	To     string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("litedb: cannot convert column %q from %s to %s", e.Column, e.From, e.To)
}

// NotFound reports that an update targeted a primary key that does not
// exist in the table. (A delete of a missing key reports false instead.)
type NotFound struct {
	Table string
	Key   map[string]DatabaseValue
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("litedb: no row in %q matching %v", e.Table, e.Key)
}

// ArgumentError reports an invalid argument list for a prepared
// statement (wrong count, unknown name) or an invalid/empty persistence
// dictionary.
type ArgumentError struct {
	Reason string
}

func (e *ArgumentError) Error() string { return "litedb: " + e.Reason }

// SchemaError reports a missing table/primary key, a reverse() without a
// deterministic ordering, or an FK-check failure during a deferred-FK
// migration.
type SchemaError struct {
	Reason string
}

func (e *SchemaError) Error() string { return "litedb: schema error: " + e.Reason }

// CommitVetoed wraps the error returned by a TransactionObserver's
// WillCommit, which caused SQLite to roll back the transaction instead
// of committing it.
type CommitVetoed struct {
	Cause error
}

func (e *CommitVetoed) Error() string {
	return fmt.Sprintf("litedb: commit vetoed by observer: %v", e.Cause)
}

func (e *CommitVetoed) Unwrap() error { return e.Cause }

// isRetryableRollbackFailure reports whether rc is one of the SQLite
// result codes after which SQLite may have already performed an
// implicit rollback, so a subsequent explicit ROLLBACK failing should be
// swallowed (spec §7).
func isRetryableRollbackFailure(code int) bool {
	switch code {
	case codeFull, codeIOErr, codeBusy, codeNoMem:
		return true
	}
	return false
}
