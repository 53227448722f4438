package litedb

import (
	"database/sql/driver"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// StatementKind distinguishes a read-only select statement from one
// that can modify the database (spec §3).
type StatementKind int

const (
	// SelectStatement executes via Query and yields rows.
	SelectStatement StatementKind = iota
	// UpdateStatement executes via Exec and yields a change count.
	UpdateStatement
)

// Statement is a compiled SQL statement (spec §3/§4.2). It is cached by
// SQL text on its owning Connection and is not safe for concurrent use.
type Statement struct {
	conn *Connection
	raw  driver.Stmt

	sql   string
	kind  StatementKind
	names []string // argument names by position, "" for anonymous
	nargs int

	// observedTables and isDDL are populated by the connection's
	// authorizer callback during compilation (spec §4.2/§4.3).
	observedTables map[string]struct{}
	isDDL          bool

	invalidated bool // set by schemaCache.invalidate; recompiled on next use
}

// SQL returns the statement's source text.
func (s *Statement) SQL() string { return s.sql }

// Kind reports whether this is a select or update statement.
func (s *Statement) Kind() StatementKind { return s.kind }

// ArgumentCount returns the number of bind parameters the statement
// declares.
func (s *Statement) ArgumentCount() int { return s.nargs }

// ArgumentNames returns the declared parameter names by position; an
// empty string marks an anonymous position.
func (s *Statement) ArgumentNames() []string { return s.names }

// ObservedTables returns the set of tables this statement's compilation
// was observed reading, via the authorizer (spec §4.2).
func (s *Statement) ObservedTables() map[string]struct{} { return s.observedTables }

// ModifiesSchema reports whether compiling this statement observed a
// schema-mutating (DDL) authorizer action.
func (s *Statement) ModifiesSchema() bool { return s.isDDL }

// resolveArgs maps StatementArguments onto a driver.Value slice ordered
// by bind position, validating count/name per spec §4.2: unnamed
// positional arguments may bind to named parameters positionally, but a
// named StatementArguments must supply every name the statement
// declares.
func (s *Statement) resolveArgs(args *StatementArguments) ([]driver.Value, error) {
	if args == nil || (args.named == nil && len(args.positional) == 0 && s.nargs == 0) {
		return nil, nil
	}
	out := make([]driver.Value, s.nargs)
	if args.IsNamed() {
		for i := 0; i < s.nargs; i++ {
			name := s.names[i]
			if name == "" {
				return nil, &ArgumentError{Reason: "statement has an anonymous parameter but arguments are named"}
			}
			key := name
			v, ok := args.namedValue(key)
			if !ok {
				// Accept the name with or without its sigil.
				v, ok = args.namedValue(strings.TrimLeft(key, ":@$"))
			}
			if !ok {
				return nil, &ArgumentError{Reason: "missing value for named parameter " + name}
			}
			dv, err := toDriverValue(v)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	}
	values, err := args.consumePositional(s.nargs)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		dv, err := toDriverValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = dv
	}
	return out, nil
}

func toDriverValue(v DatabaseValue) (driver.Value, error) {
	switch v.Kind() {
	case KindNull:
		return nil, nil
	case KindInt64:
		i, _ := v.asInt64()
		return i, nil
	case KindDouble:
		f, _ := v.asDouble()
		return f, nil
	case KindText:
		s, _ := v.asText()
		return s, nil
	case KindBlob:
		b, _ := v.asBlob()
		return b, nil
	default:
		return nil, errors.Errorf("litedb: unhandled value kind %v", v.Kind())
	}
}

func fromDriverValue(v driver.Value) DatabaseValue {
	switch x := v.(type) {
	case nil:
		return Null
	case int64:
		return NewInt64(x)
	case float64:
		return NewDouble(x)
	case bool:
		return NewBool(x)
	case string:
		return NewText(x)
	case []byte:
		return NewBlob(x)
	default:
		return Null
	}
}

// ExecResult is the outcome of executing an update statement (spec
// §4.2).
type ExecResult struct {
	ChangedRowCount  int
	LastInsertRowID  int64
	HasLastInsertRow bool
}

// Execute runs an update statement to completion and returns the number
// of rows it changed and the last inserted rowid, if any.
func (s *Statement) Execute(args *StatementArguments) (ExecResult, error) {
	s.conn.assertOnWorker()
	driverArgs, err := s.resolveArgs(args)
	if err != nil {
		return ExecResult{}, err
	}
	s.conn.trace(s.sql)
	res, execErr := s.conn.withBusyRetry(func() (driver.Result, error) {
		return s.raw.Exec(driverArgs)
	})
	if execErr != nil {
		if ve := s.conn.vetoErr; ve != nil {
			// An observer vetoed this autocommit statement's implicit commit.
			s.conn.vetoErr = nil
			return ExecResult{}, &CommitVetoed{Cause: ve}
		}
		return ExecResult{}, s.conn.wrapErr(execErr, s.sql, driverArgsToAny(driverArgs))
	}
	// In autocommit mode the statement's implicit transaction has committed
	// by now; a transaction opened with Begin dispatches from Commit instead.
	if s.conn.raw.AutoCommit() {
		s.conn.dispatchDidCommit()
	}
	changed, _ := res.RowsAffected()
	lastID, lastErr := res.LastInsertId()
	return ExecResult{
		ChangedRowCount:  int(changed),
		LastInsertRowID:  lastID,
		HasLastInsertRow: lastErr == nil,
	}, nil
}

// Rows is a lazy, non-restartable, forward-only cursor over a select
// statement's results (spec §4.2). A Row yielded by Next is a live view
// invalidated by the following call to Next; Detach it to retain.
type Rows struct {
	stmt    *Statement
	raw     driver.Rows
	cols    []string
	current []driver.Value
	values  []DatabaseValue
	done    bool
	err     error
}

// Query begins executing a select statement and returns a cursor. The
// query is not run until the first call to Next.
func (s *Statement) Query(args *StatementArguments) (*Rows, error) {
	s.conn.assertOnWorker()
	driverArgs, err := s.resolveArgs(args)
	if err != nil {
		return nil, err
	}
	s.conn.trace(s.sql)
	raw, execErr := s.conn.withBusyRetryRows(func() (driver.Rows, error) {
		return s.raw.Query(driverArgs)
	})
	if execErr != nil {
		return nil, s.conn.wrapErr(execErr, s.sql, driverArgsToAny(driverArgs))
	}
	return &Rows{stmt: s, raw: raw, cols: raw.Columns()}, nil
}

// Next advances the cursor, returning false when the result set is
// exhausted (check Err) or on error.
func (r *Rows) Next() bool {
	if r.done {
		return false
	}
	if r.current == nil {
		r.current = make([]driver.Value, len(r.cols))
		r.values = make([]DatabaseValue, len(r.cols))
	}
	err := r.raw.Next(r.current)
	if err != nil {
		r.done = true
		if err != io.EOF {
			r.err = r.stmt.conn.wrapErr(err, r.stmt.sql, nil)
		}
		r.raw.Close()
		return false
	}
	for i, v := range r.current {
		r.values[i] = fromDriverValue(v)
	}
	return true
}

// Err returns the error that stopped iteration, or nil if iteration
// completed normally.
func (r *Rows) Err() error { return r.err }

// Row returns a live Row view over the current step. It is invalidated
// by the next call to Next (spec §3 invariant 1); call Detach to keep
// it.
func (r *Rows) Row() Row {
	return Row{names: r.cols, values: r.values, live: r}
}

// Close releases the underlying cursor. Safe to call multiple times and
// after Next has returned false.
func (r *Rows) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	return r.raw.Close()
}

// FetchAll drains the cursor into a slice of detached rows.
func (r *Rows) FetchAll() ([]Row, error) {
	var out []Row
	for r.Next() {
		out = append(out, r.Row().Detach())
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func driverArgsToAny(args []driver.Value) []interface{} {
	if args == nil {
		return nil
	}
	out := make([]interface{}, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}
