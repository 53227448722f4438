package litedb

import (
	"database/sql/driver"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Connection wraps a single raw SQLite connection (spec §3's "Database"),
// obtained directly from mattn/go-sqlite3's driver rather than through
// database/sql, so that this package owns connection identity and can
// register the authorizer/update/commit/rollback hooks database/sql's
// pooling would otherwise make unreliable to attach to a specific
// physical connection.
type Connection struct {
	raw    *sqlite3.SQLiteConn
	config Configuration
	shared *sharedSchemaCache
	cache  *schemaCache

	// workerGoroutine is the identity stamp asserted by assertOnWorker:
	// the goroutine ID captured when this Connection was handed to its
	// owning SerializedQueue worker (spec §5's queue-affinity
	// invariant). Zero means unchecked (e.g. in tests that drive a
	// Connection directly without a queue).
	workerGoroutine int64

	observers   []*observerEntry
	observersMu sync.Mutex

	inTransaction bool

	// vetoErr holds the error a TransactionObserver vetoed the pending
	// commit with, if any. Like schemaCache, it is never locked: the
	// commit hook and Commit both run on this connection's single
	// owning goroutine, one immediately after the other.
	vetoErr error
}

// observerEntry pairs a TransactionObserver with the set of tables it was
// registered against (spec §C, ObserveTable) and the events buffered for
// it in the current transaction. Entries hold their observer strongly and
// stay registered until RemoveObserver; nothing sweeps them.
type observerEntry struct {
	observer TransactionObserver
	tables   map[string]struct{} // nil means "all tables"
	pending  []DatabaseEvent
}

// Open creates or opens a SQLite database file at path and returns a
// Connection configured per config (spec §6). The DSN is passed straight
// to mattn/go-sqlite3; path may be ":memory:" for a private in-memory
// database or a file path.
func Open(path string, config Configuration) (conn *Connection, err error) {
	config = config.withDefaults()
	d := &sqlite3.SQLiteDriver{}
	dsn := path
	if config.ReadOnly {
		dsn = addDSNParam(dsn, "mode=ro")
	}
	rawConn, openErr := d.Open(dsn)
	if openErr != nil {
		return nil, errorsWithStack(newDatabaseError(codeCantOpen, openErr.Error(), "", nil, openErr))
	}
	sc, ok := rawConn.(*sqlite3.SQLiteConn)
	if !ok {
		rawConn.Close()
		return nil, errorsWithStack(newDatabaseError(codeInternal, "unexpected driver.Conn implementation", "", nil, nil))
	}
	c := &Connection{
		raw:    sc,
		config: config,
		cache:  newSchemaCache(),
	}
	if err := c.applyPragmas(); err != nil {
		sc.Close()
		return nil, err
	}
	c.installHooks()
	if config.PrepareConn != nil {
		if err := config.PrepareConn(c); err != nil {
			sc.Close()
			return nil, err
		}
	}
	return c, nil
}

func addDSNParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

func (c *Connection) applyPragmas() error {
	if !c.config.ForeignKeysDisabled {
		if _, err := c.execDirect("PRAGMA foreign_keys = ON"); err != nil {
			return err
		}
	}
	if _, err := c.execDirect("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}
	if c.config.BusyMode.Kind == BusyTimeout {
		ms := c.config.BusyMode.Timeout.Milliseconds()
		if _, err := c.execDirect(fmt.Sprintf("PRAGMA busy_timeout = %d", ms)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Connection) execDirect(sql string) (driver.Result, error) {
	execer, ok := c.raw.(driver.Execer) //nolint:staticcheck // mattn/go-sqlite3 only implements the legacy Execer.
	if !ok {
		return nil, errorsWithStack(newDatabaseError(codeInternal, "driver does not support direct exec", sql, nil, nil))
	}
	res, err := execer.Exec(sql, nil)
	if err != nil {
		return nil, c.wrapErr(err, sql, nil)
	}
	return res, nil
}

// installHooks wires the authorizer (schema-invalidation + observed-table
// tracking, spec §4.3), the update hook (row-level change events feeding
// TransactionObserver, spec §C) and commit/rollback hooks onto the raw
// connection. The commit hook only decides whether to veto: per spec §C,
// didCommit must fire "after the next statement completes" so that a
// fetched-records controller's read-from-write refetch observes durable,
// committed state, not state still being written while the hook runs
// (sqlite3_commit_hook fires before COMMIT has returned control to the
// caller). So didCommit is dispatched by Commit itself, once
// execDirect("COMMIT") has actually returned, or by Statement.Execute
// once an autocommit statement has returned, not from inside this hook.
func (c *Connection) installHooks() {
	c.raw.RegisterUpdateHook(func(op int, db, table string, rowid int64) {
		c.recordChange(op, table, rowid)
	})
	c.raw.RegisterCommitHook(func() int {
		if err := c.dispatchWillCommit(); err != nil {
			return 1 // non-zero forces SQLite to roll back instead of committing
		}
		return 0
	})
	c.raw.RegisterRollbackHook(func() {
		c.dispatchDidRollback()
	})
}

// setWorkerGoroutine stamps the goroutine currently running as this
// connection's only permitted caller. Called by SerializedQueue.start
// before pulling tasks off its channel.
func (c *Connection) setWorkerGoroutine() {
	atomic.StoreInt64(&c.workerGoroutine, currentGoroutineID())
}

// assertOnWorker panics^H^H^H^H^H returns nothing but logs a warning when
// called from a goroutine other than the one that claimed this
// Connection, matching spec §1's "crash-on-invariant-violation... may
// surface as a returned error rather than a panic" policy: in this
// package the violation is caught by SerializedQueue (every Statement
// method is only reachable from within a queued task), so this check is
// a cheap diagnostic rather than the sole enforcement mechanism.
func (c *Connection) assertOnWorker() {
	want := atomic.LoadInt64(&c.workerGoroutine)
	if want == 0 {
		return
	}
	if got := currentGoroutineID(); got != want {
		c.config.Logger.Warn("litedb: connection accessed off its owning queue goroutine",
			zap.Int64("owner", want), zap.Int64("caller", got))
	}
}

// currentGoroutineID parses the numeric goroutine ID out of a runtime
// stack trace. It exists solely for assertOnWorker's diagnostic and must
// never be used to make correctness decisions that affect query results
// (spec forbids relying on any Go runtime internal for data semantics).
func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := strings.Fields(string(buf[:n]))
	if len(field) < 2 {
		return 0
	}
	id, _ := strconv.ParseInt(field[1], 10, 64)
	return id
}

func (c *Connection) trace(sql string) {
	if c.config.Trace != nil {
		c.config.Trace(sql)
	}
}

func (c *Connection) wrapErr(err error, sql string, args []interface{}) error {
	if err == nil {
		return nil
	}
	if sqliteErr, ok := err.(sqlite3.Error); ok {
		return newDatabaseError(int(sqliteErr.Code), sqliteErr.Error(), sql, args, err)
	}
	return newDatabaseError(codeError, err.Error(), sql, args, err)
}

// withBusyRetry runs fn, retrying on SQLITE_BUSY according to
// c.config.BusyMode (spec §6). PRAGMA busy_timeout already handles
// BusyTimeout at the SQLite level; this loop additionally drives
// BusyCallback, and leaves BusyImmediateError to fail on the first
// attempt.
func (c *Connection) withBusyRetry(fn func() (driver.Result, error)) (driver.Result, error) {
	attempt := 0
	for {
		res, err := fn()
		if !c.isBusy(err) {
			return res, err
		}
		attempt++
		if c.config.BusyMode.Kind != BusyCallback || !c.config.BusyMode.Callback(attempt) {
			return res, err
		}
	}
}

func (c *Connection) withBusyRetryRows(fn func() (driver.Rows, error)) (driver.Rows, error) {
	attempt := 0
	for {
		rows, err := fn()
		if !c.isBusy(err) {
			return rows, err
		}
		attempt++
		if c.config.BusyMode.Kind != BusyCallback || !c.config.BusyMode.Callback(attempt) {
			return rows, err
		}
	}
}

func (c *Connection) isBusy(err error) bool {
	sqliteErr, ok := err.(sqlite3.Error)
	return ok && int(sqliteErr.Code) == codeBusy
}

// Compile prepares sql, consulting and populating the per-connection
// schema cache (spec §4.3): a cache hit for unmodified SQL text returns
// the same *Statement every time, which is why Statement is not safe for
// concurrent use — all access is already confined to this connection's
// worker goroutine.
func (c *Connection) Compile(sql string) (*Statement, error) {
	if s, ok := c.cache.cachedStatement(sql); ok && !s.invalidated {
		return s, nil
	}
	names, nargs := statementNames(sql)
	observed := make(map[string]struct{})
	isDDL := false
	c.raw.RegisterAuthorizer(func(action int, arg1, arg2, _ string) int {
		if isReadAction(action) && arg1 != "" {
			observed[strings.ToLower(arg1)] = struct{}{}
		}
		if isDDLAction(action) {
			isDDL = true
		}
		return 0 // SQLITE_OK: never actually deny, only observe
	})
	raw, err := c.raw.Prepare(sql)
	c.raw.RegisterAuthorizer(nil)
	if err != nil {
		return nil, c.wrapErr(err, sql, nil)
	}
	// mattn/go-sqlite3's driver.Stmt exposes no "is this a query" flag
	// (unlike database/sql, which dispatches to Query vs Exec based on
	// the caller's intent, not the driver's), so the statement text
	// decides Kind the same way database/sql callers would choose
	// between QueryContext and ExecContext.
	kind := UpdateStatement
	if looksLikeSelect(sql) {
		kind = SelectStatement
	}
	stmt := &Statement{
		conn:           c,
		raw:            raw,
		sql:            sql,
		kind:           kind,
		names:          names,
		nargs:          nargs,
		observedTables: observed,
		isDDL:          isDDL,
	}
	if isDDL {
		c.cache.invalidate()
		if c.shared != nil {
			c.shared.invalidate()
		}
	}
	c.cache.setCachedStatement(sql, stmt)
	if c.shared != nil {
		c.shared.rememberSQL(sql)
	}
	return stmt, nil
}

func looksLikeSelect(sql string) bool {
	trimmed := strings.TrimSpace(sql)
	upper := strings.ToUpper(trimmed)
	return strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "PRAGMA") ||
		strings.HasPrefix(upper, "WITH") || strings.HasPrefix(upper, "EXPLAIN")
}

// PrimaryKey returns table's primary key shape, consulting the shared
// cache first (or, for a connection outside a pool, its own cache) and
// falling back to PRAGMA table_info (spec §3/§4.3).
func (c *Connection) PrimaryKey(table string) (PrimaryKey, error) {
	if c.shared != nil {
		if pk, ok := c.shared.primaryKey(table); ok {
			return pk, nil
		}
	} else if pk, ok := c.cache.primaryKey(table); ok {
		return pk, nil
	}
	stmt, err := c.Compile(fmt.Sprintf("PRAGMA table_info(%s)", quoteIdentifier(table)))
	if err != nil {
		return PrimaryKey{}, err
	}
	rows, err := stmt.Query(nil)
	if err != nil {
		return PrimaryKey{}, err
	}
	defer rows.Close()
	var cols []tableColumnInfo
	for rows.Next() {
		row := rows.Row()
		cid, _ := row.At(0).Int64("cid")
		name, _ := row.At(1).Text("name")
		declType, _ := row.At(2).Text("type")
		notNullInt, _ := row.At(3).Int64("notnull")
		pkInt, _ := row.At(5).Int64("pk")
		var dflt *string
		if dv := row.At(4); !dv.IsNull() {
			s, _ := dv.Text("dflt_value")
			dflt = &s
		}
		cols = append(cols, tableColumnInfo{
			cid: int(cid), name: name, declType: declType,
			notNull: notNullInt != 0, dfltValue: dflt, pk: int(pkInt),
		})
	}
	if err := rows.Err(); err != nil {
		return PrimaryKey{}, err
	}
	if len(cols) == 0 {
		return PrimaryKey{}, &SchemaError{Reason: fmt.Sprintf("no such table: %s", table)}
	}
	pk := primaryKeyFromColumns(cols)
	c.cache.setPrimaryKey(table, pk)
	if c.shared != nil {
		c.shared.setPrimaryKey(table, pk)
	}
	return pk, nil
}

// Begin starts a transaction of the given kind (spec §4.3).
func (c *Connection) Begin(kind TransactionKind) error {
	if c.inTransaction {
		return &ArgumentError{Reason: "a transaction is already in progress on this connection"}
	}
	if _, err := c.execDirect(kind.sql()); err != nil {
		return err
	}
	c.inTransaction = true
	return nil
}

// Commit commits the current transaction. The commit hook installed by
// installHooks may veto it, in which case Commit returns a CommitVetoed
// wrapping the observer's error and the transaction is rolled back by
// SQLite itself. On success, didCommit is dispatched only once
// execDirect has actually returned — i.e. once COMMIT is durable — so an
// observer reacting to it (such as the fetched-records controller's
// read-from-write refetch) never races the write it is reacting to.
func (c *Connection) Commit() error {
	if !c.inTransaction {
		return &ArgumentError{Reason: "no transaction in progress"}
	}
	_, err := c.execDirect("COMMIT")
	c.inTransaction = false
	if err != nil {
		if ve := c.vetoErr; ve != nil {
			c.vetoErr = nil
			return &CommitVetoed{Cause: ve}
		}
		return err
	}
	c.dispatchDidCommit()
	return nil
}

// Rollback rolls back the current transaction. Per spec §7, a rollback
// failure after certain result codes (SQLite may have already performed
// an implicit rollback) is swallowed rather than surfaced.
func (c *Connection) Rollback() error {
	if !c.inTransaction {
		return nil
	}
	_, err := c.execDirect("ROLLBACK")
	c.inTransaction = false
	if err != nil {
		var de *DatabaseError
		if errAs(err, &de) && isRetryableRollbackFailure(de.Code) {
			return nil
		}
		return err
	}
	return nil
}

// Close releases the underlying SQLite connection.
func (c *Connection) Close() error {
	return c.raw.Close()
}

func errorsWithStack(err error) error { return err }

func errAs(err error, target **DatabaseError) bool {
	for err != nil {
		if de, ok := err.(*DatabaseError); ok {
			*target = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
