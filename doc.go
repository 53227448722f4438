// Package litedb provides a typed, concurrency-safe façade over a single
// embedded SQLite database file.
//
// The package owns three things: a serialized single-writer queue, a
// multi-reader WAL connection pool, and the value/row/statement plumbing
// both sit on top of. Higher-level concerns — the expression-algebra
// query builder, the persistence mapper, the migrator, and the
// fetched-records controller — live in the sibling packages litedb/query,
// litedb/record, litedb/migrate, and litedb/frc.
//
// # Concurrency
//
// A *Connection owned by a queue is pinned to one goroutine: its
// serialized queue's worker. Statement.Execute and Statement.Query log a
// warning if called off that worker; the rest of the enforcement is
// structural — DatabaseQueue.Write and DatabasePool.Write/Read hand a
// queue's *Connection only to tasks run on its worker. A *Connection
// returned by Open belongs to no worker and is not checked.
// DatabaseQueue exposes a single such
// worker; DatabasePool exposes one writer worker plus a bounded set of
// reader workers, each reading a WAL snapshot acquired under a
// DEFERRED transaction.
//
//	q, err := litedb.OpenQueue("app.sqlite", litedb.Configuration{})
//	err = q.Write(ctx, func(db *litedb.Connection) error {
//	        _, err := db.Exec(ctx, "INSERT INTO t(a) VALUES (?)", 1)
//	        return err
//	})
//
// # Values
//
// DatabaseValue is a tagged union mirroring SQLite's storage classes
// (null, int64, double, text, blob). Row is an ordered, case-insensitive
// sequence of (column, DatabaseValue) pairs. The Row that Rows.Row
// returns while iterating a statement is "live" — valid only until the
// next Next — unless explicitly Detach()ed; Rows.FetchAll,
// Connection.Fetch and Connection.FetchOne hand back detached copies.
//
// # Errors
//
// All errors returned by this package are one of DatabaseError,
// ConversionError, NotFound, ArgumentError, SchemaError, or
// CommitVetoed. DatabaseError is wrapped with github.com/pkg/errors so
// that errors.Cause and %+v retain the originating stack; the other
// kinds are returned unwrapped.
package litedb
