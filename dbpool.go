package litedb

import (
	"context"
	"fmt"
)

// DatabasePool is a single serialized writer connection plus a bounded
// pool of read-only WAL connections (spec §5's "DatabasePool"
// configuration), letting readers run concurrently with a write in
// progress. All connections share a sharedSchemaCache so that a DDL
// statement executed on the writer invalidates every reader's primary
// key cache too.
type DatabasePool struct {
	path   string
	config Configuration
	shared *sharedSchemaCache

	writer  *SerializedQueue
	readers chan *SerializedQueue
	size    int
}

// OpenPool opens path and builds a writer plus config.PoolSize read-only
// connections (default 5, per Configuration.withDefaults).
func OpenPool(path string, config Configuration) (*DatabasePool, error) {
	config = config.withDefaults()
	shared := newSharedSchemaCache(0)

	writerConn, err := Open(path, config)
	if err != nil {
		return nil, err
	}
	writerConn.shared = shared

	p := &DatabasePool{
		path:    path,
		config:  config,
		shared:  shared,
		writer:  newSerializedQueue(writerConn),
		readers: make(chan *SerializedQueue, config.PoolSize),
		size:    config.PoolSize,
	}
	readerConfig := config
	readerConfig.ReadOnly = true
	for i := 0; i < config.PoolSize; i++ {
		conn, err := Open(path, readerConfig)
		if err != nil {
			p.Close()
			return nil, err
		}
		conn.shared = shared
		p.readers <- newSerializedQueue(conn)
	}
	return p, nil
}

// Write runs fn on the writer connection, blocking other writes until it
// completes (spec §5's single-writer guarantee).
func (p *DatabasePool) Write(ctx context.Context, fn func(*Connection) error) error {
	return p.writer.RunSync(ctx, fn)
}

// WriteAsync submits fn to the writer without waiting for completion.
func (p *DatabasePool) WriteAsync(fn func(*Connection) error, done func(error)) {
	p.writer.RunAsync(fn, done)
}

// Read acquires a reader connection from the pool, runs fn on it inside
// a DEFERRED transaction so fn observes a single consistent WAL
// snapshot for its duration (spec §5, "reads observe a snapshot"), and
// returns the connection to the pool afterwards. It blocks until a
// reader is available or ctx is done.
func (p *DatabasePool) Read(ctx context.Context, fn func(*Connection) error) error {
	var q *SerializedQueue
	select {
	case q = <-p.readers:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { p.readers <- q }()
	return q.RunSync(ctx, func(conn *Connection) error {
		if err := conn.Begin(Deferred); err != nil {
			return err
		}
		defer conn.Rollback() // read-only snapshot: always rolled back, never committed
		return fn(conn)
	})
}

// ReadUnsafe acquires a reader connection like Read, but runs fn without
// wrapping it in a transaction (spec §4.4, "non-isolated read"):
// statement-level isolation only, so successive statements inside fn may
// observe different snapshots if a write commits in between.
func (p *DatabasePool) ReadUnsafe(ctx context.Context, fn func(*Connection) error) error {
	var q *SerializedQueue
	select {
	case q = <-p.readers:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { p.readers <- q }()
	return q.RunSync(ctx, fn)
}

// ReadFromWrite is the writer-initiated hand-off described in spec
// §4.4: it acquires a reader, begins a DEFERRED transaction on it to
// capture the current snapshot, and blocks the caller (expected to be
// the writer worker, right after a commit) only until that snapshot is
// acquired. fn then runs to completion on the reader in the background;
// done is called with fn's error once the reader has rolled back its
// snapshot transaction and been returned to the pool. This is the
// mechanism the fetched-records controller (litedb/frc) uses to
// re-fetch without blocking the next write.
func (p *DatabasePool) ReadFromWrite(ctx context.Context, fn func(*Connection) error, done func(error)) error {
	var q *SerializedQueue
	select {
	case q = <-p.readers:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := q.RunSync(ctx, func(conn *Connection) error {
		if err := conn.Begin(Deferred); err != nil {
			return err
		}
		// A deferred transaction takes its WAL snapshot at its first read.
		if _, _, err := conn.FetchOne(ctx, "SELECT 1 FROM sqlite_master LIMIT 1"); err != nil {
			conn.Rollback()
			return err
		}
		return nil
	}); err != nil {
		p.readers <- q
		return err
	}
	q.RunAsync(func(conn *Connection) error {
		err := fn(conn)
		conn.Rollback()
		return err
	}, func(err error) {
		p.readers <- q
		if done != nil {
			done(err)
		}
	})
	return nil
}

// Snapshot is a reader connection pinned to the WAL state visible at the
// moment it was opened, kept alive across multiple Read calls instead of
// being returned to the pool between them (spec §C, OpenSnapshot).
type Snapshot struct {
	pool  *DatabasePool
	queue *SerializedQueue
}

// OpenSnapshot opens a dedicated read-only connection, begins a
// DEFERRED transaction on it to pin the current WAL snapshot, and
// returns a Snapshot the caller can Read from repeatedly until Close.
// Unlike Read, the snapshot connection is not drawn from the bounded
// pool: it is a separate connection for the lifetime the caller chooses.
func (p *DatabasePool) OpenSnapshot() (*Snapshot, error) {
	readerConfig := p.config
	readerConfig.ReadOnly = true
	conn, err := Open(p.path, readerConfig)
	if err != nil {
		return nil, err
	}
	conn.shared = p.shared
	q := newSerializedQueue(conn)
	if err := q.RunSync(context.Background(), func(c *Connection) error {
		if err := c.Begin(Deferred); err != nil {
			return err
		}
		// A deferred transaction takes its WAL snapshot at its first read.
		if _, _, err := c.FetchOne(context.Background(), "SELECT 1 FROM sqlite_master LIMIT 1"); err != nil {
			c.Rollback()
			return err
		}
		return nil
	}); err != nil {
		q.Close()
		return nil, err
	}
	return &Snapshot{pool: p, queue: q}, nil
}

// Read runs fn against the pinned snapshot.
func (s *Snapshot) Read(ctx context.Context, fn func(*Connection) error) error {
	return s.queue.RunSync(ctx, fn)
}

// Close rolls back the snapshot's pinning transaction and closes its
// connection.
func (s *Snapshot) Close() error {
	s.queue.RunSync(context.Background(), func(c *Connection) error {
		return c.Rollback()
	})
	return s.queue.Close()
}

// CheckpointMode selects a PRAGMA wal_checkpoint mode.
type CheckpointMode int

const (
	CheckpointPassive CheckpointMode = iota
	CheckpointFull
	CheckpointRestart
	CheckpointTruncate
)

func (m CheckpointMode) String() string {
	switch m {
	case CheckpointFull:
		return "FULL"
	case CheckpointRestart:
		return "RESTART"
	case CheckpointTruncate:
		return "TRUNCATE"
	default:
		return "PASSIVE"
	}
}

// Checkpoint runs PRAGMA wal_checkpoint(mode) on the writer connection
// (spec §C), returning the number of WAL log frames and the number of
// frames successfully checkpointed.
func (p *DatabasePool) Checkpoint(ctx context.Context, mode CheckpointMode) (logFrames, checkpointed int, err error) {
	runErr := p.writer.RunSync(ctx, func(conn *Connection) error {
		row, ok, queryErr := conn.FetchOne(ctx, fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode))
		if queryErr != nil {
			return queryErr
		}
		if !ok {
			return &SchemaError{Reason: "wal_checkpoint returned no row"}
		}
		lf, convErr := row.At(1).Int64("log")
		if convErr != nil {
			return convErr
		}
		cp, convErr := row.At(2).Int64("checkpointed")
		if convErr != nil {
			return convErr
		}
		logFrames, checkpointed = int(lf), int(cp)
		return nil
	})
	return logFrames, checkpointed, runErr
}

// AddFunction registers a scalar function on the writer and every
// currently pooled reader (spec §4.4: "function/collation registrations
// apply to the writer and to every reader"). It does not persist for
// readers opened later by a resized pool, since this package's pool size
// is fixed at OpenPool time.
func (p *DatabasePool) AddFunction(ctx context.Context, name string, pure bool, impl interface{}) error {
	return p.forEachConnection(ctx, func(c *Connection) error {
		return c.AddFunction(name, pure, impl)
	})
}

// AddCollation registers a collation on the writer and every currently
// pooled reader.
func (p *DatabasePool) AddCollation(ctx context.Context, name string, cmp func(string, string) int) error {
	return p.forEachConnection(ctx, func(c *Connection) error {
		return c.AddCollation(name, cmp)
	})
}

// forEachConnection runs fn on the writer and on every pooled reader in
// turn, draining and refilling the reader channel so no reader is left
// unvisited or permanently removed from the pool.
func (p *DatabasePool) forEachConnection(ctx context.Context, fn func(*Connection) error) error {
	if err := p.writer.RunSync(ctx, fn); err != nil {
		return err
	}
	visited := make([]*SerializedQueue, 0, p.size)
	var firstErr error
	for i := 0; i < p.size; i++ {
		var q *SerializedQueue
		select {
		case q = <-p.readers:
		case <-ctx.Done():
			firstErr = ctx.Err()
		}
		if q == nil {
			break
		}
		if err := q.RunSync(ctx, fn); err != nil && firstErr == nil {
			firstErr = err
		}
		visited = append(visited, q)
	}
	for _, q := range visited {
		p.readers <- q
	}
	return firstErr
}

// Close closes the writer and every pooled reader connection.
func (p *DatabasePool) Close() error {
	var firstErr error
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			firstErr = err
		}
	}
	for i := 0; i < p.size; i++ {
		select {
		case q := <-p.readers:
			if err := q.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		default:
		}
	}
	return firstErr
}
