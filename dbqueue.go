package litedb

import "context"

// DatabaseQueue is the simplest façade: a single connection pinned to a
// single serialized writer (spec §5's "DatabaseQueue" configuration,
// appropriate when readers don't need to run concurrently with writes).
type DatabaseQueue struct {
	queue *SerializedQueue
}

// OpenQueue opens path and wraps it in a DatabaseQueue.
func OpenQueue(path string, config Configuration) (*DatabaseQueue, error) {
	conn, err := Open(path, config)
	if err != nil {
		return nil, err
	}
	return &DatabaseQueue{queue: newSerializedQueue(conn)}, nil
}

// Write runs fn on the sole connection's worker goroutine, blocking
// until it completes.
func (q *DatabaseQueue) Write(ctx context.Context, fn func(*Connection) error) error {
	return q.queue.RunSync(ctx, fn)
}

// WriteAsync submits fn without waiting for completion.
func (q *DatabaseQueue) WriteAsync(fn func(*Connection) error, done func(error)) {
	q.queue.RunAsync(fn, done)
}

// Read is an alias for Write: DatabaseQueue has only one connection, so
// reads execute on the same serialized worker as writes. Use
// DatabasePool when concurrent WAL reads are needed.
func (q *DatabaseQueue) Read(ctx context.Context, fn func(*Connection) error) error {
	return q.queue.RunSync(ctx, fn)
}

// Close stops the worker and closes the connection.
func (q *DatabaseQueue) Close() error { return q.queue.Close() }
