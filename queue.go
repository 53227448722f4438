package litedb

import "context"

// task is one unit of work submitted to a SerializedQueue.
type task struct {
	fn   func()
	done chan struct{}
}

// SerializedQueue runs every submitted function on a single dedicated
// goroutine, in the order submitted (spec §5: "a single writer
// connection... every write executes strictly in submission order").
// It is the mechanism behind DatabaseQueue and DatabasePool's writer:
// a Connection handed to a SerializedQueue is never touched from any
// other goroutine for its entire lifetime.
type SerializedQueue struct {
	conn    *Connection
	tasks   chan task
	closed  chan struct{}
	stopped chan struct{}
}

// newSerializedQueue starts the worker goroutine that will own conn for
// as long as the queue is open. The goroutine immediately stamps conn
// with its identity (Connection.setWorkerGoroutine) before accepting any
// task.
func newSerializedQueue(conn *Connection) *SerializedQueue {
	q := &SerializedQueue{
		conn:    conn,
		tasks:   make(chan task),
		closed:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *SerializedQueue) run() {
	defer close(q.stopped)
	q.conn.setWorkerGoroutine()
	for {
		select {
		case t := <-q.tasks:
			t.fn()
			close(t.done)
		case <-q.closed:
			return
		}
	}
}

// RunSync submits fn and blocks until it has finished executing on the
// queue's worker, or ctx is done first. A ctx cancellation does not stop
// fn once it has started — SQLite operations are not preemptible — it
// only stops RunSync from waiting for it.
func (q *SerializedQueue) RunSync(ctx context.Context, fn func(*Connection) error) error {
	var err error
	t := task{
		fn:   func() { err = fn(q.conn) },
		done: make(chan struct{}),
	}
	select {
	case q.tasks <- t:
	case <-q.closed:
		return &ArgumentError{Reason: "queue is closed"}
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-t.done:
		return err
	case <-ctx.Done():
		// fn keeps running to completion on the worker; we just stop
		// waiting for it here.
		return ctx.Err()
	}
}

// RunAsync submits fn without waiting for it to complete, delivering its
// error (if any) to done, which is called from the queue's worker
// goroutine immediately after fn returns.
func (q *SerializedQueue) RunAsync(fn func(*Connection) error, done func(error)) {
	t := task{
		fn: func() {
			err := fn(q.conn)
			if done != nil {
				done(err)
			}
		},
		done: make(chan struct{}),
	}
	select {
	case q.tasks <- t:
	case <-q.closed:
		if done != nil {
			done(&ArgumentError{Reason: "queue is closed"})
		}
	}
}

// Close stops accepting new tasks and closes the underlying connection.
// In-flight tasks are allowed to finish.
func (q *SerializedQueue) Close() error {
	close(q.closed)
	<-q.stopped
	return q.conn.Close()
}
