// Package frc implements the fetched-records controller described in
// spec.md §4.9: it keeps a live array of rows matching a request and
// notifies a delegate of insert/delete/move/update changes whenever an
// observed table commits.
package frc

import (
	"context"
	"sync"

	"github.com/mxk/litedb"
)

// Delegate receives a controller's change notifications, delivered as
// willChange, one didChangeRecord per Change, then didChange (spec
// §4.9).
type Delegate interface {
	WillChange()
	DidChangeRecord(change Change)
	DidChange()
}

// Scheduler coalesces rapid successive commits into a single recompute,
// mirroring SPEC_FULL.md §C's "value observation retry/debounce"
// extension. Schedule is called once per commit that needs a recompute;
// implementations call fn at most once for any run of calls received
// within their debounce window.
type Scheduler interface {
	Schedule(fn func())
}

// ImmediateScheduler runs fn synchronously, i.e. no debouncing.
type ImmediateScheduler struct{}

// Schedule implements Scheduler.
func (ImmediateScheduler) Schedule(fn func()) { fn() }

// Controller maintains an array of records matching a request and
// notifies a Delegate of row-identity-aware changes (spec §4.9).
type Controller struct {
	pool       *litedb.DatabasePool
	sqlText    string
	args       []interface{}
	dispatch   func(func())
	sameRecord SameRecord
	scheduler  Scheduler

	mu       sync.Mutex
	delegate Delegate
	items    []litedb.Row

	pendingMu    sync.Mutex
	needsCompute bool

	writerConn *litedb.Connection

	seqMu    sync.Mutex
	lastDone chan struct{}
}

// Option configures a Controller at construction.
type Option func(*Controller)

// WithDispatch sets the function used to deliver willChange/
// didChangeRecord/didChange to the delegate; defaults to running them
// on the calling goroutine.
func WithDispatch(dispatch func(func())) Option {
	return func(c *Controller) { c.dispatch = dispatch }
}

// WithSameRecord overrides the identity comparator; defaults to "never
// equal" (spec §7's open-question guidance for records lacking a known
// primary key), under which every update degenerates to a plain
// delete+insert pair. Callers should supply PrimaryKeyIdentity or a
// custom comparator whenever the request's primary key is known.
func WithSameRecord(same SameRecord) Option {
	return func(c *Controller) { c.sameRecord = same }
}

// WithScheduler installs a debounce Scheduler; defaults to
// ImmediateScheduler{}.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

// New builds a Controller over pool for the given SQL request. Start
// must be called before any changes are observed.
func New(pool *litedb.DatabasePool, sql string, args []interface{}, delegate Delegate, opts ...Option) *Controller {
	c := &Controller{
		pool:      pool,
		sqlText:   sql,
		args:      args,
		delegate:  delegate,
		dispatch:  func(fn func()) { fn() },
		scheduler: ImmediateScheduler{},
		lastDone:  closedChan(),
	}
	c.sameRecord = func(a, b litedb.Row) bool { return false }
	for _, o := range opts {
		o(c)
	}
	return c
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Start performs the initial fetch on the writer worker, records the
// request's observed tables, and registers the controller as a
// transaction observer on those tables (spec §4.9, "Start
// (performFetch)").
func (c *Controller) Start(ctx context.Context) error {
	return c.pool.Write(ctx, func(conn *litedb.Connection) error {
		items, tables, err := c.fetch(conn)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.items = items
		c.writerConn = conn
		c.mu.Unlock()
		conn.AddObserver(c, tables...)
		return nil
	})
}

// Stop unregisters the controller from further table observation. Any
// compute already in flight still completes and is still delivered
// (spec §4.9, "Cancellation" only promises no further tracking starts
// after the current change is drained).
func (c *Controller) Stop() {
	c.mu.Lock()
	conn := c.writerConn
	c.mu.Unlock()
	if conn != nil {
		conn.RemoveObserver(c)
	}
}

func (c *Controller) fetch(conn *litedb.Connection) ([]litedb.Row, []string, error) {
	stmt, err := conn.Compile(c.sqlText)
	if err != nil {
		return nil, nil, err
	}
	bound := litedb.NewArguments(c.args...)
	rows, err := stmt.Query(&bound)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	items, err := rows.FetchAll()
	if err != nil {
		return nil, nil, err
	}
	observed := stmt.ObservedTables()
	tables := make([]string, 0, len(observed))
	for t := range observed {
		tables = append(tables, t)
	}
	return items, tables, nil
}

// ObservesEvent implements litedb.TransactionObserver: the controller
// only ever receives events for tables it registered against, so every
// event is relevant.
func (c *Controller) ObservesEvent(litedb.DatabaseEvent) bool { return true }

// DidChange implements litedb.TransactionObserver by marking that a
// recompute is needed once this transaction commits.
func (c *Controller) DidChange(litedb.DatabaseEvent) {
	c.pendingMu.Lock()
	c.needsCompute = true
	c.pendingMu.Unlock()
}

// WillCommit implements litedb.TransactionObserver; the controller never
// vetoes a commit.
func (c *Controller) WillCommit([]litedb.DatabaseEvent) error { return nil }

// DidRollback implements litedb.TransactionObserver by clearing the
// pending recompute flag, since nothing actually changed.
func (c *Controller) DidRollback() {
	c.pendingMu.Lock()
	c.needsCompute = false
	c.pendingMu.Unlock()
}

// DidCommit implements litedb.TransactionObserver: if a relevant change
// occurred, hand off to the reader pool via read-from-write to refetch
// under a snapshot, then diff and dispatch once it's this commit's turn
// (spec §4.9, "On change").
func (c *Controller) DidCommit() {
	c.pendingMu.Lock()
	needs := c.needsCompute
	c.needsCompute = false
	c.pendingMu.Unlock()
	if !needs {
		return
	}
	c.scheduler.Schedule(func() { c.recompute() })
}

// recompute performs the read-from-write hand-off and schedules the
// actual diff+dispatch to run strictly after the previous recompute's,
// preserving commit order even though fetches on separate reader
// connections may complete out of order (spec §4.9, "Order of
// processing is preserved via a semaphore").
func (c *Controller) recompute() {
	done, prev := c.nextTurn()
	err := c.pool.ReadFromWrite(context.Background(), func(conn *litedb.Connection) error {
		newItems, _, err := c.fetch(conn)
		<-prev
		if err != nil {
			return err
		}
		c.applyAndDispatch(newItems)
		return nil
	}, func(error) {
		close(done)
	})
	if err != nil {
		close(done)
	}
}

func (c *Controller) nextTurn() (done, prev chan struct{}) {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	prev = c.lastDone
	done = make(chan struct{})
	c.lastDone = done
	return done, prev
}

func (c *Controller) applyAndDispatch(newItems []litedb.Row) {
	c.mu.Lock()
	old := c.items
	delegate := c.delegate
	same := c.sameRecord
	c.items = newItems
	c.mu.Unlock()

	if delegate == nil {
		return
	}
	changes := Diff(old, newItems, same)
	if len(changes) == 0 {
		return
	}
	c.dispatch(func() {
		delegate.WillChange()
		for _, ch := range changes {
			delegate.DidChangeRecord(ch)
		}
		delegate.DidChange()
	})
}
