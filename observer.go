package litedb

import (
	"strings"

	"go.uber.org/zap"
)

// DatabaseEventKind classifies a row-level change reported by SQLite's
// update hook (spec §C).
type DatabaseEventKind int

const (
	EventInsert DatabaseEventKind = iota
	EventUpdate
	EventDelete
)

func (k DatabaseEventKind) String() string {
	switch k {
	case EventInsert:
		return "insert"
	case EventUpdate:
		return "update"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// DatabaseEvent is a single row-level change observed during the
// transaction currently being committed.
type DatabaseEvent struct {
	Kind  DatabaseEventKind
	Table string
	RowID int64
}

// TransactionObserver is notified of row-level changes and transaction
// boundaries on the connection it is registered with (spec §C, modeled
// on GRDB's TransactionObserver). WillCommit runs synchronously inside
// SQLite's commit hook: returning an error vetoes the commit, which
// SQLite turns into an automatic rollback, surfaced to the writer as
// CommitVetoed. DidCommit and DidRollback are advisory: they return
// nothing and cannot affect the transaction.
type TransactionObserver interface {
	// ObservesEvent lets an observer filter out changes it doesn't care
	// about before they accumulate in its pending buffer; returning
	// false for every event in a transaction means WillCommit/DidCommit
	// are skipped entirely for it.
	ObservesEvent(event DatabaseEvent) bool
	DidChange(event DatabaseEvent)
	WillCommit(events []DatabaseEvent) error
	DidCommit()
	DidRollback()
}

// AddObserver registers observer for every table (tables empty) or only
// the named tables (spec §C, ObserveTable). Registration is only valid
// while no transaction is in progress.
func (c *Connection) AddObserver(observer TransactionObserver, tables ...string) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	var set map[string]struct{}
	if len(tables) > 0 {
		set = make(map[string]struct{}, len(tables))
		for _, t := range tables {
			set[strings.ToLower(t)] = struct{}{}
		}
	}
	c.observers = append(c.observers, &observerEntry{observer: observer, tables: set})
}

// RemoveObserver unregisters observer; a no-op if it was never
// registered.
func (c *Connection) RemoveObserver(observer TransactionObserver) {
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	for i, e := range c.observers {
		if e.observer == observer {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			return
		}
	}
}

// ObserveTable is a convenience wrapper that builds a TransactionObserver
// from a single callback invoked once per commit with the events that
// touched table, rather than requiring a full TransactionObserver
// implementation for the common "run this closure after table changes"
// case (spec §C).
func (c *Connection) ObserveTable(table string, onChange func(events []DatabaseEvent)) {
	c.AddObserver(&tableObserver{onChange: onChange}, table)
}

type tableObserver struct {
	onChange func(events []DatabaseEvent)
	pending  []DatabaseEvent
}

func (o *tableObserver) ObservesEvent(DatabaseEvent) bool { return true }
func (o *tableObserver) DidChange(e DatabaseEvent)        { o.pending = append(o.pending, e) }
func (o *tableObserver) WillCommit([]DatabaseEvent) error { return nil }
func (o *tableObserver) DidCommit() {
	if len(o.pending) > 0 {
		o.onChange(o.pending)
		o.pending = nil
	}
}
func (o *tableObserver) DidRollback() { o.pending = nil }

// recordChange is invoked synchronously from the SQLite update hook
// (installHooks) for every row-level change within the transaction
// currently being built, fanning it out to every interested observer's
// pending buffer.
func (c *Connection) recordChange(op int, table string, rowid int64) {
	var kind DatabaseEventKind
	switch op {
	case actionInsertOp:
		kind = EventInsert
	case actionUpdateOp:
		kind = EventUpdate
	case actionDeleteOp:
		kind = EventDelete
	default:
		return
	}
	event := DatabaseEvent{Kind: kind, Table: table, RowID: rowid}
	lower := strings.ToLower(table)
	c.observersMu.Lock()
	defer c.observersMu.Unlock()
	for _, e := range c.observers {
		if e.tables != nil {
			if _, ok := e.tables[lower]; !ok {
				continue
			}
		}
		if !e.observer.ObservesEvent(event) {
			continue
		}
		e.observer.DidChange(event)
		e.pending = append(e.pending, event)
	}
}

// dispatchWillCommit calls WillCommit on every observer with a
// non-empty pending buffer, stopping at (and returning) the first
// error, which installHooks turns into a forced rollback (spec §C).
func (c *Connection) dispatchWillCommit() error {
	c.observersMu.Lock()
	entries := append([]*observerEntry(nil), c.observers...)
	c.observersMu.Unlock()
	for _, e := range entries {
		if len(e.pending) == 0 {
			continue
		}
		if err := e.observer.WillCommit(e.pending); err != nil {
			c.vetoErr = err
			c.config.Logger.Info("litedb: transaction observer vetoed commit", zap.Error(err))
			return err
		}
	}
	return nil
}

// dispatchDidCommit notifies every observer of the commit that just
// succeeded and clears their pending buffers.
func (c *Connection) dispatchDidCommit() {
	c.observersMu.Lock()
	entries := append([]*observerEntry(nil), c.observers...)
	c.observersMu.Unlock()
	for _, e := range entries {
		hadPending := len(e.pending) > 0
		e.pending = nil
		if hadPending {
			e.observer.DidCommit()
		}
	}
}

// dispatchDidRollback notifies every observer of a rollback and clears
// their pending buffers without calling DidCommit.
func (c *Connection) dispatchDidRollback() {
	c.observersMu.Lock()
	entries := append([]*observerEntry(nil), c.observers...)
	c.observersMu.Unlock()
	for _, e := range entries {
		hadPending := len(e.pending) > 0
		e.pending = nil
		if hadPending {
			e.observer.DidRollback()
		}
	}
}

// SQLite update-hook operation codes (distinct from the authorizer
// action codes in codes.go): SQLITE_INSERT=18, SQLITE_UPDATE=23,
// SQLITE_DELETE=9, matching the authorizer's actionInsert/actionUpdate/
// actionDelete values, reused here under hook-specific names for
// clarity at the call site.
const (
	actionInsertOp = actionInsert
	actionUpdateOp = actionUpdate
	actionDeleteOp = actionDelete
)
