package litedb

import (
	"time"

	"go.uber.org/zap"
)

// TransactionKind selects the lock SQLite acquires when a transaction
// begins (spec §4.3).
type TransactionKind int

const (
	// Deferred begins without acquiring a write lock; it upgrades only
	// on the first write.
	Deferred TransactionKind = iota
	// Immediate acquires a write lock immediately.
	Immediate
	// Exclusive acquires an exclusive lock immediately.
	Exclusive
)

func (k TransactionKind) sql() string {
	switch k {
	case Immediate:
		return "BEGIN IMMEDIATE"
	case Exclusive:
		return "BEGIN EXCLUSIVE"
	default:
		return "BEGIN DEFERRED"
	}
}

// BusyModeKind selects how a Connection reacts to SQLITE_BUSY.
type BusyModeKind int

const (
	// BusyImmediateError fails the operation as soon as SQLite reports
	// BUSY (the default).
	BusyImmediateError BusyModeKind = iota
	// BusyTimeout retries for up to the configured duration before
	// failing.
	BusyTimeout
	// BusyCallback invokes a user function on every BUSY, which decides
	// whether to retry.
	BusyCallback
)

// BusyMode configures retry behavior on SQLITE_BUSY, mirroring spec §6.
type BusyMode struct {
	Kind     BusyModeKind
	Timeout  time.Duration          // used when Kind == BusyTimeout
	Callback func(attempt int) bool // used when Kind == BusyCallback; false aborts the wait
}

// ImmediateErrorMode returns the default BusyMode.
func ImmediateErrorMode() BusyMode { return BusyMode{Kind: BusyImmediateError} }

// TimeoutMode retries for d before giving up.
func TimeoutMode(d time.Duration) BusyMode { return BusyMode{Kind: BusyTimeout, Timeout: d} }

// CallbackMode delegates the retry decision to fn.
func CallbackMode(fn func(attempt int) bool) BusyMode {
	return BusyMode{Kind: BusyCallback, Callback: fn}
}

// Configuration bundles every knob spec §6 exposes for opening a
// Connection.
type Configuration struct {
	// ReadOnly opens the connection with SQLITE_OPEN_READONLY. Default
	// false.
	ReadOnly bool

	// ForeignKeysDisabled suppresses the PRAGMA foreign_keys=ON this
	// package otherwise issues at open. Zero value (false) keeps
	// enforcement on, so spec §6's "foreign keys enabled by default"
	// holds even for a Configuration{} literal, not just
	// DefaultConfiguration().
	ForeignKeysDisabled bool

	// BusyMode configures SQLITE_BUSY retry behavior. Default
	// ImmediateErrorMode().
	BusyMode BusyMode

	// DefaultTransactionKind records a preferred transaction kind;
	// DefaultConfiguration sets it to Immediate and the zero value is
	// Deferred. No method reads it: Begin and every Transaction helper
	// take their kind explicitly.
	DefaultTransactionKind TransactionKind

	// Trace, if set, is called with the SQL text of every statement run
	// through Statement.Execute or Statement.Query. Transaction-control
	// statements and pragmas the connection issues internally are not
	// traced.
	Trace func(sql string)

	// Logger receives structured operational events: a warning when a
	// connection is used off its owning goroutine, and an info entry
	// when a transaction observer vetoes a commit. Defaults to a no-op
	// logger.
	Logger *zap.Logger

	// PrepareConn, if set, is called immediately after a new connection
	// is opened and pragmas are applied, before it is handed to a
	// queue/pool worker. This is the seam external collaborators such
	// as file-attribute tagging or SQLCipher key application (both
	// out of scope per spec §1) would use.
	PrepareConn func(*Connection) error

	// PoolSize bounds the number of read-only connections a
	// DatabasePool maintains. Default 5.
	PoolSize int
}

// withDefaults returns a copy of c with zero-value fields replaced by
// their documented defaults.
func (c Configuration) withDefaults() Configuration {
	out := c
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 5
	}
	return out
}

// ForeignKeysEnabledDefault is the spec §6 default for foreign-key
// enforcement (true): a zero-value Configuration already behaves this
// way, so this constant exists only for callers who want to name the
// default explicitly.
const ForeignKeysEnabledDefault = true

// DefaultConfiguration returns the spec §6 defaults: foreign keys on,
// immediate-error busy mode, immediate transactions, read-write.
func DefaultConfiguration() Configuration {
	return Configuration{
		BusyMode:               ImmediateErrorMode(),
		DefaultTransactionKind: Immediate,
	}.withDefaults()
}
