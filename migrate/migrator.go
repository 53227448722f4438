// Package migrate implements the ordered-migration runner described in
// spec.md §4.7: an append-only list of named migrations tracked in a
// meta table, applied at most once each regardless of how many times
// the migrator runs.
package migrate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mxk/litedb"
)

// ForeignKeyMode selects how a migration's transaction interacts with
// foreign-key enforcement.
type ForeignKeyMode int

const (
	// Standard runs the migration inside an ordinary transaction, FK
	// enforcement left exactly as configured on the connection.
	Standard ForeignKeyMode = iota
	// DeferredForeignKeys disables FK enforcement for the duration of
	// the migration, runs PRAGMA foreign_key_check before commit, and
	// aborts the migration if any violation is reported. Use this when
	// a migration needs to rebuild a table (the common SQLite
	// ALTER-TABLE-that-SQLite-can't-do-directly pattern) in a way that
	// would transiently violate a foreign key.
	DeferredForeignKeys
)

// Migration is one named, ordered schema change.
type Migration struct {
	Identifier     string
	ForeignKeyMode ForeignKeyMode
	Migrate        func(conn *litedb.Connection) error
}

// Migrator holds an ordered list of migrations and applies whichever
// ones a database hasn't recorded yet (spec §4.7, §8 property 7).
type Migrator struct {
	migrations []Migration
}

// New returns an empty Migrator.
func New() *Migrator {
	return &Migrator{}
}

// Register appends a migration that runs in Standard FK mode.
func (m *Migrator) Register(identifier string, migrate func(conn *litedb.Connection) error) *Migrator {
	return m.RegisterWithMode(identifier, Standard, migrate)
}

// RegisterWithMode appends a migration with an explicit ForeignKeyMode.
func (m *Migrator) RegisterWithMode(identifier string, mode ForeignKeyMode, migrate func(conn *litedb.Connection) error) *Migrator {
	m.migrations = append(m.migrations, Migration{Identifier: identifier, ForeignKeyMode: mode, Migrate: migrate})
	return m
}

const metaTableDDL = `CREATE TABLE IF NOT EXISTS grdb_migrations (identifier TEXT PRIMARY KEY)`

// Applied returns the identifiers already recorded in the database's
// meta table, in application order.
func (m *Migrator) Applied(ctx context.Context, conn *litedb.Connection) ([]string, error) {
	if _, err := conn.Exec(ctx, metaTableDDL); err != nil {
		return nil, err
	}
	rows, err := conn.Fetch(ctx, `SELECT identifier FROM grdb_migrations`)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		v, _ := r.Value("identifier")
		s, err := v.Text("identifier")
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Migrate applies every migration not yet recorded, in registration
// order. Each migration's body and its identifier insert happen inside
// the same transaction, so a crash mid-migration never leaves a
// migration half-applied and unrecorded. Every call gets its own run id,
// included in any error it returns, so repeated failed runs against the
// same database can be told apart in a log.
func (m *Migrator) Migrate(ctx context.Context, conn *litedb.Connection) error {
	runID := uuid.NewString()
	if _, err := conn.Exec(ctx, metaTableDDL); err != nil {
		return fmt.Errorf("migrate run %s: %w", runID, err)
	}
	for _, mig := range m.migrations {
		applied, err := m.isApplied(ctx, conn, mig.Identifier)
		if err != nil {
			return fmt.Errorf("migrate run %s: %w", runID, err)
		}
		if applied {
			continue
		}
		if err := m.applyOne(ctx, conn, mig); err != nil {
			return fmt.Errorf("migrate run %s: migrate %q: %w", runID, mig.Identifier, err)
		}
	}
	return nil
}

func (m *Migrator) isApplied(ctx context.Context, conn *litedb.Connection, identifier string) (bool, error) {
	_, found, err := conn.FetchOne(ctx, `SELECT 1 FROM grdb_migrations WHERE identifier = ?`, identifier)
	if err != nil {
		return false, err
	}
	return found, nil
}

func (m *Migrator) recordApplied(ctx context.Context, conn *litedb.Connection, identifier string) error {
	_, err := conn.Exec(ctx, `INSERT INTO grdb_migrations (identifier) VALUES (?)`, identifier)
	return err
}

func (m *Migrator) applyOne(ctx context.Context, conn *litedb.Connection, mig Migration) error {
	if mig.ForeignKeyMode == DeferredForeignKeys {
		return m.applyDeferredFK(ctx, conn, mig)
	}
	return conn.Transaction(litedb.Immediate, func() error {
		if err := mig.Migrate(conn); err != nil {
			return err
		}
		return m.recordApplied(ctx, conn, mig.Identifier)
	})
}

// applyDeferredFK implements spec §4.7's deferred-fk mode: disable FK
// enforcement, run the migration body and PRAGMA foreign_key_check
// inside one transaction, abort with a constraint error on any
// violation, and restore FK enforcement on every exit path.
func (m *Migrator) applyDeferredFK(ctx context.Context, conn *litedb.Connection, mig Migration) error {
	wasEnabled, err := m.foreignKeysEnabled(ctx, conn)
	if err != nil {
		return err
	}
	if wasEnabled {
		if _, err := conn.Exec(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
			return err
		}
	}
	defer func() {
		if wasEnabled {
			conn.Exec(ctx, "PRAGMA foreign_keys = ON")
		}
	}()

	return conn.Transaction(litedb.Immediate, func() error {
		if err := mig.Migrate(conn); err != nil {
			return err
		}
		violations, err := conn.Fetch(ctx, "PRAGMA foreign_key_check")
		if err != nil {
			return err
		}
		if len(violations) > 0 {
			return &litedb.DatabaseError{
				Code:    19, // SQLITE_CONSTRAINT
				Message: fmt.Sprintf("FOREIGN KEY constraint failed: %d violation(s) after migration %q", len(violations), mig.Identifier),
			}
		}
		return m.recordApplied(ctx, conn, mig.Identifier)
	})
}

func (m *Migrator) foreignKeysEnabled(ctx context.Context, conn *litedb.Connection) (bool, error) {
	row, _, err := conn.FetchOne(ctx, "PRAGMA foreign_keys")
	if err != nil {
		return false, err
	}
	v, ok := row.Value("foreign_keys")
	if !ok {
		return false, nil
	}
	n, err := v.Int64("foreign_keys")
	if err != nil {
		return false, err
	}
	return n != 0, nil
}
