package migrate

import (
	"context"
	"testing"

	"github.com/mxk/litedb"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *litedb.Connection {
	t.Helper()
	conn, err := litedb.Open(":memory:", litedb.DefaultConfiguration())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestMigrateAppliesInOrder(t *testing.T) {
	conn := openDB(t)
	var ran []string

	m := New().
		Register("create_readers", func(c *litedb.Connection) error {
			ran = append(ran, "create_readers")
			_, err := c.Exec(context.Background(), `CREATE TABLE readers (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
			return err
		}).
		Register("add_age_column", func(c *litedb.Connection) error {
			ran = append(ran, "add_age_column")
			_, err := c.Exec(context.Background(), `ALTER TABLE readers ADD COLUMN age INTEGER`)
			return err
		})

	require.NoError(t, m.Migrate(context.Background(), conn))
	require.Equal(t, []string{"create_readers", "add_age_column"}, ran)

	applied, err := m.Applied(context.Background(), conn)
	require.NoError(t, err)
	require.Equal(t, []string{"create_readers", "add_age_column"}, applied)
}

func TestMigrateRunsEachIdentifierAtMostOnce(t *testing.T) {
	conn := openDB(t)
	runs := 0

	m := New().Register("create_readers", func(c *litedb.Connection) error {
		runs++
		_, err := c.Exec(context.Background(), `CREATE TABLE readers (id INTEGER PRIMARY KEY)`)
		return err
	})

	require.NoError(t, m.Migrate(context.Background(), conn))
	require.NoError(t, m.Migrate(context.Background(), conn))
	require.NoError(t, m.Migrate(context.Background(), conn))
	require.Equal(t, 1, runs)
}

func TestMigrateNewMigrationsOnlyRunAfterRegistration(t *testing.T) {
	conn := openDB(t)

	first := New().Register("create_readers", func(c *litedb.Connection) error {
		_, err := c.Exec(context.Background(), `CREATE TABLE readers (id INTEGER PRIMARY KEY)`)
		return err
	})
	require.NoError(t, first.Migrate(context.Background(), conn))

	second := New().
		Register("create_readers", func(c *litedb.Connection) error {
			_, err := c.Exec(context.Background(), `CREATE TABLE readers (id INTEGER PRIMARY KEY)`)
			return err
		}).
		Register("create_books", func(c *litedb.Connection) error {
			_, err := c.Exec(context.Background(), `CREATE TABLE books (id INTEGER PRIMARY KEY, reader_id INTEGER)`)
			return err
		})
	require.NoError(t, second.Migrate(context.Background(), conn))

	applied, err := second.Applied(context.Background(), conn)
	require.NoError(t, err)
	require.Equal(t, []string{"create_readers", "create_books"}, applied)
}

func TestMigrateDeferredForeignKeysAbortsOnViolation(t *testing.T) {
	// Foreign keys start disabled so a dangling reference can be created
	// directly; PRAGMA foreign_key_check still reports it regardless of
	// enforcement state.
	config := litedb.DefaultConfiguration()
	config.ForeignKeysDisabled = true
	conn, err := litedb.Open(":memory:", config)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec(context.Background(), `CREATE TABLE readers (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = conn.Exec(context.Background(), `CREATE TABLE books (id INTEGER PRIMARY KEY, reader_id INTEGER REFERENCES readers(id))`)
	require.NoError(t, err)
	_, err = conn.Exec(context.Background(), `INSERT INTO books (id, reader_id) VALUES (1, 999)`)
	require.NoError(t, err, "inserting with FK enforcement off should succeed even though it leaves a dangling reference")

	m := New().RegisterWithMode("noop_rebuild", DeferredForeignKeys, func(c *litedb.Connection) error {
		return nil
	})

	err = m.Migrate(context.Background(), conn)
	require.Error(t, err)
	var dbErr *litedb.DatabaseError
	require.ErrorAs(t, err, &dbErr)
	require.Equal(t, 19, dbErr.Code)

	applied, appliedErr := m.Applied(context.Background(), conn)
	require.NoError(t, appliedErr)
	require.Empty(t, applied, "a migration that fails its FK check must not be recorded")
}

func TestMigrateDeferredForeignKeysRestoresEnforcement(t *testing.T) {
	conn := openDB(t)
	_, err := conn.Exec(context.Background(), `CREATE TABLE readers (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)

	m := New().RegisterWithMode("noop", DeferredForeignKeys, func(c *litedb.Connection) error {
		return nil
	})
	require.NoError(t, m.Migrate(context.Background(), conn))

	row, _, err := conn.FetchOne(context.Background(), "PRAGMA foreign_keys")
	require.NoError(t, err)
	v, ok := row.Value("foreign_keys")
	require.True(t, ok)
	n, err := v.Int64("foreign_keys")
	require.NoError(t, err)
	require.Equal(t, int64(1), n, "foreign key enforcement must be restored after a deferred-fk migration")
}
