package litedb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mxk/litedb"
	"github.com/mxk/litedb/query"
	"github.com/stretchr/testify/require"
)

// S1: rowid alias detection, and an update of a missing key changing no
// rows.
func TestScenarioRowIDAliasAndMissedUpdate(t *testing.T) {
	ctx := context.Background()
	conn, err := litedb.Open(":memory:", litedb.DefaultConfiguration())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(ctx, `CREATE TABLE persons (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	res, err := conn.Exec(ctx, `INSERT INTO persons (name) VALUES (?)`, "Arthur")
	require.NoError(t, err)
	require.True(t, res.HasLastInsertRow)
	require.Equal(t, int64(1), res.LastInsertRowID)

	pk, err := conn.PrimaryKey("persons")
	require.NoError(t, err)
	require.True(t, pk.IsRowID())

	update, err := conn.Exec(ctx, `UPDATE persons SET name = ? WHERE id = ?`, "Art", 1)
	require.NoError(t, err)
	require.Equal(t, 1, update.ChangedRowCount)

	missed, err := conn.Exec(ctx, `UPDATE persons SET name = ? WHERE id = ?`, "X", 999)
	require.NoError(t, err)
	require.Equal(t, 0, missed.ChangedRowCount)
}

// S2: ordered fetch over a simple table, with the exact SQL the query
// builder emits for a bare "select everything" request.
func TestScenarioReaderOrderingAndExactSQL(t *testing.T) {
	ctx := context.Background()
	conn, err := litedb.Open(":memory:", litedb.DefaultConfiguration())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(ctx, `CREATE TABLE readers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INT)`)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `INSERT INTO readers (name, age) VALUES (?, ?)`, "Arthur", 42)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `INSERT INTO readers (name, age) VALUES (?, ?)`, "Barbara", 36)
	require.NoError(t, err)

	sql, args, err := query.Render(query.From("readers"), conn.PrimaryKey)
	require.NoError(t, err)
	require.Equal(t, `SELECT * FROM "readers"`, sql)
	require.Empty(t, args)

	rows, err := conn.Fetch(ctx, sql)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	firstName, _ := rows[0].Value("name")
	secondName, _ := rows[1].Value("name")
	require.Equal(t, litedb.NewText("Arthur"), firstName)
	require.Equal(t, litedb.NewText("Barbara"), secondName)
}

// S3: inserting a row whose foreign key references a missing parent
// raises a DatabaseError carrying the SQLITE_CONSTRAINT code, the
// offending SQL, and the bound arguments.
func TestScenarioForeignKeyViolationReportsConstraintError(t *testing.T) {
	ctx := context.Background()
	conn, err := litedb.Open(":memory:", litedb.DefaultConfiguration())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(ctx, `CREATE TABLE masters (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `CREATE TABLE pets (id INTEGER PRIMARY KEY, masterId INTEGER NOT NULL REFERENCES masters(id), name TEXT)`)
	require.NoError(t, err)

	_, err = conn.Exec(ctx, `INSERT INTO pets(masterId, name) VALUES (?, ?)`, 1, "Bobby")
	require.Error(t, err)

	var dbErr *litedb.DatabaseError
	require.ErrorAs(t, err, &dbErr)
	require.Equal(t, 19, dbErr.Code)
	require.Contains(t, dbErr.Error(), "FOREIGN KEY constraint failed")
	require.Contains(t, dbErr.Error(), "INSERT INTO pets")
	require.Contains(t, dbErr.Error(), "1")
	require.Contains(t, dbErr.Error(), "Bobby")
}

// S4: SQLite's own NUMERIC-affinity coercion on a real connection, not a
// hand-rolled reimplementation (spec's open question for this matrix).
func TestScenarioNumericAffinityCoercion(t *testing.T) {
	ctx := context.Background()
	conn, err := litedb.Open(":memory:", litedb.DefaultConfiguration())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(ctx, `CREATE TABLE readings (v NUMERIC)`)
	require.NoError(t, err)

	_, err = conn.Exec(ctx, `INSERT INTO readings (v) VALUES (?)`, "3.0e+5")
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `INSERT INTO readings (v) VALUES (?)`, "1.0e+20")
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `INSERT INTO readings (v) VALUES (?)`, "foo")
	require.NoError(t, err)

	rows, err := conn.Fetch(ctx, `SELECT v FROM readings ORDER BY rowid`)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	v0, _ := rows[0].Value("v")
	require.Equal(t, litedb.KindInt64, v0.Kind())
	n, err := v0.Int64("v")
	require.NoError(t, err)
	require.Equal(t, int64(300000), n)

	v1, _ := rows[1].Value("v")
	require.Equal(t, litedb.KindDouble, v1.Kind())
	d, err := v1.Double("v")
	require.NoError(t, err)
	require.Equal(t, 1e20, d)

	v2, _ := rows[2].Value("v")
	require.Equal(t, litedb.KindText, v2.Kind())
	s, err := v2.Text("v")
	require.NoError(t, err)
	require.Equal(t, "foo", s)
}

// S5: a reader holding an open read sees a stable snapshot across a
// concurrent write's commit; a fresh read afterwards sees the write.
func TestScenarioPoolReadSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "snapshot.db")
	pool, err := litedb.OpenPool(dbPath, litedb.DefaultConfiguration())
	require.NoError(t, err)
	defer pool.Close()

	require.NoError(t, pool.Write(ctx, func(conn *litedb.Connection) error {
		_, err := conn.Exec(ctx, `CREATE TABLE counters (n INTEGER)`)
		return err
	}))
	require.NoError(t, pool.Write(ctx, func(conn *litedb.Connection) error {
		_, err := conn.Exec(ctx, `INSERT INTO counters (n) VALUES (1)`)
		return err
	}))

	readStarted := make(chan struct{})
	writeDone := make(chan struct{})
	readDone := make(chan int, 1)

	go func() {
		pool.Read(ctx, func(conn *litedb.Connection) error {
			rows, err := conn.Fetch(ctx, `SELECT COUNT(*) AS c FROM counters`)
			require.NoError(t, err)
			close(readStarted)
			<-writeDone
			// same transaction, second query: must still see the
			// pre-write snapshot under WAL (spec §8 property 2).
			rows2, err := conn.Fetch(ctx, `SELECT COUNT(*) AS c FROM counters`)
			require.NoError(t, err)
			v1, _ := rows[0].Value("c")
			v2, _ := rows2[0].Value("c")
			require.True(t, v1.Equal(v2))
			n, _ := v2.Int64("c")
			readDone <- int(n)
			return nil
		})
	}()

	<-readStarted
	require.NoError(t, pool.Write(ctx, func(conn *litedb.Connection) error {
		_, err := conn.Exec(ctx, `INSERT INTO counters (n) VALUES (2)`)
		return err
	}))
	close(writeDone)

	snapshotCount := <-readDone
	require.Equal(t, 1, snapshotCount, "reader's snapshot must not observe the concurrent write")

	require.NoError(t, pool.Read(ctx, func(conn *litedb.Connection) error {
		rows, err := conn.Fetch(ctx, `SELECT COUNT(*) AS c FROM counters`)
		require.NoError(t, err)
		v, _ := rows[0].Value("c")
		n, _ := v.Int64("c")
		require.Equal(t, 2, int(n), "a fresh read afterwards must see the write")
		return nil
	}))
}
