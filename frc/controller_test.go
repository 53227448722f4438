package frc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mxk/litedb"
	"github.com/stretchr/testify/require"
)

// scratchRowBuilder produces Row values shaped like a real "SELECT id,
// name FROM persons" result, using a throwaway connection rather than
// reaching into litedb's unexported Row fields — these tests exercise
// the diff algorithm in isolation from any real table.
type scratchRowBuilder struct {
	conn *litedb.Connection
}

func newScratchRowBuilder(t *testing.T) *scratchRowBuilder {
	t.Helper()
	conn, err := litedb.Open(":memory:", litedb.DefaultConfiguration())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &scratchRowBuilder{conn: conn}
}

func (b *scratchRowBuilder) person(t *testing.T, id int64, name string) litedb.Row {
	t.Helper()
	row, found, err := b.conn.FetchOne(context.Background(), `SELECT ? AS id, ? AS name`, id, name)
	require.NoError(t, err)
	require.True(t, found)
	return row
}

func TestDiffRenameProducesSingleMoveWithOldValue(t *testing.T) {
	rows := newScratchRowBuilder(t)
	person := func(id int64, name string) litedb.Row { return rows.person(t, id, name) }
	old := []litedb.Row{person(1, "Arthur"), person(2, "Barbara")}
	new_ := []litedb.Row{person(2, "Alan"), person(1, "Arthur")}

	changes := Diff(old, new_, PrimaryKeyIdentity([]string{"id"}))

	require.Len(t, changes, 1)
	c := changes[0]
	require.Equal(t, Move, c.Kind)
	require.Equal(t, 1, c.OldIndex)
	require.Equal(t, 0, c.NewIndex)
	require.Equal(t, litedb.NewText("Barbara"), c.OldValues["name"])
	_, hasID := c.OldValues["id"]
	require.False(t, hasID, "id did not change, so it should not appear in OldValues")
}

func TestDiffPlainInsertAndDelete(t *testing.T) {
	rows := newScratchRowBuilder(t)
	person := func(id int64, name string) litedb.Row { return rows.person(t, id, name) }
	old := []litedb.Row{person(1, "Arthur")}
	new_ := []litedb.Row{person(2, "Celine")}

	changes := Diff(old, new_, PrimaryKeyIdentity([]string{"id"}))
	require.Len(t, changes, 2)
	kinds := map[ChangeKind]bool{}
	for _, c := range changes {
		kinds[c.Kind] = true
	}
	require.True(t, kinds[Deletion])
	require.True(t, kinds[Insertion])
}

func TestDiffSameIndexUpdate(t *testing.T) {
	rows := newScratchRowBuilder(t)
	person := func(id int64, name string) litedb.Row { return rows.person(t, id, name) }
	old := []litedb.Row{person(1, "Arthur"), person(2, "Barbara")}
	new_ := []litedb.Row{person(1, "Art"), person(2, "Barbara")}

	changes := Diff(old, new_, PrimaryKeyIdentity([]string{"id"}))
	require.Len(t, changes, 1)
	require.Equal(t, Update, changes[0].Kind)
	require.Equal(t, 0, changes[0].OldIndex)
	require.Equal(t, 0, changes[0].NewIndex)
	require.Equal(t, litedb.NewText("Arthur"), changes[0].OldValues["name"])
}

func TestDiffNoChangesIsEmpty(t *testing.T) {
	rows := newScratchRowBuilder(t)
	person := func(id int64, name string) litedb.Row { return rows.person(t, id, name) }
	old := []litedb.Row{person(1, "Arthur")}
	new_ := []litedb.Row{person(1, "Arthur")}
	require.Empty(t, Diff(old, new_, PrimaryKeyIdentity([]string{"id"})))
}

func TestDiffWithoutIdentityDegradesToDeleteInsert(t *testing.T) {
	rows := newScratchRowBuilder(t)
	person := func(id int64, name string) litedb.Row { return rows.person(t, id, name) }
	old := []litedb.Row{person(1, "Arthur")}
	new_ := []litedb.Row{person(1, "Art")}

	changes := Diff(old, new_, PrimaryKeyIdentity(nil))
	require.Len(t, changes, 2, "with no primary key, an update must degrade to delete+insert")
}

type recordingDelegate struct {
	willChanges int
	records     []Change
	done        chan struct{}
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{done: make(chan struct{}, 16)}
}

func (d *recordingDelegate) WillChange() { d.willChanges++ }
func (d *recordingDelegate) DidChangeRecord(c Change) {
	d.records = append(d.records, c)
}
func (d *recordingDelegate) DidChange() { d.done <- struct{}{} }

func TestControllerDeliversChangeAfterCommit(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "frc.db")
	pool, err := litedb.OpenPool(dbPath, litedb.DefaultConfiguration())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	ctx := context.Background()
	require.NoError(t, pool.Write(ctx, func(conn *litedb.Connection) error {
		_, err := conn.Exec(ctx, `CREATE TABLE persons (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
		return err
	}))
	require.NoError(t, pool.Write(ctx, func(conn *litedb.Connection) error {
		_, err := conn.Exec(ctx, `INSERT INTO persons (id, name) VALUES (1, 'Arthur')`)
		return err
	}))

	delegate := newRecordingDelegate()
	ctrl := New(pool, `SELECT id, name FROM persons ORDER BY name`, nil, delegate,
		WithSameRecord(PrimaryKeyIdentity([]string{"id"})))
	require.NoError(t, ctrl.Start(ctx))
	t.Cleanup(ctrl.Stop)

	require.NoError(t, pool.Write(ctx, func(conn *litedb.Connection) error {
		_, err := conn.Exec(ctx, `INSERT INTO persons (id, name) VALUES (2, 'Barbara')`)
		return err
	}))

	select {
	case <-delegate.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for controller to dispatch a change")
	}

	require.Equal(t, 1, delegate.willChanges)
	require.Len(t, delegate.records, 1)
	require.Equal(t, Insertion, delegate.records[0].Kind)
}
