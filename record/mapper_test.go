package record

import (
	"context"
	"testing"

	"github.com/mxk/litedb"
	"github.com/stretchr/testify/require"
)

type reader struct {
	id   int64
	name string
	age  int64
}

func (r *reader) TableName() string { return "readers" }

func (r *reader) ColumnValues() map[string]litedb.DatabaseValue {
	cols := map[string]litedb.DatabaseValue{
		"name": litedb.NewText(r.name),
		"age":  litedb.NewInt64(r.age),
	}
	if r.id != 0 {
		cols["id"] = litedb.NewInt64(r.id)
	} else {
		cols["id"] = litedb.Null
	}
	return cols
}

func (r *reader) DidInsert(rowID int64, rowIDColumn string) {
	if rowIDColumn == "id" {
		r.id = rowID
	}
}

func openReadersDB(t *testing.T) *litedb.Connection {
	t.Helper()
	conn, err := litedb.Open(":memory:", litedb.DefaultConfiguration())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = conn.Exec(context.Background(),
		`CREATE TABLE readers (id INTEGER PRIMARY KEY, name TEXT NOT NULL, age INTEGER NOT NULL)`)
	require.NoError(t, err)
	return conn
}

func TestMapperInsertAssignsRowID(t *testing.T) {
	conn := openReadersDB(t)
	m := NewMapper()
	r := &reader{name: "Arthur", age: 42}

	res, err := m.Insert(context.Background(), conn, r)
	require.NoError(t, err)
	require.True(t, res.HasLastInsertRow)
	require.Equal(t, 1, res.ChangedRowCount)
	require.Equal(t, res.LastInsertRowID, r.id)
	require.NotZero(t, r.id)
}

func TestMapperInsertCachesSQLByColumnSet(t *testing.T) {
	conn := openReadersDB(t)
	m := NewMapper()
	a := &reader{name: "Arthur", age: 42}
	b := &reader{name: "Barbara", age: 37}

	_, err := m.Insert(context.Background(), conn, a)
	require.NoError(t, err)
	_, err = m.Insert(context.Background(), conn, b)
	require.NoError(t, err)

	require.Len(t, m.cache, 1, "both inserts share the same column set and should reuse one cached statement")
	require.NotEqual(t, a.id, b.id)
}

func TestMapperUpdateChangesRow(t *testing.T) {
	conn := openReadersDB(t)
	m := NewMapper()
	r := &reader{name: "Arthur", age: 42}
	_, err := m.Insert(context.Background(), conn, r)
	require.NoError(t, err)

	r.age = 43
	err = m.Update(context.Background(), conn, r)
	require.NoError(t, err)

	row, found, err := conn.FetchOne(context.Background(), "SELECT age FROM readers WHERE id = ?", r.id)
	require.NoError(t, err)
	require.True(t, found)
	ageVal, ok := row.Value("age")
	require.True(t, ok)
	age, err := ageVal.Int64("age")
	require.NoError(t, err)
	require.Equal(t, int64(43), age)
}

func TestMapperUpdateMissingRowReturnsNotFound(t *testing.T) {
	conn := openReadersDB(t)
	m := NewMapper()
	r := &reader{id: 999, name: "Ghost", age: 0}

	err := m.Update(context.Background(), conn, r)
	require.Error(t, err)
	var nf *litedb.NotFound
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "readers", nf.Table)
}

func TestMapperSaveInsertsWhenPrimaryKeyAbsent(t *testing.T) {
	conn := openReadersDB(t)
	m := NewMapper()
	r := &reader{name: "Celine", age: 29}

	err := m.Save(context.Background(), conn, r)
	require.NoError(t, err)
	require.NotZero(t, r.id)
}

func TestMapperSaveUpdatesWhenPrimaryKeyPresent(t *testing.T) {
	conn := openReadersDB(t)
	m := NewMapper()
	r := &reader{name: "Dana", age: 50}
	require.NoError(t, m.Save(context.Background(), conn, r))
	firstID := r.id

	r.age = 51
	require.NoError(t, m.Save(context.Background(), conn, r))
	require.Equal(t, firstID, r.id)

	row, found, err := conn.FetchOne(context.Background(), "SELECT age FROM readers WHERE id = ?", r.id)
	require.NoError(t, err)
	require.True(t, found)
	ageVal, ok := row.Value("age")
	require.True(t, ok)
	age, err := ageVal.Int64("age")
	require.NoError(t, err)
	require.Equal(t, int64(51), age)
}

func TestMapperDeleteReportsWhetherRowExisted(t *testing.T) {
	conn := openReadersDB(t)
	m := NewMapper()
	r := &reader{name: "Elise", age: 33}
	_, err := m.Insert(context.Background(), conn, r)
	require.NoError(t, err)

	deleted, err := m.Delete(context.Background(), conn, r)
	require.NoError(t, err)
	require.True(t, deleted)

	deletedAgain, err := m.Delete(context.Background(), conn, r)
	require.NoError(t, err)
	require.False(t, deletedAgain)
}

func TestMapperExists(t *testing.T) {
	conn := openReadersDB(t)
	m := NewMapper()
	r := &reader{name: "Farid", age: 61}
	_, err := m.Insert(context.Background(), conn, r)
	require.NoError(t, err)

	ok, err := m.Exists(context.Background(), conn, r)
	require.NoError(t, err)
	require.True(t, ok)

	other := &reader{id: r.id + 1000}
	ok, err = m.Exists(context.Background(), conn, other)
	require.NoError(t, err)
	require.False(t, ok)
}
