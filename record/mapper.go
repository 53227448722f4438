// Package record implements the persistence mapper described in
// spec.md §4.6: given a record's column-name-to-value mapping and its
// table's primary key (read back from SQLite), it derives and caches
// the INSERT/UPDATE/DELETE/EXISTS SQL the record needs.
package record

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/mxk/litedb"
)

// Persistable is a record that knows its table and can expose its
// column values. Implementations are typically a thin adapter over a
// plain struct, mirroring the column-map-driven insert builders common
// in the corpus (e.g. a struct's exported fields collected into a map
// keyed by column name).
type Persistable interface {
	TableName() string
	ColumnValues() map[string]litedb.DatabaseValue
}

// RowIDReceiver is implemented by records that want to learn the rowid
// SQLite assigned on insert, mirroring spec §4.6's "if the record
// provides a hook, call that hook with (lastInsertedRowId,
// rowidColumnName)".
type RowIDReceiver interface {
	DidInsert(rowID int64, rowIDColumn string)
}

// Mapper caches generated SQL text, keyed by table name and the sorted
// set of columns involved, per spec §4.6 ("cached SQL text is keyed by
// (tableName, insertedColumns) for insert and by (tableName,
// updatedColumns, conditionColumns) for update"). A single Mapper is
// meant to be shared across every record type saved through one
// Connection/DatabaseQueue, since the cache key already disambiguates
// by table.
type Mapper struct {
	mu    sync.Mutex
	cache map[string]string
}

// NewMapper returns an empty Mapper.
func NewMapper() *Mapper {
	return &Mapper{cache: make(map[string]string)}
}

func (m *Mapper) cached(key string, build func() string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sql, ok := m.cache[key]; ok {
		return sql
	}
	sql := build()
	m.cache[key] = sql
	return sql
}

func sortedKeys(cols map[string]litedb.DatabaseValue) []string {
	keys := make([]string, 0, len(cols))
	for k := range cols {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Insert binds every column in the record's ColumnValues and executes
// `INSERT INTO t (…) VALUES (?, …)`. If the table has a rowid alias and
// the record implements RowIDReceiver, DidInsert is called with the new
// rowid and its column name (spec §4.6).
func (m *Mapper) Insert(ctx context.Context, conn *litedb.Connection, r Persistable) (litedb.ExecResult, error) {
	table := r.TableName()
	cols := r.ColumnValues()
	if len(cols) == 0 {
		return litedb.ExecResult{}, &litedb.ArgumentError{Reason: "cannot insert a record with no columns"}
	}
	names := sortedKeys(cols)
	key := "insert:" + table + ":" + strings.Join(names, ",")
	sql := m.cached(key, func() string {
		quoted := make([]string, len(names))
		placeholders := make([]string, len(names))
		for i, n := range names {
			quoted[i] = quoteIdent(n)
			placeholders[i] = "?"
		}
		return "INSERT INTO " + quoteIdent(table) + " (" + strings.Join(quoted, ", ") + ") VALUES (" +
			strings.Join(placeholders, ", ") + ")"
	})
	args := make([]interface{}, len(names))
	for i, n := range names {
		args[i] = cols[n]
	}
	res, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return litedb.ExecResult{}, err
	}
	if res.HasLastInsertRow {
		if receiver, ok := r.(RowIDReceiver); ok {
			pk, pkErr := conn.PrimaryKey(table)
			if pkErr == nil && pk.IsRowID() {
				receiver.DidInsert(res.LastInsertRowID, pk.Column())
			}
		}
	}
	return res, nil
}

// pkValues splits a record's columns into primary-key and non-key
// groups, requiring every PK column be present and at least one
// non-null (spec §4.6, §7 "invalid primary-key values").
func pkValues(table string, pk litedb.PrimaryKey, cols map[string]litedb.DatabaseValue) (keyCols, otherCols []string, err error) {
	if pk.Kind == litedb.PKNone {
		return nil, nil, &litedb.SchemaError{Reason: "table " + table + " has no primary key"}
	}
	keySet := make(map[string]struct{}, len(pk.Columns))
	anyNonNull := false
	for _, c := range pk.Columns {
		keySet[strings.ToLower(c)] = struct{}{}
		v, ok := cols[c]
		if !ok {
			return nil, nil, &litedb.ArgumentError{Reason: "missing primary key column " + c}
		}
		if !v.IsNull() {
			anyNonNull = true
		}
	}
	if !anyNonNull {
		return nil, nil, &litedb.ArgumentError{Reason: "primary key columns are all null"}
	}
	for _, n := range sortedKeys(cols) {
		if _, isKey := keySet[strings.ToLower(n)]; isKey {
			keyCols = append(keyCols, n)
		} else {
			otherCols = append(otherCols, n)
		}
	}
	sort.Strings(keyCols)
	return keyCols, otherCols, nil
}

// Update reads the table's primary key, binds non-PK columns in SET and
// PK columns in WHERE, and fails with *litedb.NotFound if no row
// changed. When the record's columns are exactly its PK (no other
// columns), it updates PK=PK so observers still see a change (spec
// §4.6).
func (m *Mapper) Update(ctx context.Context, conn *litedb.Connection, r Persistable) error {
	table := r.TableName()
	cols := r.ColumnValues()
	pk, err := conn.PrimaryKey(table)
	if err != nil {
		return err
	}
	keyCols, otherCols, err := pkValues(table, pk, cols)
	if err != nil {
		return err
	}
	setCols := otherCols
	if len(setCols) == 0 {
		setCols = keyCols // "update PK=PK" fallback
	}
	key := "update:" + table + ":" + strings.Join(setCols, ",") + ":" + strings.Join(keyCols, ",")
	sql := m.cached(key, func() string {
		sets := make([]string, len(setCols))
		for i, n := range setCols {
			sets[i] = quoteIdent(n) + " = ?"
		}
		conds := make([]string, len(keyCols))
		for i, n := range keyCols {
			conds[i] = quoteIdent(n) + " = ?"
		}
		return "UPDATE " + quoteIdent(table) + " SET " + strings.Join(sets, ", ") +
			" WHERE " + strings.Join(conds, " AND ")
	})
	args := make([]interface{}, 0, len(setCols)+len(keyCols))
	for _, n := range setCols {
		args = append(args, cols[n])
	}
	for _, n := range keyCols {
		args = append(args, cols[n])
	}
	res, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if res.ChangedRowCount == 0 {
		keyMap := make(map[string]litedb.DatabaseValue, len(keyCols))
		for _, n := range keyCols {
			keyMap[n] = cols[n]
		}
		return &litedb.NotFound{Table: table, Key: keyMap}
	}
	return nil
}

// Save tries an Update first; if that Update reports NotFound, or fails
// with ArgumentError (for example a null primary key) or SchemaError
// (for example a table without a primary key), it falls back to Insert
// (spec §4.6). The update-then-insert fallback runs inside a
// SAVEPOINT so a failure partway through the fallback can't leave the
// row half-written (spec §C, "savepoints ... used internally by the
// persistence mapper's Save").
func (m *Mapper) Save(ctx context.Context, conn *litedb.Connection, r Persistable) error {
	return conn.WithSavepoint("litedb_record_save", func() error {
		updateErr := m.Update(ctx, conn, r)
		if updateErr == nil {
			return nil
		}
		var nf *litedb.NotFound
		var schemaErr *litedb.SchemaError
		var argErr *litedb.ArgumentError
		if !errors.As(updateErr, &nf) && !errors.As(updateErr, &schemaErr) && !errors.As(updateErr, &argErr) {
			return updateErr
		}
		_, insertErr := m.Insert(ctx, conn, r)
		return insertErr
	})
}

// Delete removes the row matching r's primary key, reporting whether a
// row was actually removed.
func (m *Mapper) Delete(ctx context.Context, conn *litedb.Connection, r Persistable) (bool, error) {
	table := r.TableName()
	cols := r.ColumnValues()
	pk, err := conn.PrimaryKey(table)
	if err != nil {
		return false, err
	}
	keyCols, _, err := pkValues(table, pk, cols)
	if err != nil {
		return false, err
	}
	key := "delete:" + table + ":" + strings.Join(keyCols, ",")
	sql := m.cached(key, func() string {
		conds := make([]string, len(keyCols))
		for i, n := range keyCols {
			conds[i] = quoteIdent(n) + " = ?"
		}
		return "DELETE FROM " + quoteIdent(table) + " WHERE " + strings.Join(conds, " AND ")
	})
	args := make([]interface{}, len(keyCols))
	for i, n := range keyCols {
		args[i] = cols[n]
	}
	res, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return false, err
	}
	return res.ChangedRowCount > 0, nil
}

// Exists reports whether a row matching r's primary key is present.
func (m *Mapper) Exists(ctx context.Context, conn *litedb.Connection, r Persistable) (bool, error) {
	table := r.TableName()
	cols := r.ColumnValues()
	pk, err := conn.PrimaryKey(table)
	if err != nil {
		return false, err
	}
	keyCols, _, err := pkValues(table, pk, cols)
	if err != nil {
		return false, err
	}
	key := "exists:" + table + ":" + strings.Join(keyCols, ",")
	sql := m.cached(key, func() string {
		conds := make([]string, len(keyCols))
		for i, n := range keyCols {
			conds[i] = quoteIdent(n) + " = ?"
		}
		return "SELECT 1 FROM " + quoteIdent(table) + " WHERE " + strings.Join(conds, " AND ") + " LIMIT 1"
	})
	args := make([]interface{}, len(keyCols))
	for i, n := range keyCols {
		args[i] = cols[n]
	}
	_, found, err := conn.FetchOne(ctx, sql, args...)
	if err != nil {
		return false, err
	}
	return found, nil
}
