package litedb

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PrimaryKeyKind discriminates the three shapes a table's primary key
// can take (spec §3).
type PrimaryKeyKind int

const (
	// PKNone means the table has no declared primary key.
	PKNone PrimaryKeyKind = iota
	// PKRowID means a single INTEGER PRIMARY KEY column aliases SQLite's
	// rowid.
	PKRowID
	// PKRegular means one or more ordinary primary key columns.
	PKRegular
)

// PrimaryKey describes a table's primary key as introspected via
// PRAGMA table_info.
type PrimaryKey struct {
	Kind    PrimaryKeyKind
	Columns []string // empty when Kind == PKNone
}

// IsRowID reports whether this primary key aliases SQLite's rowid.
func (pk PrimaryKey) IsRowID() bool { return pk.Kind == PKRowID }

// Column returns the sole column name of a single-column key; it panics
// unless the key has exactly one column (composite keys and PKNone).
// Callers that may face such a key should use Columns directly.
func (pk PrimaryKey) Column() string {
	if len(pk.Columns) != 1 {
		panic("litedb: PrimaryKey.Column called on a non-single-column key")
	}
	return pk.Columns[0]
}

// tableColumnInfo mirrors one row of PRAGMA table_info(table).
type tableColumnInfo struct {
	cid       int
	name      string
	declType  string
	notNull   bool
	dfltValue *string
	pk        int // 1-based position in composite PK, 0 if not part of PK
}

// schemaCache is the per-connection cache of primary keys and the
// cached-compile statement map described in spec §4.3 ("Schema Cache").
// It is never locked: it is only ever touched from its owning
// connection's worker goroutine (spec §5, "Shared resources" (iii)).
type schemaCache struct {
	primaryKeys map[string]PrimaryKey // lowercased table name -> PK
	statements  map[string]*Statement // SQL text -> compiled statement
}

func newSchemaCache() *schemaCache {
	return &schemaCache{
		primaryKeys: make(map[string]PrimaryKey),
		statements:  make(map[string]*Statement),
	}
}

// invalidate clears both caches. Called whenever a compiled statement's
// compilation observed a DDL authorizer action (spec §3 invariant 3).
func (c *schemaCache) invalidate() {
	c.primaryKeys = make(map[string]PrimaryKey)
	for _, stmt := range c.statements {
		stmt.invalidated = true
	}
	c.statements = make(map[string]*Statement)
}

func (c *schemaCache) primaryKey(table string) (PrimaryKey, bool) {
	pk, ok := c.primaryKeys[strings.ToLower(table)]
	return pk, ok
}

func (c *schemaCache) setPrimaryKey(table string, pk PrimaryKey) {
	c.primaryKeys[strings.ToLower(table)] = pk
}

func (c *schemaCache) cachedStatement(sql string) (*Statement, bool) {
	s, ok := c.statements[sql]
	return s, ok
}

func (c *schemaCache) setCachedStatement(sql string, s *Statement) {
	c.statements[sql] = s
}

// sharedSchemaCache is a cross-connection cache for primary keys (read
// mostly, cheap to recompute, so a simple RWMutex map suffices per spec
// §5 "the shared schema cache is read-write-locked") plus an
// LRU-evicted record of the SQL texts compiled by the writer and every
// reader in a DatabasePool. Compile only records texts there and never
// consults it, so each connection still prepares its own statements.
// The PK side is a plain map under the RWMutex because entries are
// never evicted — they are cleared wholesale on any DDL (see invalidate)
// and are tiny bounded by the number of tables in the schema. The
// SQL-text side can grow unbounded with ad-hoc queries, which is why it
// goes through golang-lru instead of an unbounded map.
type sharedSchemaCache struct {
	mu          sync.RWMutex
	primaryKeys map[string]PrimaryKey

	sqlCache *lru.Cache[string, string] // SQL text as compiled -> itself (existence record)
}

func newSharedSchemaCache(sqlCacheSize int) *sharedSchemaCache {
	if sqlCacheSize <= 0 {
		sqlCacheSize = 256
	}
	c, _ := lru.New[string, string](sqlCacheSize)
	return &sharedSchemaCache{
		primaryKeys: make(map[string]PrimaryKey),
		sqlCache:    c,
	}
}

func (c *sharedSchemaCache) primaryKey(table string) (PrimaryKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pk, ok := c.primaryKeys[strings.ToLower(table)]
	return pk, ok
}

func (c *sharedSchemaCache) setPrimaryKey(table string, pk PrimaryKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primaryKeys[strings.ToLower(table)] = pk
}

func (c *sharedSchemaCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primaryKeys = make(map[string]PrimaryKey)
	c.sqlCache.Purge()
}

func (c *sharedSchemaCache) rememberSQL(sql string) {
	c.sqlCache.Add(sql, sql)
}

// quoteIdentifier double-quotes a SQL identifier, doubling any embedded
// quote, matching SQLite's own quoting rule for "identifiers".
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// primaryKeyFromColumns derives a PrimaryKey from PRAGMA table_info rows
// per spec §3/§4.3: a single PK column declared with SQL type exactly
// "INTEGER" (case-insensitive) becomes a rowid alias; any other
// non-empty PK column set is "regular"; no PK columns is PKNone.
func primaryKeyFromColumns(columns []tableColumnInfo) PrimaryKey {
	var pkCols []tableColumnInfo
	for _, c := range columns {
		if c.pk > 0 {
			pkCols = append(pkCols, c)
		}
	}
	if len(pkCols) == 0 {
		return PrimaryKey{Kind: PKNone}
	}
	// Order by their declared position within the primary key.
	ordered := make([]tableColumnInfo, len(pkCols))
	copy(ordered, pkCols)
	for i := range ordered {
		for j := i + 1; j < len(ordered); j++ {
			if ordered[j].pk < ordered[i].pk {
				ordered[i], ordered[j] = ordered[j], ordered[i]
			}
		}
	}
	if len(ordered) == 1 && strings.EqualFold(strings.TrimSpace(ordered[0].declType), "INTEGER") {
		return PrimaryKey{Kind: PKRowID, Columns: []string{ordered[0].name}}
	}
	names := make([]string, len(ordered))
	for i, c := range ordered {
		names[i] = c.name
	}
	return PrimaryKey{Kind: PKRegular, Columns: names}
}

func (pk PrimaryKey) String() string {
	switch pk.Kind {
	case PKNone:
		return "<none>"
	case PKRowID:
		return fmt.Sprintf("rowid(%s)", pk.Columns[0])
	default:
		return fmt.Sprintf("regular(%s)", strings.Join(pk.Columns, ","))
	}
}
