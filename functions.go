package litedb

// AddFunction registers a scalar SQL function under name, backed by impl
// (a Go func matching mattn/go-sqlite3's RegisterFunc signature
// conventions: arguments/return convertible to SQLite storage classes).
// pure marks the function as deterministic, letting SQLite's query
// planner fold repeated calls (spec §4.3, "add/remove function").
func (c *Connection) AddFunction(name string, pure bool, impl interface{}) error {
	if err := c.raw.RegisterFunc(name, impl, pure); err != nil {
		return c.wrapErr(err, "", nil)
	}
	return nil
}

// RemoveFunction unregisters a previously added scalar function.
func (c *Connection) RemoveFunction(name string) error {
	if err := c.raw.RegisterFunc(name, nil, true); err != nil {
		return c.wrapErr(err, "", nil)
	}
	return nil
}

// AddAggregate registers an aggregate SQL function under name. impl must
// satisfy mattn/go-sqlite3's aggregator convention: a constructor func()
// returning a value with Step(...) and Done() (...) methods (spec §C,
// "richer registration" beyond scalar functions).
func (c *Connection) AddAggregate(name string, pure bool, impl interface{}) error {
	if err := c.raw.RegisterAggregator(name, impl, pure); err != nil {
		return c.wrapErr(err, "", nil)
	}
	return nil
}

// AddCollation registers a custom text collation. cmp must return
// negative/zero/positive the way strings.Compare does.
func (c *Connection) AddCollation(name string, cmp func(string, string) int) error {
	if err := c.raw.RegisterCollation(name, cmp); err != nil {
		return c.wrapErr(err, "", nil)
	}
	return nil
}

// RemoveCollation unregisters a previously added collation.
func (c *Connection) RemoveCollation(name string) error {
	if err := c.raw.RegisterCollation(name, nil); err != nil {
		return c.wrapErr(err, "", nil)
	}
	return nil
}

// WithSavepoint runs fn inside a named SAVEPOINT (spec §C), releasing it
// on success and rolling back to it on error or panic. Nested calls with
// distinct names compose normally since SQLite savepoints nest.
func (c *Connection) WithSavepoint(name string, fn func() error) (err error) {
	quoted := quoteIdentifier(name)
	if _, execErr := c.execDirect("SAVEPOINT " + quoted); execErr != nil {
		return execErr
	}
	defer func() {
		if r := recover(); r != nil {
			c.execDirect("ROLLBACK TO " + quoted)
			c.execDirect("RELEASE " + quoted)
			panic(r)
		}
	}()
	if err = fn(); err != nil {
		if _, rbErr := c.execDirect("ROLLBACK TO " + quoted); rbErr != nil {
			return rbErr
		}
		if _, relErr := c.execDirect("RELEASE " + quoted); relErr != nil {
			return relErr
		}
		return err
	}
	_, err = c.execDirect("RELEASE " + quoted)
	return err
}

// Erase drops every user table, index, trigger, and view, then runs
// VACUUM, mirroring GRDB's Database.erase() test-fixture helper (spec
// §C). Only sqlite_-prefixed internal objects are skipped by the drop
// loop's sqlite_master filter; the grdb_migrations bookkeeping table is
// a user table and is dropped along with everything else — callers that
// want migrations to survive an Erase should re-run their migrator
// afterwards.
func (c *Connection) Erase() error {
	stmt, err := c.Compile(`SELECT type, name FROM sqlite_master WHERE name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return err
	}
	rows, err := stmt.Query(nil)
	if err != nil {
		return err
	}
	all, err := rows.FetchAll()
	rows.Close()
	if err != nil {
		return err
	}
	for _, row := range all {
		kind, _ := row.At(0).Text("type")
		name, _ := row.At(1).Text("name")
		if kind == "table" || kind == "index" || kind == "trigger" || kind == "view" {
			// IF EXISTS: dropping a table has already dropped its indexes
			// and triggers.
			if _, execErr := c.execDirect("DROP " + toUpperDDLKind(kind) + " IF EXISTS " + quoteIdentifier(name)); execErr != nil {
				return execErr
			}
		}
	}
	_, err = c.execDirect("VACUUM")
	return err
}

func toUpperDDLKind(kind string) string {
	switch kind {
	case "table":
		return "TABLE"
	case "index":
		return "INDEX"
	case "trigger":
		return "TRIGGER"
	case "view":
		return "VIEW"
	default:
		return kind
	}
}
