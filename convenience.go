package litedb

import "context"

// Exec compiles (or reuses the cached compile of) sql, binds args
// positionally, and executes it to completion, returning the number of
// rows it changed. It must only be called from a Connection's owning
// queue worker; DatabaseQueue.Write and DatabasePool.Write/Read arrange
// that automatically.
func (c *Connection) Exec(ctx context.Context, sql string, args ...interface{}) (ExecResult, error) {
	if err := ctx.Err(); err != nil {
		return ExecResult{}, err
	}
	stmt, err := c.Compile(sql)
	if err != nil {
		return ExecResult{}, err
	}
	a := NewArguments(args...)
	return stmt.Execute(&a)
}

// Fetch compiles sql, binds args, and returns every resulting row,
// detached.
func (c *Connection) Fetch(ctx context.Context, sql string, args ...interface{}) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stmt, err := c.Compile(sql)
	if err != nil {
		return nil, err
	}
	a := NewArguments(args...)
	rows, err := stmt.Query(&a)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return rows.FetchAll()
}

// FetchOne compiles sql, binds args, and returns the first resulting
// row. The second return value is false if the query produced no rows.
func (c *Connection) FetchOne(ctx context.Context, sql string, args ...interface{}) (Row, bool, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, false, err
	}
	stmt, err := c.Compile(sql)
	if err != nil {
		return Row{}, false, err
	}
	a := NewArguments(args...)
	rows, err := stmt.Query(&a)
	if err != nil {
		return Row{}, false, err
	}
	defer rows.Close()
	if !rows.Next() {
		return Row{}, false, rows.Err()
	}
	return rows.Row().Detach(), true, nil
}

// Transaction runs fn inside a BEGIN/COMMIT of the given kind, rolling
// back on error or panic (spec §4.3).
func (c *Connection) Transaction(kind TransactionKind, fn func() error) (err error) {
	if err = c.Begin(kind); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			c.Rollback()
			panic(r)
		}
	}()
	if err = fn(); err != nil {
		c.Rollback()
		return err
	}
	return c.Commit()
}
