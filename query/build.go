package query

// Source is either a named table or a derived subquery.
type Source interface {
	sourceNode()
}

// TableSource selects FROM a table, optionally aliased.
type TableSource struct {
	Name  string
	Alias string
}

// SubquerySource selects FROM a nested Query, aliased (required by SQL
// syntax for derived tables).
type SubquerySource struct {
	Query *Query
	Alias string
}

func (TableSource) sourceNode()    {}
func (SubquerySource) sourceNode() {}

// Query is an immutable, functionally-composed SELECT statement (spec
// §3, §4.5). Every derivation method returns a new value; the original
// is never mutated, so a Query can be safely shared and refined along
// multiple branches.
type Query struct {
	selection []Selectable
	distinct  bool
	source    Source
	filter    Expr
	groupBy   []Expr
	having    Expr
	ordering  []Ordering
	reversed  bool
	limit     *int
	offset    *int
}

// From starts a Query selecting every column of table.
func From(table string) *Query {
	return &Query{source: TableSource{Name: table}, selection: []Selectable{Star{}}}
}

// FromAliased starts a Query over table under alias.
func FromAliased(table, alias string) *Query {
	return &Query{source: TableSource{Name: table, Alias: alias}, selection: []Selectable{Star{}}}
}

// FromSubquery starts a Query over a derived table.
func FromSubquery(sub *Query, alias string) *Query {
	return &Query{source: SubquerySource{Query: sub, Alias: alias}, selection: []Selectable{Star{}}}
}

// clone returns a shallow copy of q; derivation methods mutate the copy's
// slices' owning fields, never q's, giving each call site an independent
// value per the immutable-functional-composition requirement.
func (q *Query) clone() *Query {
	c := *q
	return &c
}

// Select replaces the selection list.
func (q *Query) Select(items ...Selectable) *Query {
	c := q.clone()
	c.selection = append([]Selectable(nil), items...)
	return c
}

// Distinct marks the query DISTINCT.
func (q *Query) Distinct() *Query {
	c := q.clone()
	c.distinct = true
	return c
}

// Filter AND-composes expr onto any existing filter (spec §4.5,
// "filters AND-compose").
func (q *Query) Filter(expr Expr) *Query {
	c := q.clone()
	if c.filter == nil {
		c.filter = expr
	} else {
		c.filter = InfixOp{Op: "AND", Left: c.filter, Right: expr}
	}
	return c
}

// GroupBy appends to the GROUP BY list.
func (q *Query) GroupBy(exprs ...Expr) *Query {
	c := q.clone()
	c.groupBy = append(append([]Expr(nil), c.groupBy...), exprs...)
	return c
}

// Having AND-composes expr onto any existing HAVING clause.
func (q *Query) Having(expr Expr) *Query {
	c := q.clone()
	if c.having == nil {
		c.having = expr
	} else {
		c.having = InfixOp{Op: "AND", Left: c.having, Right: expr}
	}
	return c
}

// OrderBy appends orderings (spec §4.5, "orderings append").
func (q *Query) OrderBy(orderings ...Ordering) *Query {
	c := q.clone()
	c.ordering = append(append([]Ordering(nil), c.ordering...), orderings...)
	return c
}

// Reverse toggles the reversed flag; SQL generation resolves it per
// spec §4.5 (flip existing orderings, or derive a deterministic PK
// ordering, or fail).
func (q *Query) Reverse() *Query {
	c := q.clone()
	c.reversed = !c.reversed
	return c
}

// Limit sets a row limit.
func (q *Query) Limit(n int) *Query {
	c := q.clone()
	c.limit = &n
	return c
}

// Offset sets a row offset; only meaningful alongside Limit in SQLite.
func (q *Query) Offset(n int) *Query {
	c := q.clone()
	c.offset = &n
	return c
}

// Where is a convenience alias for Filter, matching the verb callers
// reaching for raw SQL habitually expect.
func (q *Query) Where(expr Expr) *Query { return q.Filter(expr) }
