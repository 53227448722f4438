package query

import "github.com/mxk/litedb"

// RenderCount implements spec §4.5's fetchCount rewrite: (a) if
// group-by or limit is present, or the source is not a plain table,
// wrap as `SELECT COUNT(*) FROM (original-without-ordering)`; (b) else
// if the selection is a single `*` (qualified or not) without DISTINCT,
// rewrite to `SELECT COUNT(*) …`; (c) else if the selection is a single
// DISTINCT expression, rewrite to `SELECT COUNT(DISTINCT expr) …`; (d)
// otherwise fall back to wrapping.
func RenderCount(q *Query, pk PrimaryKeyLookup) (sql string, args []litedb.DatabaseValue, err error) {
	return Render(countRewrite(q), pk)
}

func countRewrite(q *Query) *Query {
	_, isTable := q.source.(TableSource)
	if q.groupBy != nil || q.limit != nil || !isTable {
		return wrapAsCount(q)
	}
	if len(q.selection) == 1 {
		switch s := q.selection[0].(type) {
		case Star:
			if !q.distinct {
				c := q.clone()
				c.selection = []Selectable{As(Count{Selectable: Star{}}, "")}
				c.ordering = nil
				c.reversed = false
				return c
			}
		case Aliased:
			if q.distinct {
				c := q.clone()
				c.distinct = false
				c.selection = []Selectable{As(CountDistinct{Expr: s.Expr}, "")}
				c.ordering = nil
				c.reversed = false
				return c
			}
		}
	}
	return wrapAsCount(q)
}

// wrapAsCount builds `SELECT COUNT(*) FROM (inner-without-ordering)`.
func wrapAsCount(q *Query) *Query {
	inner := q.clone()
	inner.ordering = nil
	inner.reversed = false
	return FromSubquery(inner, "count_subquery").Select(As(Count{Selectable: Star{}}, ""))
}
