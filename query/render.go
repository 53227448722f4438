package query

import (
	"fmt"
	"strings"

	"github.com/mxk/litedb"
)

// PrimaryKeyLookup resolves a table's primary key, used to derive a
// deterministic ordering for Reverse() when the query has none (spec
// §4.5) and by the persistence mapper. *litedb.Connection.PrimaryKey
// satisfies this signature.
type PrimaryKeyLookup func(table string) (litedb.PrimaryKey, error)

// renderer accumulates bindings while walking the AST.
type renderer struct {
	sb   strings.Builder
	args []litedb.DatabaseValue
	pk   PrimaryKeyLookup
}

// Render produces parameterized SQL and a parallel binding list for q,
// consulting pk to resolve Reverse() when needed.
func Render(q *Query, pk PrimaryKeyLookup) (sql string, args []litedb.DatabaseValue, err error) {
	r := &renderer{pk: pk}
	if err := r.renderQuery(q); err != nil {
		return "", nil, err
	}
	return r.sb.String(), r.args, nil
}

func (r *renderer) renderQuery(q *Query) error {
	orderings, err := resolveOrdering(q, r.pk)
	if err != nil {
		return err
	}

	r.sb.WriteString("SELECT ")
	if q.distinct {
		r.sb.WriteString("DISTINCT ")
	}
	if err := r.renderSelection(q.selection); err != nil {
		return err
	}
	r.sb.WriteString(" FROM ")
	if err := r.renderSource(q.source); err != nil {
		return err
	}
	if q.filter != nil {
		r.sb.WriteString(" WHERE ")
		if err := r.renderExpr(q.filter); err != nil {
			return err
		}
	}
	if len(q.groupBy) > 0 {
		r.sb.WriteString(" GROUP BY ")
		for i, e := range q.groupBy {
			if i > 0 {
				r.sb.WriteString(", ")
			}
			if err := r.renderExpr(e); err != nil {
				return err
			}
		}
	}
	if q.having != nil {
		r.sb.WriteString(" HAVING ")
		if err := r.renderExpr(q.having); err != nil {
			return err
		}
	}
	if len(orderings) > 0 {
		r.sb.WriteString(" ORDER BY ")
		for i, o := range orderings {
			if i > 0 {
				r.sb.WriteString(", ")
			}
			if err := r.renderExpr(o.Expr); err != nil {
				return err
			}
			if o.Descending {
				r.sb.WriteString(" DESC")
			} else {
				r.sb.WriteString(" ASC")
			}
		}
	}
	if q.limit != nil {
		fmt.Fprintf(&r.sb, " LIMIT %d", *q.limit)
		if q.offset != nil {
			fmt.Fprintf(&r.sb, " OFFSET %d", *q.offset)
		}
	}
	return nil
}

// resolveOrdering implements spec §4.5's Reverse semantics: flip
// existing orderings; otherwise derive a deterministic ordering from the
// source table's primary key; otherwise fail.
func resolveOrdering(q *Query, pk PrimaryKeyLookup) ([]Ordering, error) {
	if !q.reversed {
		return q.ordering, nil
	}
	if len(q.ordering) > 0 {
		out := make([]Ordering, len(q.ordering))
		for i, o := range q.ordering {
			out[i] = o.reversed()
		}
		return out, nil
	}
	table, ok := q.source.(TableSource)
	if !ok {
		return nil, &litedb.SchemaError{Reason: "reverse() on a query with no ordering requires a table source"}
	}
	if pk == nil {
		return nil, &litedb.SchemaError{Reason: "reverse() on a query with no ordering requires a primary-key lookup"}
	}
	key, err := pk(table.Name)
	if err != nil {
		return nil, err
	}
	if key.Kind == litedb.PKNone {
		return nil, &litedb.SchemaError{Reason: fmt.Sprintf("reverse() requires a deterministic ordering, but %q has no primary key", table.Name)}
	}
	out := make([]Ordering, len(key.Columns))
	for i, col := range key.Columns {
		out[i] = Desc(Col(col))
	}
	return out, nil
}

func (r *renderer) renderSelection(items []Selectable) error {
	if len(items) == 0 {
		r.sb.WriteString("*")
		return nil
	}
	for i, item := range items {
		if i > 0 {
			r.sb.WriteString(", ")
		}
		switch s := item.(type) {
		case Star:
			if s.Qualifier != "" {
				r.sb.WriteString(quote(s.Qualifier) + ".*")
			} else {
				r.sb.WriteString("*")
			}
		case Aliased:
			if err := r.renderExpr(s.Expr); err != nil {
				return err
			}
			if s.Alias != "" {
				r.sb.WriteString(" AS " + quote(s.Alias))
			}
		default:
			return fmt.Errorf("query: unhandled selectable %T", item)
		}
	}
	return nil
}

func (r *renderer) renderSource(src Source) error {
	switch s := src.(type) {
	case TableSource:
		r.sb.WriteString(quote(s.Name))
		if s.Alias != "" {
			r.sb.WriteString(" AS " + quote(s.Alias))
		}
	case SubquerySource:
		r.sb.WriteString("(")
		if err := r.renderQuery(s.Query); err != nil {
			return err
		}
		r.sb.WriteString(") AS " + quote(s.Alias))
	default:
		return fmt.Errorf("query: unhandled source %T", src)
	}
	return nil
}

// renderExpr walks e, rewriting equality-with-null per spec §4.5 ("x ==
// null" -> "x IS NULL" regardless of operand side) and collapsing
// empty-list membership tests to their boolean literal.
func (r *renderer) renderExpr(e Expr) error {
	switch x := e.(type) {
	case Literal:
		r.sb.WriteString(x.SQL)
	case Value:
		r.bind(x.V)
	case Identifier:
		if x.Qualifier != "" {
			r.sb.WriteString(quote(x.Qualifier) + ".")
		}
		r.sb.WriteString(quote(x.Name))
	case Collate:
		return r.renderCollate(x)
	case Not:
		if inList, ok := x.Expr.(InList); ok && len(inList.Values) == 0 {
			// "NOT (a IN ())" collapses to the literal 1 (spec §4.5),
			// distinct from the bare "a IN ()" -> 0 case in renderInList.
			r.sb.WriteString("1")
			return nil
		}
		r.sb.WriteString("NOT (")
		if err := r.renderExpr(x.Expr); err != nil {
			return err
		}
		r.sb.WriteString(")")
	case Equal:
		return r.renderNullable(x.Left, x.Right, "=", "IS NULL")
	case NotEqual:
		return r.renderNullable(x.Left, x.Right, "<>", "IS NOT NULL")
	case Is:
		return r.renderInfix(x.Left, "IS", x.Right)
	case IsNot:
		return r.renderInfix(x.Left, "IS NOT", x.Right)
	case PrefixOp:
		r.sb.WriteString(x.Op + " ")
		return r.renderExpr(x.Expr)
	case InfixOp:
		return r.renderInfix(x.Left, x.Op, x.Right)
	case InList:
		return r.renderInList(x)
	case InSubquery:
		if err := r.renderExpr(x.Expr); err != nil {
			return err
		}
		r.sb.WriteString(" IN (")
		if err := r.renderQuery(x.Query); err != nil {
			return err
		}
		r.sb.WriteString(")")
	case Exists:
		r.sb.WriteString("EXISTS (")
		if err := r.renderQuery(x.Query); err != nil {
			return err
		}
		r.sb.WriteString(")")
	case Between:
		if err := r.renderExpr(x.Expr); err != nil {
			return err
		}
		r.sb.WriteString(" BETWEEN ")
		if err := r.renderExpr(x.Min); err != nil {
			return err
		}
		r.sb.WriteString(" AND ")
		return r.renderExpr(x.Max)
	case Function:
		r.sb.WriteString(x.Name + "(")
		for i, a := range x.Args {
			if i > 0 {
				r.sb.WriteString(", ")
			}
			if err := r.renderExpr(a); err != nil {
				return err
			}
		}
		r.sb.WriteString(")")
	case Count:
		r.sb.WriteString("COUNT(")
		if err := r.renderSelection([]Selectable{x.Selectable}); err != nil {
			return err
		}
		r.sb.WriteString(")")
	case CountDistinct:
		r.sb.WriteString("COUNT(DISTINCT ")
		if err := r.renderExpr(x.Expr); err != nil {
			return err
		}
		r.sb.WriteString(")")
	default:
		return fmt.Errorf("query: unhandled expression %T", e)
	}
	return nil
}

func isNullValue(e Expr) bool {
	v, ok := e.(Value)
	return ok && v.V.IsNull()
}

// renderNullable implements the "x == null" / "x != null" rewrite: when
// either operand is a literal NULL, the whole comparison becomes IS
// (NOT) NULL over the other operand.
func (r *renderer) renderNullable(left, right Expr, op, nullSQL string) error {
	if isNullValue(right) {
		if err := r.renderExpr(left); err != nil {
			return err
		}
		r.sb.WriteString(" " + nullSQL)
		return nil
	}
	if isNullValue(left) {
		if err := r.renderExpr(right); err != nil {
			return err
		}
		r.sb.WriteString(" " + nullSQL)
		return nil
	}
	return r.renderInfix(left, op, right)
}

func (r *renderer) renderInfix(left Expr, op string, right Expr) error {
	for i, operand := range [2]Expr{left, right} {
		if i == 1 {
			r.sb.WriteString(" " + op + " ")
		}
		// OR binds looser than AND, so an OR operand of AND keeps its grouping.
		inner, isInfix := operand.(InfixOp)
		group := isInfix && strings.EqualFold(op, "AND") && strings.EqualFold(inner.Op, "OR")
		if group {
			r.sb.WriteString("(")
		}
		if err := r.renderExpr(operand); err != nil {
			return err
		}
		if group {
			r.sb.WriteString(")")
		}
	}
	return nil
}

// renderInList collapses empty membership tests to their boolean
// literal (spec §4.5: "a IN ()" -> 0, "NOT (a IN ())" -> 1). Since
// render.go sees InList directly (not wrapped in Not at this point for
// the NOT (... IN ()) case — that arrives as Not{InList{}}), the Not
// case above calls renderExpr on the InList, which would emit "0"; NOT
// (0) is not the literal 1 the spec calls for, so Not special-cases an
// empty InList child directly.
func (r *renderer) renderInList(x InList) error {
	if len(x.Values) == 0 {
		r.sb.WriteString("0")
		return nil
	}
	if err := r.renderExpr(x.Expr); err != nil {
		return err
	}
	r.sb.WriteString(" IN (")
	for i, v := range x.Values {
		if i > 0 {
			r.sb.WriteString(", ")
		}
		if err := r.renderExpr(v); err != nil {
			return err
		}
	}
	r.sb.WriteString(")")
	return nil
}

// renderCollate implements spec §4.5: "collate(e, C) applied to a
// parenthesized expression inserts COLLATE C inside the closing
// parenthesis; otherwise appends COLLATE C." Only Not is rendered with
// COLLATE inside its closing parenthesis; every other expression,
// including those whose SQL also ends in a parenthesis (EXISTS, IN
// lists, function calls, COUNT), simply gets " COLLATE C" appended.
func (r *renderer) renderCollate(c Collate) error {
	if not, ok := c.Expr.(Not); ok {
		if inList, isEmpty := not.Expr.(InList); isEmpty && len(inList.Values) == 0 {
			r.sb.WriteString("1")
			return nil
		}
		r.sb.WriteString("NOT (")
		if err := r.renderExpr(not.Expr); err != nil {
			return err
		}
		fmt.Fprintf(&r.sb, " COLLATE %s)", c.Collation)
		return nil
	}
	if err := r.renderExpr(c.Expr); err != nil {
		return err
	}
	fmt.Fprintf(&r.sb, " COLLATE %s", c.Collation)
	return nil
}

func (r *renderer) bind(v litedb.DatabaseValue) {
	r.sb.WriteString("?")
	r.args = append(r.args, v)
}

// quote double-quotes a SQL identifier, doubling any embedded quote.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
