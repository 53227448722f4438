// Package query implements the expression algebra and composable query
// builder described in spec.md §4.5: a typed AST for SQL expressions,
// orderings, and selections, plus a Query value that composes
// functionally and renders to parameterized SQL.
package query

import "github.com/mxk/litedb"

// Expr is any node in the expression AST. The marker method follows the
// sum-type-via-interface idiom: only types declared in this package can
// satisfy Expr, so a type switch in render.go is exhaustive by
// construction.
type Expr interface {
	exprNode()
}

// Literal is a raw, unparameterized fragment of SQL, used sparingly for
// constructs the algebra doesn't model directly.
type Literal struct{ SQL string }

// Value wraps a bound DatabaseValue, rendered as a placeholder with its
// value appended to the binding list.
type Value struct{ V litedb.DatabaseValue }

// Identifier references a column, optionally qualified by a table name
// or alias.
type Identifier struct {
	Name      string
	Qualifier string
}

// Collate applies a named collation to expr.
type Collate struct {
	Expr      Expr
	Collation string
}

// Not negates expr.
type Not struct{ Expr Expr }

// Equal renders `Left = Right`, except when either side is a NULL
// Value, in which case render.go emits `Left IS NULL` per spec §4.5.
type Equal struct{ Left, Right Expr }

// NotEqual renders `Left <> Right`, or `Left IS NOT NULL` per the same
// null rewrite as Equal.
type NotEqual struct{ Left, Right Expr }

// Is renders `Left IS Right`.
type Is struct{ Left, Right Expr }

// IsNot renders `Left IS NOT Right`.
type IsNot struct{ Left, Right Expr }

// PrefixOp renders `Op Expr`, e.g. unary minus.
type PrefixOp struct {
	Op   string
	Expr Expr
}

// InfixOp renders `Left Op Right` for any binary SQL operator not
// covered by a dedicated node (comparisons, arithmetic, string
// concatenation).
type InfixOp struct {
	Op          string
	Left, Right Expr
}

// InList renders `Expr IN (Values…)`, collapsing to the literal `0`
// when Values is empty (spec §4.5).
type InList struct {
	Expr   Expr
	Values []Expr
}

// InSubquery renders `Expr IN (subquery)`.
type InSubquery struct {
	Expr  Expr
	Query *Query
}

// Exists renders `EXISTS (subquery)`.
type Exists struct{ Query *Query }

// Between renders `Expr BETWEEN Min AND Max`.
type Between struct{ Expr, Min, Max Expr }

// Function renders `Name(Args…)`.
type Function struct {
	Name string
	Args []Expr
}

// Count renders `COUNT(selectable)`, where Selectable is usually Star{}
// for `COUNT(*)`.
type Count struct{ Selectable Selectable }

// CountDistinct renders `COUNT(DISTINCT Expr)`.
type CountDistinct struct{ Expr Expr }

func (Literal) exprNode()       {}
func (Value) exprNode()         {}
func (Identifier) exprNode()    {}
func (Collate) exprNode()       {}
func (Not) exprNode()           {}
func (Equal) exprNode()         {}
func (NotEqual) exprNode()      {}
func (Is) exprNode()            {}
func (IsNot) exprNode()         {}
func (PrefixOp) exprNode()      {}
func (InfixOp) exprNode()       {}
func (InList) exprNode()        {}
func (InSubquery) exprNode()    {}
func (Exists) exprNode()        {}
func (Between) exprNode()       {}
func (Function) exprNode()      {}
func (Count) exprNode()         {}
func (CountDistinct) exprNode() {}

// Col builds an unqualified column Identifier, the common case at call
// sites.
func Col(name string) Identifier { return Identifier{Name: name} }

// Qualified builds a table-qualified column Identifier.
func Qualified(qualifier, name string) Identifier {
	return Identifier{Name: name, Qualifier: qualifier}
}

// Lit wraps a Go value as a bound Value expression.
func Lit(v interface{}) Value { return Value{V: litedb.FromAny(v)} }

// Ordering is asc(expr) or desc(expr).
type Ordering struct {
	Expr       Expr
	Descending bool
}

// Asc builds an ascending Ordering.
func Asc(e Expr) Ordering { return Ordering{Expr: e} }

// Desc builds a descending Ordering.
func Desc(e Expr) Ordering { return Ordering{Expr: e, Descending: true} }

func (o Ordering) reversed() Ordering { return Ordering{Expr: o.Expr, Descending: !o.Descending} }

// Selectable is an item in a SELECT list: either Star or an Aliased
// expression.
type Selectable interface {
	selectableNode()
}

// Star selects every column, optionally qualified (`t.*`).
type Star struct{ Qualifier string }

// Aliased selects a single expression, optionally as `expr AS Alias`.
type Aliased struct {
	Expr  Expr
	Alias string
}

func (Star) selectableNode()    {}
func (Aliased) selectableNode() {}

// As builds an aliased selectable.
func As(e Expr, alias string) Aliased { return Aliased{Expr: e, Alias: alias} }
