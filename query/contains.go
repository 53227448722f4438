package query

import "fmt"

// Range is implemented by ClosedRange, HalfOpenRange, and Sequence — the
// three shapes spec §4.5's `contains` dispatches on.
type Range interface {
	rangeNode()
}

// ClosedRange is an inclusive [Min, Max] bound, rendered as BETWEEN.
type ClosedRange struct{ Min, Max Expr }

// HalfOpenRange is a [Lo, Hi) bound, rendered as `e >= lo AND e < hi`
// since SQL has no BETWEEN variant for a half-open interval.
type HalfOpenRange struct{ Lo, Hi Expr }

// Sequence is a fixed list of candidate values, rendered as IN (...).
type Sequence struct{ Values []Expr }

func (ClosedRange) rangeNode()   {}
func (HalfOpenRange) rangeNode() {}
func (Sequence) rangeNode()      {}

// Closed builds a ClosedRange from Go values.
func Closed(min, max interface{}) ClosedRange {
	return ClosedRange{Min: Lit(min), Max: Lit(max)}
}

// HalfOpen builds a HalfOpenRange from Go values.
func HalfOpen(lo, hi interface{}) HalfOpenRange {
	return HalfOpenRange{Lo: Lit(lo), Hi: Lit(hi)}
}

// Seq builds a Sequence from Go values.
func Seq(values ...interface{}) Sequence {
	exprs := make([]Expr, len(values))
	for i, v := range values {
		exprs[i] = Lit(v)
	}
	return Sequence{Values: exprs}
}

// Contains builds the expression spec §4.5 describes for `contains`: a
// ClosedRange renders as BETWEEN min AND max, a HalfOpenRange as
// `e >= lo AND e < hi`, and a Sequence as IN (...).
func Contains(e Expr, r Range) Expr {
	switch x := r.(type) {
	case ClosedRange:
		return Between{Expr: e, Min: x.Min, Max: x.Max}
	case HalfOpenRange:
		return InfixOp{
			Op:    "AND",
			Left:  InfixOp{Op: ">=", Left: e, Right: x.Lo},
			Right: InfixOp{Op: "<", Left: e, Right: x.Hi},
		}
	case Sequence:
		return InList{Expr: e, Values: x.Values}
	default:
		panic(fmt.Sprintf("query: unhandled Range %T", r))
	}
}
