package zorm

import (
	"strconv"
	"strings"
)

// SQL keywords and operators for building fragments.
const (
	Null = "NULL"

	Not = "NOT"
	And = "AND"
	Or  = "OR"

	Plus     = "+"
	Minus    = "-"
	Multiply = "*"
	Divide   = "/"

	Equals       = "="
	NotEquals    = "<>"
	Less         = "<"
	LessEqual    = "<="
	Greater      = ">"
	GreaterEqual = ">="
	IsNull       = "IS NULL"
	IsNotNull    = "IS NOT NULL"
	Like         = "LIKE"

	Concatenate = "||"
	InOp        = "IN"
	BetweenOp   = "BETWEEN"
)

// Expression accumulates parenthesized conditions joined with AND. The zero
// value is empty and ready to use.
//
//	var e zorm.Expression
//	e.Expr(Item.Active, zorm.Equals, 1).Between(Item.Rating, 5, 10)
//	// (i.active = 1) AND (i.rating BETWEEN 5 AND 10)
type Expression struct {
	b strings.Builder
}

func (e *Expression) next() {
	if e.b.Len() != 0 {
		e.b.WriteString(" AND ")
	}
}

// Expr appends the fragments separated by spaces inside parentheses. A call
// without fragments does nothing.
func (e *Expression) Expr(fragments ...any) *Expression {
	if len(fragments) == 0 {
		return e
	}
	e.next()
	writeExpr(&e.b, fragments)
	return e
}

// Between appends (x BETWEEN lo AND hi).
func (e *Expression) Between(x, lo, hi any) *Expression {
	e.next()
	writeBetween(&e.b, x, lo, hi)
	return e
}

// In appends (x IN (v1, v2, ...)).
func (e *Expression) In(x any, values ...any) *Expression {
	e.next()
	writeIn(&e.b, x, values)
	return e
}

func (e *Expression) Clear() *Expression {
	e.b.Reset()
	return e
}

func (e *Expression) String() string { return e.b.String() }

func (e *Expression) Len() int { return e.b.Len() }

func writeExpr(b *strings.Builder, fragments []any) {
	b.WriteByte('(')
	for i, f := range fragments {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fragment(f))
	}
	b.WriteByte(')')
}

func writeBetween(b *strings.Builder, x, lo, hi any) {
	b.WriteByte('(')
	b.WriteString(fragment(x))
	b.WriteString(" BETWEEN ")
	b.WriteString(fragment(lo))
	b.WriteString(" AND ")
	b.WriteString(fragment(hi))
	b.WriteByte(')')
}

func writeIn(b *strings.Builder, x any, values []any) {
	b.WriteByte('(')
	b.WriteString(fragment(x))
	b.WriteString(" IN (")
	writeList(b, values)
	b.WriteString("))")
}

func writeList(b *strings.Builder, values []any) {
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fragment(v))
	}
}

// Expr returns the fragments separated by spaces inside parentheses.
func Expr(fragments ...any) string {
	var b strings.Builder
	writeExpr(&b, fragments)
	return b.String()
}

func Between(x, lo, hi any) string {
	var b strings.Builder
	writeBetween(&b, x, lo, hi)
	return b.String()
}

func In(x any, values ...any) string {
	var b strings.Builder
	writeIn(&b, x, values)
	return b.String()
}

// Desc returns x followed by DESC, for ORDER BY.
func Desc(x any) string {
	return fragment(x) + " DESC"
}

// Other prefixes x with "t<i>_", to refer to the i-th occurrence of a table
// in a self join: Other("item", 3) is "t3_item".
func Other(x any, i int) string {
	return "t" + strconv.Itoa(i) + "_" + fragment(x)
}

// Second is Other(x, 2).
func Second(x any) string {
	return Other(x, 2)
}
