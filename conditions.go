package zorm

import "strings"

// Condition helpers return a bare comparison meant for Where and Having,
// which add the parentheses.
//
//	q.Where(zorm.Eq(ItemFields.Active, true)) // (i.active = '1')

// Eq returns f = v with v encoded by the field, or f IS NULL for nil.
func Eq(f Field, v any) string {
	if v == nil {
		return join(f, IsNull)
	}
	return compare(f, Equals, v)
}

// Neq returns f <> v, or f IS NOT NULL for nil.
func Neq(f Field, v any) string {
	if v == nil {
		return join(f, IsNotNull)
	}
	return compare(f, NotEquals, v)
}

func Gt(f Field, v any) string { return compare(f, Greater, v) }

func Gte(f Field, v any) string { return compare(f, GreaterEqual, v) }

func Lt(f Field, v any) string { return compare(f, Less, v) }

func Lte(f Field, v any) string { return compare(f, LessEqual, v) }

// Matches returns f LIKE pattern. The pattern is quoted as text.
func Matches(f Field, pattern string) string {
	return join(f, Like, Value(pattern))
}

// AnyOf parenthesizes each condition and joins them with OR.
func AnyOf(conds ...string) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = "(" + c + ")"
	}
	return strings.Join(parts, " "+Or+" ")
}

func compare(f Field, op string, v any) string {
	return join(f, op, EncodeSQL(f.ToSQLValue(v)))
}

func join(fragments ...any) string {
	parts := make([]string, len(fragments))
	for i, x := range fragments {
		parts[i] = fragment(x)
	}
	return strings.Join(parts, " ")
}
