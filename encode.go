package zorm

import (
	"database/sql"
	"fmt"
	"strings"
)

// EncodeSQL returns v as a SQL literal: NULL when v is not valid, otherwise
// a single quoted string with backslash escapes.
func EncodeSQL(v sql.NullString) string {
	if !v.Valid {
		return Null
	}
	var b strings.Builder
	b.Grow(len(v.String) + 2)
	writeEncoded(&b, v.String)
	return b.String()
}

func writeSQL(b *strings.Builder, v sql.NullString) {
	if !v.Valid {
		b.WriteString(Null)
		return
	}
	writeEncoded(b, v.String)
}

func writeEncoded(b *strings.Builder, s string) {
	b.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '\'', '"':
			b.WriteByte('\\')
			b.WriteByte(c)
		case 0:
			b.WriteString(`\0`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case 0x1a:
			b.WriteString(`\Z`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
}

// Value encodes an arbitrary value as a SQL literal for use in query
// fragments. nil is NULL, booleans are '1' or '0', everything else is
// quoted in its string form.
func Value(v any) string {
	switch x := v.(type) {
	case nil:
		return Null
	case bool:
		if x {
			return "'1'"
		}
		return "'0'"
	case sql.NullString:
		return EncodeSQL(x)
	}
	return EncodeSQL(sql.NullString{String: fragment(v), Valid: true})
}

// fragment renders a query fragment. Fields and schemas print as their
// qualified names, sql.NullString values print bare.
func fragment(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case sql.NullString:
		if !x.Valid {
			return Null
		}
		return x.String
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
