package zorm

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeSQL(t *testing.T) {
	for _, tc := range []struct {
		in   sql.NullString
		want string
	}{
		{sql.NullString{}, "NULL"},
		{sql.NullString{String: "", Valid: true}, "''"},
		{sql.NullString{String: "abc", Valid: true}, "'abc'"},
		{sql.NullString{String: "it's", Valid: true}, `'it\'s'`},
		{sql.NullString{String: `say "hi"`, Valid: true}, `'say \"hi\"'`},
		{sql.NullString{String: `a\b`, Valid: true}, `'a\\b'`},
		{sql.NullString{String: "l1\nl2\r\t", Valid: true}, `'l1\nl2\r\t'`},
		{sql.NullString{String: "nul\x00sub\x1a", Valid: true}, `'nul\0sub\Z'`},
	} {
		assert.Equal(t, tc.want, EncodeSQL(tc.in), tc.in.String)
	}
}

func TestValue(t *testing.T) {
	assert.Equal(t, "NULL", Value(nil))
	assert.Equal(t, "'1'", Value(true))
	assert.Equal(t, "'0'", Value(false))
	assert.Equal(t, "'42'", Value(42))
	assert.Equal(t, "'O\\'Hara'", Value("O'Hara"))
	assert.Equal(t, "NULL", Value(sql.NullString{}))
	assert.Equal(t, "'i.name'", Value(itemName), "fields are quoted by their display name")
}

func TestExpression(t *testing.T) {
	var e Expression
	assert.Zero(t, e.Len())

	e.Expr()
	assert.Equal(t, "", e.String(), "no fragments is a no-op")

	e.Expr(itemActive)
	assert.Equal(t, "(i.active)", e.String())

	e.Expr(itemRating, Greater, 2)
	e.Expr(Not, itemName, Like, Value("a%"))
	e.Between(itemRating, 1, 5).In(itemID, 1, 2, 3)
	assert.Equal(t, "(i.active) AND (i.rating > 2) AND (NOT i.name LIKE 'a%') AND "+
		"(i.rating BETWEEN 1 AND 5) AND (i.id IN (1, 2, 3))", e.String())

	e.Clear()
	assert.Equal(t, "", e.String())
	e.Expr(itemAuthorID, IsNotNull)
	assert.Equal(t, "(i.author_id IS NOT NULL)", e.String())
}

func TestExprHelpers(t *testing.T) {
	assert.Equal(t, "(i.rating + 1)", Expr(itemRating, Plus, 1))
	assert.Equal(t, "(a || b)", Expr("a", Concatenate, "b"))
	assert.Equal(t, "(x BETWEEN 'a' AND 'b')", Between("x", Value("a"), Value("b")))
	assert.Equal(t, "(u.id IN ('a'))", In(userID, Value("a")))
	assert.Equal(t, "i.rating DESC", Desc(itemRating))
	assert.Equal(t, "t3_item", Other("item", 3))
	assert.Equal(t, "t2_u", Second(userSchema))
}

func TestConditions(t *testing.T) {
	assert.Equal(t, "i.active = '1'", Eq(itemActive, true))
	assert.Equal(t, "i.author_id IS NULL", Eq(itemAuthorID, nil))
	assert.Equal(t, "i.author_id IS NOT NULL", Neq(itemAuthorID, nil))
	assert.Equal(t, "i.name <> 'x'", Neq(itemName, "x"))
	assert.Equal(t, "i.rating > '2'", Gt(itemRating, int64(2)))
	assert.Equal(t, "i.rating >= '2'", Gte(itemRating, int64(2)))
	assert.Equal(t, "i.rating < '2'", Lt(itemRating, int64(2)))
	assert.Equal(t, "i.rating <= '2'", Lte(itemRating, int64(2)))
	assert.Equal(t, "i.name LIKE 'it%'", Matches(itemName, "it%"))
	assert.Equal(t, "(i.id = '1') OR (i.id = '2')", AnyOf(Eq(itemID, "1"), Eq(itemID, "2")))

	q := NewSelectQuery().Select(userSchema).Where(Eq(userName, "John Doe"))
	assert.Equal(t, "SELECT u.id, u.name FROM user u WHERE (u.name = 'John Doe')", q.String())
}
