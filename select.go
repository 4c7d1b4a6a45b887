package zorm

import (
	"math"
	"strconv"
	"strings"
)

// JoinKind selects the kind of a JOIN clause.
type JoinKind string

const (
	InnerJoin JoinKind = "INNER"
	LeftJoin  JoinKind = "LEFT"
	RightJoin JoinKind = "RIGHT"
)

// selectGroup is a schema in the SELECT list. It emits the id column, when
// the schema has one, followed by its fields, and materializes to a record.
type selectGroup struct {
	schema *Schema
	fields []Field
	alias  string
}

// SelectQuery builds and runs a SELECT statement.
//
//	q := s.SelectQuery().
//		Select(ItemSchema).
//		Where(Item.Active, zorm.Equals, 1).
//		OrderBy(zorm.Desc(Item.Rating)).
//		Take(10)
//	items, err := q.ExecuteUniqueSelect()
//
// Schemas added with Select are materialized as records of the session.
// Free expressions added with SelectExpr are returned as raw cells.
type SelectQuery struct {
	session    *Session
	noAutoFrom bool

	groups   []selectGroup
	sel      strings.Builder
	distinct bool
	from     strings.Builder
	where    Expression
	having   Expression
	groupBy  []any
	orderBy  []any
	skip     int64
	take     int64
	limited  bool
	extra    string
	custom   string
}

func NewSelectQuery() *SelectQuery {
	return &SelectQuery{}
}

func (q *SelectQuery) Session() *Session { return q.session }

func (q *SelectQuery) SetSession(s *Session) *SelectQuery {
	q.session = s
	return q
}

// AutoAddToFrom controls whether Select also adds the schema table to the
// FROM clause. It is on by default.
func (q *SelectQuery) AutoAddToFrom(v bool) *SelectQuery {
	q.noAutoFrom = !v
	return q
}

// Select adds the schema with its auto fetched fields.
func (q *SelectQuery) Select(schema *Schema) *SelectQuery {
	return q.addGroup(schema, schema.TableAlias(), nil)
}

// SelectFields adds the schema with the given fields. The id is always
// selected and is dropped from fields.
func (q *SelectQuery) SelectFields(schema *Schema, fields ...Field) *SelectQuery {
	return q.addGroup(schema, schema.TableAlias(), fields)
}

// SelectAs adds the schema under another table alias.
func (q *SelectQuery) SelectAs(schema *Schema, alias string) *SelectQuery {
	return q.addGroup(schema, alias, nil)
}

func (q *SelectQuery) SelectFieldsAs(schema *Schema, alias string, fields ...Field) *SelectQuery {
	return q.addGroup(schema, alias, fields)
}

func (q *SelectQuery) addGroup(schema *Schema, alias string, fields []Field) *SelectQuery {
	g := selectGroup{schema: schema, alias: alias}
	if len(fields) == 0 {
		g.fields = schema.AutoFetchedFields()
	} else {
		g.fields = withoutID(schema, fields)
	}
	q.groups = append(q.groups, g)
	if !q.noAutoFrom && q.custom == "" {
		if alias == schema.TableName() {
			q.FromExpr(alias)
		} else {
			q.FromExprAs(schema.TableName(), alias)
		}
	}
	return q
}

func withoutID(schema *Schema, fields []Field) []Field {
	id := schema.IDField()
	if id == nil {
		return fields
	}
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f != Field(id) {
			out = append(out, f)
		}
	}
	return out
}

// SelectExpr adds a free expression to the SELECT list. Its result is keyed
// by the column label the database reports.
func (q *SelectQuery) SelectExpr(expr any) *SelectQuery {
	q.selectSep()
	q.sel.WriteString(fragment(expr))
	return q
}

// SelectExprAs adds "expr alias" to the SELECT list.
func (q *SelectQuery) SelectExprAs(expr, alias any) *SelectQuery {
	q.selectSep()
	q.sel.WriteString(fragment(expr))
	q.sel.WriteByte(' ')
	q.sel.WriteString(fragment(alias))
	return q
}

func (q *SelectQuery) selectSep() {
	if q.sel.Len() != 0 {
		q.sel.WriteString(", ")
	}
}

func (q *SelectQuery) Distinct() *SelectQuery {
	q.distinct = true
	return q
}

func (q *SelectQuery) SetDistinct(v bool) *SelectQuery {
	q.distinct = v
	return q
}

// From adds the schema table with its alias to the FROM clause.
func (q *SelectQuery) From(schema *Schema) *SelectQuery {
	if schema.TableAlias() == schema.TableName() {
		return q.FromExpr(schema.TableName())
	}
	return q.FromExprAs(schema.TableName(), schema.TableAlias())
}

func (q *SelectQuery) FromAs(schema *Schema, alias string) *SelectQuery {
	return q.FromExprAs(schema.TableName(), alias)
}

func (q *SelectQuery) FromExpr(expr any) *SelectQuery {
	q.fromSep()
	q.from.WriteString(fragment(expr))
	return q
}

func (q *SelectQuery) FromExprAs(table, alias any) *SelectQuery {
	q.fromSep()
	q.from.WriteString(fragment(table))
	q.from.WriteByte(' ')
	q.from.WriteString(fragment(alias))
	return q
}

func (q *SelectQuery) fromSep() {
	if q.from.Len() != 0 {
		q.from.WriteString(", ")
	}
}

// Join appends " <kind> JOIN table [alias] ON (f1 = f2)" to the FROM clause.
// An empty alias is omitted.
func (q *SelectQuery) Join(kind JoinKind, table, alias string, f1, f2 any) *SelectQuery {
	q.from.WriteByte(' ')
	q.from.WriteString(string(kind))
	q.from.WriteString(" JOIN ")
	q.from.WriteString(table)
	if alias != "" {
		q.from.WriteByte(' ')
		q.from.WriteString(alias)
	}
	q.from.WriteString(" ON (")
	q.from.WriteString(fragment(f1))
	q.from.WriteString(" = ")
	q.from.WriteString(fragment(f2))
	q.from.WriteByte(')')
	return q
}

// JoinSchema joins the schema table under its alias.
func (q *SelectQuery) JoinSchema(kind JoinKind, schema *Schema, f1, f2 any) *SelectQuery {
	alias := schema.TableAlias()
	if alias == schema.TableName() {
		alias = ""
	}
	return q.Join(kind, schema.TableName(), alias, f1, f2)
}

func (q *SelectQuery) Where(fragments ...any) *SelectQuery {
	q.where.Expr(fragments...)
	return q
}

func (q *SelectQuery) WhereBetween(x, lo, hi any) *SelectQuery {
	q.where.Between(x, lo, hi)
	return q
}

func (q *SelectQuery) WhereIn(x any, values ...any) *SelectQuery {
	q.where.In(x, values...)
	return q
}

// GroupBy replaces the GROUP BY list.
func (q *SelectQuery) GroupBy(exprs ...any) *SelectQuery {
	q.groupBy = exprs
	return q
}

func (q *SelectQuery) Having(fragments ...any) *SelectQuery {
	q.having.Expr(fragments...)
	return q
}

func (q *SelectQuery) HavingBetween(x, lo, hi any) *SelectQuery {
	q.having.Between(x, lo, hi)
	return q
}

func (q *SelectQuery) HavingIn(x any, values ...any) *SelectQuery {
	q.having.In(x, values...)
	return q
}

// OrderBy replaces the ORDER BY list.
func (q *SelectQuery) OrderBy(exprs ...any) *SelectQuery {
	q.orderBy = exprs
	return q
}

func (q *SelectQuery) Skip(n int64) *SelectQuery {
	q.skip = n
	return q
}

// Take limits the number of rows. Without it the query is unlimited.
func (q *SelectQuery) Take(n int64) *SelectQuery {
	q.take = n
	q.limited = true
	return q
}

// Extra sets a fragment appended verbatim at the end of the query.
func (q *SelectQuery) Extra(s string) *SelectQuery {
	q.extra = s
	return q
}

// CustomQuery replaces the generated SQL. Schemas added with Select still
// describe how the leading columns of each row are materialized.
func (q *SelectQuery) CustomQuery(s string) *SelectQuery {
	q.custom = s
	return q
}

// Clear resets the query to its initial state. The session and the
// AutoAddToFrom setting are kept.
func (q *SelectQuery) Clear() *SelectQuery {
	q.ClearSelect().ClearFrom().ClearWhere().ClearHaving()
	q.distinct = false
	q.groupBy = nil
	q.orderBy = nil
	q.extra = ""
	q.custom = ""
	q.skip = 0
	q.take = 0
	q.limited = false
	return q
}

func (q *SelectQuery) ClearSelect() *SelectQuery {
	q.groups = nil
	q.sel.Reset()
	return q
}

func (q *SelectQuery) ClearFrom() *SelectQuery {
	q.from.Reset()
	return q
}

func (q *SelectQuery) ClearWhere() *SelectQuery {
	q.where.Clear()
	return q
}

func (q *SelectQuery) ClearHaving() *SelectQuery {
	q.having.Clear()
	return q
}

// WhereExpr gives direct access to the WHERE conditions.
func (q *SelectQuery) WhereExpr() *Expression { return &q.where }

func (q *SelectQuery) HavingExpr() *Expression { return &q.having }

// String returns the SQL text of the query.
func (q *SelectQuery) String() string {
	if q.custom != "" {
		return q.custom
	}
	var b strings.Builder
	b.Grow(256 + q.from.Len() + q.where.Len() + q.having.Len())
	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}

	n := 0
	col := func(alias, name string) {
		if n > 0 {
			b.WriteString(", ")
		}
		n++
		b.WriteString(alias)
		b.WriteByte('.')
		b.WriteString(name)
	}
	for _, g := range q.groups {
		if id := g.schema.IDField(); id != nil {
			col(g.alias, id.Name())
		}
		for _, f := range g.fields {
			col(g.alias, f.Name())
		}
	}
	if q.sel.Len() != 0 {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(q.sel.String())
	}

	b.WriteString(" FROM ")
	b.WriteString(q.from.String())
	if q.where.Len() != 0 {
		b.WriteString(" WHERE ")
		b.WriteString(q.where.String())
	}
	if len(q.groupBy) != 0 {
		b.WriteString(" GROUP BY ")
		writeList(&b, q.groupBy)
	}
	if q.having.Len() != 0 {
		b.WriteString(" HAVING ")
		b.WriteString(q.having.String())
	}
	if len(q.orderBy) != 0 {
		b.WriteString(" ORDER BY ")
		writeList(&b, q.orderBy)
	}
	switch {
	case q.skip == 0 && q.limited:
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.FormatInt(q.take, 10))
	case q.skip != 0:
		take := int64(math.MaxInt64)
		if q.limited {
			take = q.take
		}
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.FormatInt(q.skip, 10))
		b.WriteString(", ")
		b.WriteString(strconv.FormatInt(take, 10))
	}
	if q.extra != "" {
		b.WriteByte(' ')
		b.WriteString(q.extra)
	}
	return b.String()
}
