package zorm

import (
	"strings"

	"github.com/pkg/errors"
)

// selectByIDSQL builds SELECT c1, c2 FROM t WHERE id = 'x'.
func selectByIDSQL(schema *Schema, id string, fields []Field) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name())
	}
	b.WriteString(" FROM ")
	b.WriteString(schema.TableName())
	writeIDCondition(&b, schema, id)
	return b.String()
}

// insertSQL builds INSERT INTO t (c1, c2) VALUES (v1, v2) from the modified
// fields of r.
func insertSQL(r *Record) string {
	fields := r.modifiedFields()
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(r.schema.TableName())
	b.WriteString(" (")
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name())
	}
	b.WriteString(") VALUES (")
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		writeSQL(&b, f.ToSQLValue(r.values[f.Index()]))
	}
	b.WriteByte(')')
	return b.String()
}

// updateSQL builds UPDATE t SET c1 = v1 WHERE id = 'x' from the modified
// fields of r.
func updateSQL(r *Record) (string, error) {
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(r.schema.TableName())
	b.WriteString(" SET ")
	for i, f := range r.modifiedFields() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name())
		b.WriteString(" = ")
		v := r.values[f.Index()]
		if f.UsesSQLExprForUpdate() {
			expr, err := f.ToSQLExpr(v)
			if err != nil {
				return "", errors.Wrapf(err, "update %s", r)
			}
			b.WriteString(expr)
			continue
		}
		writeSQL(&b, f.ToSQLValue(v))
	}
	writeIDCondition(&b, r.schema, r.ID())
	return b.String(), nil
}

// deleteSQL builds DELETE FROM t WHERE id = 'x'.
func deleteSQL(schema *Schema, id string) string {
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(schema.TableName())
	writeIDCondition(&b, schema, id)
	return b.String()
}

func writeIDCondition(b *strings.Builder, schema *Schema, id string) {
	idField := schema.IDField()
	b.WriteString(" WHERE ")
	b.WriteString(idField.Name())
	b.WriteString(" = ")
	writeEncoded(b, id)
}

func (r *Record) modifiedFields() []Field {
	var out []Field
	for _, f := range r.schema.Fields() {
		if r.IsFieldModified(f) {
			out = append(out, f)
		}
	}
	return out
}
