package zorm

import (
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
)

// Constraint is a bitmask of column policies given to a field constructor.
// ConstraintNone = 0 is defined separately to avoid shifting iota off-by-one.
type Constraint int

const ConstraintNone Constraint = 0

const (
	ConstraintAutoGenerated Constraint = 1 << iota // 1: value produced by the database on INSERT
	ConstraintNullable                             // 2: NULL is a valid value
	ConstraintLazy                                 // 4: not fetched unless asked for
)

// Field describes a single column of a record schema.
//
// Every implementation embeds BaseField, which carries the column name, the
// flags and the position assigned by Schema.SetFields. Variants override the
// conversion and validation methods.
type Field interface {
	fmt.Stringer

	Name() string
	Schema() *Schema
	Index() int
	AutoFetched() bool
	AutoGenerated() bool
	NullValid() bool

	// FromSQLValue decodes a cursor cell. A nil cell decodes to nil.
	FromSQLValue(raw any) (any, error)
	// ToSQLValue returns the text form of v to be encoded as a SQL literal.
	// An invalid result stands for NULL.
	ToSQLValue(v any) sql.NullString
	// ToSQLExpr returns a raw SQL fragment used by UPDATE statements when
	// UsesSQLExprForUpdate reports true.
	ToSQLExpr(v any) (string, error)
	UsesSQLExprForUpdate() bool
	Validate(v any) error

	base() *BaseField
}

// BaseField is the common part of every Field. It implements the generic
// passthrough conversions; embed it to write a custom field type.
type BaseField struct {
	name        string
	constraints Constraint
	schema      *Schema
	index       int
	display     string
}

// NewBaseField returns a BaseField for the column name with the given
// constraints.
func NewBaseField(name string, constraints ...Constraint) BaseField {
	b := BaseField{name: name}
	for _, c := range constraints {
		b.constraints |= c
	}
	return b
}

func (b *BaseField) base() *BaseField { return b }

func (b *BaseField) Name() string { return b.name }

// SetName renames the column. It fails once the field belongs to a schema.
func (b *BaseField) SetName(name string) error {
	if err := b.checkDetached(); err != nil {
		return err
	}
	b.name = name
	return nil
}

func (b *BaseField) Schema() *Schema { return b.schema }

func (b *BaseField) Index() int { return b.index }

func (b *BaseField) AutoFetched() bool { return b.constraints&ConstraintLazy == 0 }

func (b *BaseField) AutoGenerated() bool { return b.constraints&ConstraintAutoGenerated != 0 }

func (b *BaseField) NullValid() bool { return b.constraints&ConstraintNullable != 0 }

func (b *BaseField) SetAutoFetched(v bool) error {
	return b.setConstraint(ConstraintLazy, !v)
}

func (b *BaseField) SetAutoGenerated(v bool) error {
	return b.setConstraint(ConstraintAutoGenerated, v)
}

func (b *BaseField) SetNullValid(v bool) error {
	return b.setConstraint(ConstraintNullable, v)
}

func (b *BaseField) setConstraint(c Constraint, on bool) error {
	if err := b.checkDetached(); err != nil {
		return err
	}
	if on {
		b.constraints |= c
	} else {
		b.constraints &^= c
	}
	return nil
}

func (b *BaseField) checkDetached() error {
	if b.schema != nil {
		return illegalState("field %s is attached to schema %s", b.display, b.schema.TableName())
	}
	return nil
}

func (b *BaseField) FromSQLValue(raw any) (any, error) { return raw, nil }

func (b *BaseField) ToSQLValue(v any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmt.Sprint(v), Valid: true}
}

func (b *BaseField) ToSQLExpr(v any) (string, error) {
	return "", errors.Errorf("field %s does not provide a SQL expression for updates", b)
}

func (b *BaseField) UsesSQLExprForUpdate() bool { return false }

// Validate rejects nil unless the field is nullable.
func (b *BaseField) Validate(v any) error {
	if v == nil && !b.NullValid() {
		return errors.New("null is not a valid value")
	}
	return nil
}

// String returns the qualified name used in emitted SQL, "alias.column", once
// the field is attached; before that it is the bare column name.
func (b *BaseField) String() string {
	if b.display == "" {
		return b.name
	}
	return b.display
}

func (b *BaseField) attach(s *Schema, index int) {
	b.schema = s
	b.index = index
	b.display = s.TableAlias() + "." + b.name
}

// IDField is a string typed field that can identify a record.
// StringField and StringIntField implement it.
type IDField interface {
	Field
	idField()
}
