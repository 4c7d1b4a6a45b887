package zorm

import (
	"github.com/pkg/errors"
)

// MaxFields is the maximum number of fields of a schema. Record state is
// tracked with one bit per field in a uint32.
const MaxFields = 32

// Schema is the static description of a table: its name and alias, the
// ordered field descriptors, the optional id field and the record factory.
type Schema struct {
	table   string
	alias   string
	factory func() Persistent

	fields        []Field
	id            IDField
	autoFetched   []Field
	autoGenerated []Field
	sealed        bool
}

// NewSchema declares a table. An empty alias defaults to the table name. A
// nil factory makes the schema produce *DynamicRecord values.
func NewSchema(table, alias string, factory func() Persistent) *Schema {
	if alias == "" {
		alias = table
	}
	s := &Schema{table: table, alias: alias, factory: factory}
	if s.factory == nil {
		s.factory = func() Persistent { return &DynamicRecord{schema: s} }
	}
	return s
}

func (s *Schema) TableName() string { return s.table }

func (s *Schema) TableAlias() string { return s.alias }

// String returns the table alias so a schema can be used directly as a
// query fragment.
func (s *Schema) String() string { return s.alias }

// SetIDField sets the id field explicitly. It must be called before
// SetFields and f must be passed to SetFields as well.
func (s *Schema) SetIDField(f IDField) error {
	if s.sealed {
		return illegalState("schema %s is sealed", s.table)
	}
	s.id = f
	return nil
}

func (s *Schema) MustSetIDField(f IDField) {
	if err := s.SetIDField(f); err != nil {
		panic(err)
	}
}

// SetFields registers the field descriptors in declaration order and seals
// the schema. It can be called only once.
//
// When no id field was set, a StringField or StringIntField named exactly
// "id" is adopted as the id. The id field can not be nullable.
func (s *Schema) SetFields(fields ...Field) error {
	if s.sealed {
		return illegalState("schema %s is sealed", s.table)
	}
	if s.table == "" {
		return errors.Wrap(ErrEmptyTable, "set fields")
	}
	if len(fields) > MaxFields {
		return illegalState("schema %s has %d fields, the maximum is %d", s.table, len(fields), MaxFields)
	}
	seen := make(map[string]bool, len(fields))
	id := s.id
	idFound := false
	for _, f := range fields {
		if f == nil {
			return illegalState("schema %s: nil field", s.table)
		}
		if f.Schema() != nil {
			return illegalState("field %s already belongs to schema %s", f, f.Schema().TableName())
		}
		if seen[f.Name()] {
			return illegalState("schema %s: duplicate field %s", s.table, f.Name())
		}
		seen[f.Name()] = true
		if id != nil && Field(id) == f {
			idFound = true
		}
		if cand, ok := f.(IDField); ok && id == nil && f.Name() == "id" {
			id = cand
			idFound = true
		}
	}
	if id != nil {
		if !idFound {
			return illegalState("schema %s: id field %s is not among the fields", s.table, id.Name())
		}
		if id.NullValid() {
			return illegalState("schema %s: id field %s can not be nullable", s.table, id.Name())
		}
	}

	s.id = id
	s.fields = fields
	for i, f := range fields {
		f.base().attach(s, i)
		if f.AutoFetched() && Field(s.id) != f {
			s.autoFetched = append(s.autoFetched, f)
		}
		if f.AutoGenerated() {
			s.autoGenerated = append(s.autoGenerated, f)
		}
	}
	s.sealed = true
	return nil
}

// MustSetFields is SetFields for package level declarations.
func (s *Schema) MustSetFields(fields ...Field) {
	if err := s.SetFields(fields...); err != nil {
		panic(err)
	}
}

func (s *Schema) Sealed() bool { return s.sealed }

func (s *Schema) Fields() []Field { return s.fields }

func (s *Schema) Field(i int) Field { return s.fields[i] }

func (s *Schema) NumFields() int { return len(s.fields) }

// IDField returns nil for schemas without an id.
func (s *Schema) IDField() IDField { return s.id }

func (s *Schema) HasID() bool { return s.id != nil }

// AutoFetchedFields returns the fields loaded by default, without the id.
func (s *Schema) AutoFetchedFields() []Field { return s.autoFetched }

func (s *Schema) AutoGeneratedFields() []Field { return s.autoGenerated }

func (s *Schema) FieldByName(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

// New returns a fresh unattached record.
func (s *Schema) New() Persistent {
	p := s.factory()
	recordOf(p)
	return p
}

func (s *Schema) owns(f Field) bool {
	return f != nil && f.Schema() == s
}

// DynamicRecord is the record type of schemas declared without a factory.
type DynamicRecord struct {
	Record
	schema *Schema
}

func (r *DynamicRecord) Schema() *Schema { return r.schema }

func (r *DynamicRecord) Base() *Record { return &r.Record }
