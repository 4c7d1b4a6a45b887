package zorm

import (
	"database/sql"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

var errWrongType = errors.New("unexpected value type")

// StringField stores string values. A text cell decodes to its string form.
type StringField struct {
	BaseField
}

func NewStringField(name string, constraints ...Constraint) *StringField {
	return &StringField{BaseField: NewBaseField(name, constraints...)}
}

func (f *StringField) idField() {}

func (f *StringField) FromSQLValue(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	}
	if n, ok := asInt64(raw); ok {
		return strconv.FormatInt(n, 10), nil
	}
	return nil, errors.Wrapf(errWrongType, "%T", raw)
}

func (f *StringField) Validate(v any) error {
	if v == nil {
		return f.BaseField.Validate(v)
	}
	if _, ok := v.(string); !ok {
		return errors.Wrapf(errWrongType, "%T", v)
	}
	return nil
}

// Get returns the value or the empty string when it is NULL.
func (f *StringField) Get(p Persistent) (string, error) {
	v, err := recordOf(p).GetFieldValue(f)
	if err != nil || v == nil {
		return "", err
	}
	return v.(string), nil
}

func (f *StringField) GetNull(p Persistent) (sql.NullString, error) {
	v, err := recordOf(p).GetFieldValue(f)
	if err != nil || v == nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: v.(string), Valid: true}, nil
}

func (f *StringField) Set(p Persistent, v string) error {
	return recordOf(p).SetFieldValue(f, v)
}

func (f *StringField) SetNull(p Persistent) error {
	return recordOf(p).SetFieldValue(f, nil)
}

// IntField stores int64 values.
type IntField struct {
	BaseField
}

func NewIntField(name string, constraints ...Constraint) *IntField {
	return &IntField{BaseField: NewBaseField(name, constraints...)}
}

func (f *IntField) FromSQLValue(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	if n, ok := asInt64(raw); ok {
		return n, nil
	}
	return nil, errors.Wrapf(errWrongType, "%T", raw)
}

func (f *IntField) ToSQLValue(v any) sql.NullString {
	n, ok := v.(int64)
	if !ok {
		return f.BaseField.ToSQLValue(v)
	}
	return sql.NullString{String: strconv.FormatInt(n, 10), Valid: true}
}

func (f *IntField) Validate(v any) error {
	if v == nil {
		return f.BaseField.Validate(v)
	}
	if _, ok := v.(int64); !ok {
		return errors.Wrapf(errWrongType, "%T", v)
	}
	return nil
}

// Get returns the value or 0 when it is NULL.
func (f *IntField) Get(p Persistent) (int64, error) {
	v, err := recordOf(p).GetFieldValue(f)
	if err != nil || v == nil {
		return 0, err
	}
	return v.(int64), nil
}

func (f *IntField) GetNull(p Persistent) (sql.NullInt64, error) {
	v, err := recordOf(p).GetFieldValue(f)
	if err != nil || v == nil {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: v.(int64), Valid: true}, nil
}

func (f *IntField) Set(p Persistent, v int64) error {
	return recordOf(p).SetFieldValue(f, v)
}

func (f *IntField) SetNull(p Persistent) error {
	return recordOf(p).SetFieldValue(f, nil)
}

// StringIntField is an integer column kept as its base 10 text. It is the
// usual choice for numeric ids.
type StringIntField struct {
	BaseField
}

func NewStringIntField(name string, constraints ...Constraint) *StringIntField {
	return &StringIntField{BaseField: NewBaseField(name, constraints...)}
}

func (f *StringIntField) idField() {}

func (f *StringIntField) FromSQLValue(raw any) (any, error) {
	var s string
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		n, ok := asInt64(raw)
		if !ok {
			return nil, errors.Wrapf(errWrongType, "%T", raw)
		}
		return strconv.FormatInt(n, 10), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return strconv.FormatInt(n, 10), nil
}

// Validate accepts only the canonical base 10 form, so "01" and "+1" can
// not name the same row as "1".
func (f *StringIntField) Validate(v any) error {
	if v == nil {
		return f.BaseField.Validate(v)
	}
	s, ok := v.(string)
	if !ok {
		return errors.Wrapf(errWrongType, "%T", v)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	if strconv.FormatInt(n, 10) != s {
		return errors.Errorf("%q is not a canonical integer", s)
	}
	return nil
}

func (f *StringIntField) Get(p Persistent) (string, error) {
	v, err := recordOf(p).GetFieldValue(f)
	if err != nil || v == nil {
		return "", err
	}
	return v.(string), nil
}

func (f *StringIntField) GetNull(p Persistent) (sql.NullString, error) {
	v, err := recordOf(p).GetFieldValue(f)
	if err != nil || v == nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: v.(string), Valid: true}, nil
}

func (f *StringIntField) Set(p Persistent, v string) error {
	return recordOf(p).SetFieldValue(f, v)
}

func (f *StringIntField) SetNull(p Persistent) error {
	return recordOf(p).SetFieldValue(f, nil)
}

// BoolField stores bool values, written to the database as 1 or 0.
type BoolField struct {
	BaseField
}

func NewBoolField(name string, constraints ...Constraint) *BoolField {
	return &BoolField{BaseField: NewBaseField(name, constraints...)}
}

func (f *BoolField) FromSQLValue(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case []byte:
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	}
	if n, ok := asInt64(raw); ok {
		return n != 0, nil
	}
	return nil, errors.Wrapf(errWrongType, "%T", raw)
}

func (f *BoolField) ToSQLValue(v any) sql.NullString {
	b, ok := v.(bool)
	if !ok {
		return f.BaseField.ToSQLValue(v)
	}
	if b {
		return sql.NullString{String: "1", Valid: true}
	}
	return sql.NullString{String: "0", Valid: true}
}

func (f *BoolField) Validate(v any) error {
	if v == nil {
		return f.BaseField.Validate(v)
	}
	if _, ok := v.(bool); !ok {
		return errors.Wrapf(errWrongType, "%T", v)
	}
	return nil
}

func (f *BoolField) Get(p Persistent) (bool, error) {
	v, err := recordOf(p).GetFieldValue(f)
	if err != nil || v == nil {
		return false, err
	}
	return v.(bool), nil
}

func (f *BoolField) GetNull(p Persistent) (sql.NullBool, error) {
	v, err := recordOf(p).GetFieldValue(f)
	if err != nil || v == nil {
		return sql.NullBool{}, err
	}
	return sql.NullBool{Bool: v.(bool), Valid: true}, nil
}

func (f *BoolField) Set(p Persistent, v bool) error {
	return recordOf(p).SetFieldValue(f, v)
}

func (f *BoolField) SetNull(p Persistent) error {
	return recordOf(p).SetFieldValue(f, nil)
}

// GenericField passes cells through unchanged as long as they hold a T.
// GenericField[any] accepts whatever the driver returns.
type GenericField[T any] struct {
	BaseField
}

func NewGenericField[T any](name string, constraints ...Constraint) *GenericField[T] {
	return &GenericField[T]{BaseField: NewBaseField(name, constraints...)}
}

func (f *GenericField[T]) FromSQLValue(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	v, ok := raw.(T)
	if !ok {
		return nil, errors.Wrapf(errWrongType, "%T", raw)
	}
	return v, nil
}

func (f *GenericField[T]) Validate(v any) error {
	if v == nil {
		return f.BaseField.Validate(v)
	}
	if _, ok := v.(T); !ok {
		return errors.Wrapf(errWrongType, "%T", v)
	}
	return nil
}

// Get returns the zero T when the value is NULL.
func (f *GenericField[T]) Get(p Persistent) (T, error) {
	var zero T
	v, err := recordOf(p).GetFieldValue(f)
	if err != nil || v == nil {
		return zero, err
	}
	return v.(T), nil
}

func (f *GenericField[T]) GetNull(p Persistent) (sql.Null[T], error) {
	v, err := recordOf(p).GetFieldValue(f)
	if err != nil || v == nil {
		return sql.Null[T]{}, err
	}
	return sql.Null[T]{V: v.(T), Valid: true}, nil
}

func (f *GenericField[T]) Set(p Persistent, v T) error {
	return recordOf(p).SetFieldValue(f, v)
}

func (f *GenericField[T]) SetNull(p Persistent) error {
	return recordOf(p).SetFieldValue(f, nil)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
