package zorm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_SetFields(t *testing.T) {
	t.Run("adopts a string field named id", func(t *testing.T) {
		assert.Same(t, itemID, itemSchema.IDField())
		assert.True(t, itemSchema.HasID())
		assert.Equal(t, []Field{itemName, itemRating, itemAuthorID}, itemSchema.AutoFetchedFields())
		assert.Equal(t, []Field{itemID, itemRating}, itemSchema.AutoGeneratedFields())
		assert.True(t, itemSchema.Sealed())
		assert.Equal(t, 5, itemSchema.NumFields())
		assert.Equal(t, "i", itemSchema.String())
	})

	t.Run("alias defaults to the table name", func(t *testing.T) {
		s := NewSchema("thing", "", nil)
		assert.Equal(t, "thing", s.TableAlias())
	})

	t.Run("explicit id field", func(t *testing.T) {
		s := NewSchema("t", "t", nil)
		code := NewStringField("code")
		require.NoError(t, s.SetIDField(code))
		require.NoError(t, s.SetFields(NewStringField("name"), code))
		assert.Same(t, code, s.IDField())
		assert.Len(t, s.AutoFetchedFields(), 1)
	})

	t.Run("no id", func(t *testing.T) {
		s := NewSchema("log", "l", nil)
		require.NoError(t, s.SetFields(NewIntField("id"), NewStringField("msg")))
		assert.False(t, s.HasID(), "an int field named id is not adopted")
	})

	t.Run("more than 32 fields is rejected", func(t *testing.T) {
		s := NewSchema("wide", "w", nil)
		fields := make([]Field, MaxFields+1)
		for i := range fields {
			fields[i] = NewStringField(fmt.Sprintf("c%d", i))
		}
		assert.ErrorIs(t, s.SetFields(fields...), ErrIllegalState)

		s = NewSchema("wide", "w", nil)
		assert.NoError(t, s.SetFields(fields[:MaxFields]...))
	})

	t.Run("errors", func(t *testing.T) {
		assert.ErrorIs(t, NewSchema("", "", nil).SetFields(NewStringField("a")), ErrEmptyTable)
		assert.ErrorIs(t, NewSchema("", "", nil).SetFields(NewStringField("a")), ErrIllegalState)
		assert.ErrorIs(t, NewSchema("t", "", nil).SetFields(nil), ErrIllegalState)
		assert.ErrorIs(t, NewSchema("t", "", nil).SetFields(itemName), ErrIllegalState, "attached elsewhere")
		assert.ErrorIs(t, NewSchema("t", "", nil).SetFields(NewStringField("a"), NewStringField("a")), ErrIllegalState)

		s := NewSchema("t", "", nil)
		require.NoError(t, s.SetIDField(NewStringField("k")))
		assert.ErrorIs(t, s.SetFields(NewStringField("a")), ErrIllegalState, "id not among the fields")

		assert.ErrorIs(t, NewSchema("t", "", nil).SetFields(NewStringField("id", ConstraintNullable)), ErrIllegalState)

		assert.ErrorIs(t, itemSchema.SetFields(NewStringField("z")), ErrIllegalState, "sealed")
		assert.ErrorIs(t, itemSchema.SetIDField(NewStringField("z")), ErrIllegalState, "sealed")
	})

	t.Run("a failed call leaves the schema unchanged", func(t *testing.T) {
		s := NewSchema("t", "", nil)
		assert.ErrorIs(t, s.SetFields(NewStringField("id", ConstraintNullable)), ErrIllegalState)
		assert.False(t, s.HasID())
		assert.False(t, s.Sealed())

		require.NoError(t, s.SetFields(NewStringField("code")))
		assert.False(t, s.HasID())
		assert.Equal(t, 1, s.NumFields())
	})

	t.Run("must variants panic", func(t *testing.T) {
		assert.Panics(t, func() { itemSchema.MustSetFields(NewStringField("z")) })
		assert.Panics(t, func() { itemSchema.MustSetIDField(NewStringField("z")) })
	})
}

func TestSchema_FieldByName(t *testing.T) {
	f, ok := itemSchema.FieldByName("rating")
	require.True(t, ok)
	assert.Same(t, itemRating, f)

	_, ok = itemSchema.FieldByName("missing")
	assert.False(t, ok)
	assert.Same(t, itemActive, itemSchema.Field(3))
}

func TestSchema_New(t *testing.T) {
	p := itemSchema.New()
	it, ok := p.(*item)
	require.True(t, ok)
	assert.True(t, it.IsNew())
	assert.False(t, it.IsAttached())
	assert.Same(t, p, it.Persistent())

	d := userSchema.New()
	dr, ok := d.(*DynamicRecord)
	require.True(t, ok)
	assert.Same(t, userSchema, dr.Schema())
}
