//go:build !wasm

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const model = `package store

type Book struct {
	ID    string ` + "`db:\"id,pk\"`" + `
	Title string ` + "`db:\"title\"`" + `
}
`

func run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := NewRootCommand(strings.NewReader(""), &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestGenCommand(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.go"), []byte(model), 0o644))

	_, _, err := run("gen", "--dir", dir)
	require.NoError(t, err)
	out, err := os.ReadFile(filepath.Join(dir, "model_zorm.go"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "type BookRecord struct")

	_, _, err = run("gen", "-d", t.TempDir())
	assert.ErrorContains(t, err, "no models found")
}

func TestGetCommand_Flags(t *testing.T) {
	_, _, err := run("get", "1")
	assert.ErrorContains(t, err, "--table is required")

	_, _, err = run("get", "1", "--table", "book")
	assert.ErrorContains(t, err, "--columns is required")

	_, _, err = run("get", "1", "--table", "book", "--columns", "id,title")
	assert.ErrorContains(t, err, "dsn is required")
}

func TestQueryCommand_NoDSN(t *testing.T) {
	_, _, err := run("query", "SELECT 1")
	assert.ErrorContains(t, err, "dsn is required")
}

func TestDynamicSchema(t *testing.T) {
	schema, err := dynamicSchema("book", "", "code", true, []string{"title", "code", "pages"})
	require.NoError(t, err)
	assert.Equal(t, "book", schema.TableAlias())
	assert.Equal(t, "code", schema.IDField().Name())
	require.Len(t, schema.Fields(), 3)
	assert.Equal(t, "title", schema.Field(1).Name())
	assert.Equal(t, "pages", schema.Field(2).Name())
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	err := writeTable(&buf, []any{"column", "value"}, [][]any{
		{"title", []byte("Dune")},
		{"subtitle", nil},
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "column")
	assert.Contains(t, out, "Dune")
	assert.Contains(t, out, "NULL")
}

func TestResultRows(t *testing.T) {
	header, rows := resultRows(map[string][]any{
		"name": {"a", "b"},
		"id":   {int64(1), int64(2)},
	})
	assert.Equal(t, []any{"id", "name"}, header)
	assert.Equal(t, [][]any{{int64(1), "a"}, {int64(2), "b"}}, rows)
}
