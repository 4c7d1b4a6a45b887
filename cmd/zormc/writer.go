//go:build !wasm

package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
)

const nullValue = "NULL"

// writeTable renders rows under header as a text table.
func writeTable(w io.Writer, header []any, rows [][]any) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)

	// Don't uppercase the header values.
	t.Style().Format.Header = text.FormatDefault

	t.AppendHeader(table.Row(header))
	for _, row := range rows {
		out := make(table.Row, len(row))
		for i, v := range row {
			out[i] = cell(v)
		}
		t.AppendRow(out)
	}
	t.Render()
	return nil
}

// cell replaces nil with a null string and byte slices with their text;
// go-pretty prints neither usefully.
func cell(v any) any {
	switch x := v.(type) {
	case nil:
		return nullValue
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	return v
}

// resultRows turns the column oriented result of SelectQuery.Execute into
// rows, with columns sorted by name.
func resultRows(res map[string][]any) ([]any, [][]any) {
	names := make([]string, 0, len(res))
	for name := range res {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make([]any, len(names))
	n := 0
	for i, name := range names {
		header[i] = name
		if len(res[name]) > n {
			n = len(res[name])
		}
	}
	rows := make([][]any, n)
	for r := range rows {
		rows[r] = make([]any, len(names))
		for c, name := range names {
			if r < len(res[name]) {
				rows[r][c] = res[name][r]
			}
		}
	}
	return header, rows
}
