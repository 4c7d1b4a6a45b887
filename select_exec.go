package zorm

import (
	"github.com/pkg/errors"
)

// ExecuteUnique returns the first selected item of the first row, or nil
// when there are no rows. Extra rows are ignored.
func (q *SelectQuery) ExecuteUnique() (any, error) {
	res, err := q.execute(true, true)
	if err != nil {
		return nil, err
	}
	if res.rows == 0 {
		return nil, nil
	}
	return res.cols[0][0], nil
}

// ExecuteUniqueSelect returns the first selected item of every row.
func (q *SelectQuery) ExecuteUniqueSelect() ([]any, error) {
	res, err := q.execute(true, false)
	if err != nil {
		return nil, err
	}
	return res.cols[0], nil
}

// ExecuteUniqueRow returns the selected items of the first row keyed by
// table alias for schemas and by column label for free expressions. Values
// are nil when there are no rows.
func (q *SelectQuery) ExecuteUniqueRow() (map[string]any, error) {
	res, err := q.execute(false, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(res.names))
	for i, name := range res.names {
		if res.rows == 0 {
			out[name] = nil
			continue
		}
		out[name] = res.cols[i][0]
	}
	return out, nil
}

// Execute returns every selected item across all rows, keyed like
// ExecuteUniqueRow.
func (q *SelectQuery) Execute() (map[string][]any, error) {
	res, err := q.execute(false, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]any, len(res.names))
	for i, name := range res.names {
		out[name] = res.cols[i]
	}
	return out, nil
}

type queryResult struct {
	names []string
	cols  [][]any
	rows  int
}

func (g selectGroup) width() int {
	n := len(g.fields)
	if g.schema.HasID() {
		n++
	}
	return n
}

// execute streams the cursor and collects one column of values per
// selected item. firstItem keeps only the first item, firstRow stops after
// the first row.
func (q *SelectQuery) execute(firstItem, firstRow bool) (res *queryResult, err error) {
	if q.session == nil {
		return nil, illegalState("query has no session")
	}
	query := q.String()
	cur, err := q.session.executeQuery(query)
	if err != nil {
		return nil, err
	}
	defer closeCursor(cur, query, &err)

	labels, err := cur.Columns()
	if err != nil {
		return nil, sqlError(query, err)
	}
	needed := 0
	for _, g := range q.groups {
		needed += g.width()
	}
	if needed > len(labels) {
		return nil, errors.Wrapf(ErrInsufficientColumns, "query %q: expected at least %d columns, got %d", query, needed, len(labels))
	}

	res = &queryResult{}
	for _, g := range q.groups {
		res.names = append(res.names, g.alias)
	}
	res.names = append(res.names, labels[needed:]...)
	if len(res.names) == 0 {
		return nil, errors.Wrapf(ErrEmptySelect, "query %q", query)
	}
	if firstItem {
		res.names = res.names[:1]
	} else {
		seen := make(map[string]bool, len(res.names))
		for _, name := range res.names {
			if seen[name] {
				return nil, errors.Wrapf(ErrDuplicateLabel, "query %q: %s", query, name)
			}
			seen[name] = true
		}
	}

	res.cols = make([][]any, len(res.names))
	for i := range res.cols {
		res.cols[i] = []any{}
	}
	for cur.Next() {
		i, col := 0, 0
		for _, g := range q.groups {
			if i == len(res.cols) {
				break
			}
			p, err := q.session.GetAndFetchFromCursor(g.schema, g.fields, cur, col)
			if err != nil {
				return nil, errors.Wrapf(err, "query %q", query)
			}
			var v any
			if p != nil {
				v = p
			}
			res.cols[i] = append(res.cols[i], v)
			i++
			col += g.width()
		}
		for ; i < len(res.cols); i++ {
			v, err := cur.Value(col)
			if err != nil {
				return nil, sqlError(query, err)
			}
			res.cols[i] = append(res.cols[i], v)
			col++
		}
		res.rows++
		if firstRow {
			break
		}
	}
	if err := cur.Err(); err != nil {
		return nil, sqlError(query, err)
	}
	return res, nil
}
