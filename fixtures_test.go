package zorm

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

type item struct{ Record }

func (i *item) Schema() *Schema { return itemSchema }
func (i *item) Base() *Record   { return &i.Record }

var (
	itemSchema   = NewSchema("item", "i", func() Persistent { return &item{} })
	itemID       = NewStringIntField("id", ConstraintAutoGenerated)
	itemName     = NewStringField("name")
	itemRating   = NewIntField("rating", ConstraintAutoGenerated)
	itemActive   = NewBoolField("active", ConstraintLazy)
	itemAuthorID = NewStringField("author_id", ConstraintNullable)

	userSchema = NewSchema("user", "u", nil)
	userID     = NewStringField("id")
	userName   = NewStringField("name")
)

func init() {
	itemSchema.MustSetFields(itemID, itemName, itemRating, itemActive, itemAuthorID)
	userSchema.MustSetFields(userID, userName)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSession returns a session over a fresh fakeDB holding the item and
// user rows.
func newTestSession(t *testing.T, opts ...Option) (*Session, *fakeDB) {
	t.Helper()
	db := newFakeDB()
	m := NewManager(db.factory(), append([]Option{WithLogger(discardLogger())}, opts...)...)
	s := m.NewSession()
	t.Cleanup(func() { s.Close() })
	return s, db
}

// bufferLogger logs at debug level into the returned buffer.
func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

type fakeTable struct {
	id       string
	defaults map[string]any
	rows     []map[string]any
}

type cannedResult struct {
	cols []string
	rows [][]any
}

// fakeDB is an in-memory Conn that understands the statements a session
// emits for single records and answers other queries from canned results.
// Cells are returned as text, the way a text protocol driver does.
type fakeDB struct {
	tables map[string]*fakeTable
	canned map[string]cannedResult
	failOn string

	queries []string
	cursors []*StaticCursor
	nextID  int64

	autoCommit bool
	opened     int
	commits    int
	rollbacks  int
	closed     bool
	stmtClosed bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		autoCommit: true,
		nextID:     2,
		canned:     map[string]cannedResult{},
		tables: map[string]*fakeTable{
			"item": {
				id:       "id",
				defaults: map[string]any{"rating": "0"},
				rows: []map[string]any{
					{"id": "1", "name": "item1", "rating": "2", "active": "1", "author_id": "john"},
					{"id": "2", "name": "item2", "rating": "3", "active": "0", "author_id": nil},
				},
			},
			"user": {
				id:   "id",
				rows: []map[string]any{{"id": "john", "name": "John Doe"}},
			},
		},
	}
}

func (db *fakeDB) factory() ConnFactory {
	return ConnFactoryFunc(func() (Conn, error) {
		db.opened++
		return db, nil
	})
}

func (db *fakeDB) setCanned(query string, cols []string, rows ...[]any) {
	db.canned[query] = cannedResult{cols: cols, rows: rows}
}

func (db *fakeDB) numQueries() int { return len(db.queries) }

func (db *fakeDB) lastQuery() string {
	if len(db.queries) == 0 {
		return ""
	}
	return db.queries[len(db.queries)-1]
}

func (db *fakeDB) Statement() (Statement, error) { return &fakeStmt{db: db}, nil }
func (db *fakeDB) AutoCommit() bool              { return db.autoCommit }

func (db *fakeDB) Commit() error {
	db.commits++
	return nil
}

func (db *fakeDB) Rollback() error {
	db.rollbacks++
	return nil
}

func (db *fakeDB) Close() error {
	db.closed = true
	return nil
}

var (
	selectByIDRe = regexp.MustCompile(`^SELECT (.+) FROM (\w+) WHERE (\w+) = '((?:[^'\\]|\\.)*)'$`)
	insertRe     = regexp.MustCompile(`^INSERT INTO (\w+) \((.*)\) VALUES \((.*)\)$`)
	updateRe     = regexp.MustCompile(`^UPDATE (\w+) SET (.+) WHERE (\w+) = '((?:[^'\\]|\\.)*)'$`)
	deleteRe     = regexp.MustCompile(`^DELETE FROM (\w+) WHERE (\w+) = '((?:[^'\\]|\\.)*)'$`)
	literalRe    = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|NULL`)
	assignRe     = regexp.MustCompile(`(\w+) = ('(?:[^'\\]|\\.)*'|NULL)`)
)

func unquote(lit string) any {
	if lit == Null {
		return nil
	}
	s := lit[1 : len(lit)-1]
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '0':
				b.WriteByte(0)
			case 'Z':
				b.WriteByte(0x1a)
			default:
				b.WriteByte(s[i])
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func (db *fakeDB) table(name string) (*fakeTable, error) {
	t, ok := db.tables[name]
	if !ok {
		return nil, errors.Errorf("no such table %s", name)
	}
	return t, nil
}

func (t *fakeTable) matching(col, id string) []map[string]any {
	var out []map[string]any
	for _, row := range t.rows {
		if row[col] != nil && fmt.Sprint(row[col]) == id {
			out = append(out, row)
		}
	}
	return out
}

func (db *fakeDB) record(query string) error {
	db.queries = append(db.queries, query)
	if db.failOn != "" && strings.Contains(query, db.failOn) {
		return errors.New("boom")
	}
	return nil
}

func (db *fakeDB) cursor(cols []string, rows [][]any) *StaticCursor {
	c := NewStaticCursor(cols, rows)
	db.cursors = append(db.cursors, c)
	return c
}

func (db *fakeDB) query(query string) (Cursor, error) {
	if err := db.record(query); err != nil {
		return nil, err
	}
	if res, ok := db.canned[query]; ok {
		return db.cursor(res.cols, res.rows), nil
	}
	m := selectByIDRe.FindStringSubmatch(query)
	if m == nil {
		return nil, errors.Errorf("unexpected query %s", query)
	}
	t, err := db.table(m[2])
	if err != nil {
		return nil, err
	}
	cols := strings.Split(m[1], ", ")
	var rows [][]any
	for _, row := range t.matching(m[3], unquote("'"+m[4]+"'").(string)) {
		out := make([]any, len(cols))
		for i, c := range cols {
			out[i] = row[c]
		}
		rows = append(rows, out)
	}
	return db.cursor(cols, rows), nil
}

func (db *fakeDB) exec(query string, keyColumns []string) (int64, Cursor, error) {
	if err := db.record(query); err != nil {
		return 0, nil, err
	}
	if m := insertRe.FindStringSubmatch(query); m != nil {
		t, err := db.table(m[1])
		if err != nil {
			return 0, nil, err
		}
		row := map[string]any{}
		for k, v := range t.defaults {
			row[k] = v
		}
		cols := strings.Split(m[2], ", ")
		vals := literalRe.FindAllString(m[3], -1)
		for i, c := range cols {
			row[c] = unquote(vals[i])
		}
		if _, ok := row[t.id]; !ok {
			db.nextID++
			row[t.id] = strconv.FormatInt(db.nextID, 10)
		}
		t.rows = append(t.rows, row)
		if len(keyColumns) == 0 {
			return 1, nil, nil
		}
		id, _ := strconv.ParseInt(row[t.id].(string), 10, 64)
		return 1, db.cursor(keyColumns[:1], [][]any{{id}}), nil
	}
	if m := updateRe.FindStringSubmatch(query); m != nil {
		t, err := db.table(m[1])
		if err != nil {
			return 0, nil, err
		}
		rows := t.matching(m[3], unquote("'"+m[4]+"'").(string))
		for _, a := range assignRe.FindAllStringSubmatch(m[2], -1) {
			for _, row := range rows {
				row[a[1]] = unquote(a[2])
			}
		}
		return int64(len(rows)), nil, nil
	}
	if m := deleteRe.FindStringSubmatch(query); m != nil {
		t, err := db.table(m[1])
		if err != nil {
			return 0, nil, err
		}
		id := unquote("'" + m[3] + "'").(string)
		var kept []map[string]any
		for _, row := range t.rows {
			if row[m[2]] == nil || fmt.Sprint(row[m[2]]) != id {
				kept = append(kept, row)
			}
		}
		n := len(t.rows) - len(kept)
		t.rows = kept
		return int64(n), nil, nil
	}
	return 0, nil, errors.Errorf("unexpected statement %s", query)
}

type fakeStmt struct {
	db *fakeDB
}

func (s *fakeStmt) ExecuteQuery(query string) (Cursor, error) { return s.db.query(query) }

func (s *fakeStmt) ExecuteUpdate(query string) (int64, error) {
	n, _, err := s.db.exec(query, nil)
	return n, err
}

func (s *fakeStmt) ExecuteInsert(query string, keyColumns ...string) (int64, Cursor, error) {
	return s.db.exec(query, keyColumns)
}

func (s *fakeStmt) Close() error {
	s.db.stmtClosed = true
	return nil
}
