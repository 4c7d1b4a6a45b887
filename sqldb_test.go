package zorm

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubDriver answers queries from a fixed table of results and records
// every statement it runs.
type stubDriver struct {
	mu         sync.Mutex
	results    map[string]*stubRows
	statements []string
	lastID     int64
	begun      int
	committed  int
	rolledBack int
}

func newStubDB(t *testing.T) (*sql.DB, *stubDriver) {
	d := &stubDriver{results: map[string]*stubRows{}, lastID: 6}
	db := sql.OpenDB(stubConnector{d: d})
	t.Cleanup(func() { db.Close() })
	return db, d
}

func (d *stubDriver) result(query string, cols []string, rows ...[]driver.Value) {
	d.results[query] = &stubRows{cols: cols, rows: rows}
}

func (d *stubDriver) record(query string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statements = append(d.statements, query)
}

func (d *stubDriver) last() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.statements[len(d.statements)-1]
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return &stubConn{d: d}, nil }

type stubConnector struct{ d *stubDriver }

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return &stubConn{d: c.d}, nil }
func (c stubConnector) Driver() driver.Driver                        { return c.d }

type stubConn struct{ d *stubDriver }

func (c *stubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements are not supported")
}

func (c *stubConn) Close() error { return nil }

func (c *stubConn) Begin() (driver.Tx, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.begun++
	return stubTx{d: c.d}, nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.d.record(query)
	switch {
	case strings.HasPrefix(query, "INSERT"):
		c.d.mu.Lock()
		defer c.d.mu.Unlock()
		c.d.lastID++
		return stubResult{id: c.d.lastID, n: 1}, nil
	case strings.HasPrefix(query, "FAIL"):
		return nil, errors.New("syntax error")
	}
	return stubResult{n: 1}, nil
}

func (c *stubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.d.record(query)
	res, ok := c.d.results[query]
	if !ok {
		return nil, errors.Errorf("unexpected query %s", query)
	}
	return &stubRows{cols: res.cols, rows: res.rows}, nil
}

type stubTx struct{ d *stubDriver }

func (tx stubTx) Commit() error {
	tx.d.mu.Lock()
	defer tx.d.mu.Unlock()
	tx.d.committed++
	return nil
}

func (tx stubTx) Rollback() error {
	tx.d.mu.Lock()
	defer tx.d.mu.Unlock()
	tx.d.rolledBack++
	return nil
}

type stubResult struct{ id, n int64 }

func (r stubResult) LastInsertId() (int64, error) { return r.id, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.n, nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	pos  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

func newSQLSession(t *testing.T, f *SQLConnFactory) *Session {
	s := NewManager(f, WithLogger(discardLogger())).NewSession()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLConnFactory_Get(t *testing.T) {
	db, d := newStubDB(t)
	d.result("SELECT name, rating, author_id FROM item WHERE id = '1'",
		[]string{"name", "rating", "author_id"},
		[]driver.Value{[]byte("item1"), int64(2), nil},
	)
	s := newSQLSession(t, &SQLConnFactory{DB: db, AutoCommit: true})

	p, err := s.Get(itemSchema, "1")
	require.NoError(t, err)
	name, err := itemName.Get(p)
	require.NoError(t, err)
	assert.Equal(t, "item1", name)
	rating, err := itemRating.Get(p)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rating)
	author, err := itemAuthorID.GetNull(p)
	require.NoError(t, err)
	assert.False(t, author.Valid)

	_, err = s.Get(itemSchema, "2")
	assert.ErrorIs(t, err, ErrSQL)
	assert.Zero(t, d.begun)
}

func TestSQLConnFactory_Query(t *testing.T) {
	db, d := newStubDB(t)
	d.result(selectItems,
		[]string{"id", "name", "rating", "author_id"},
		[]driver.Value{int64(1), []byte("item1"), int64(2), []byte("john")},
		[]driver.Value{int64(2), []byte("item2"), int64(3), nil},
	)
	s := newSQLSession(t, &SQLConnFactory{DB: db, AutoCommit: true})

	rows, err := s.SelectQuery().Select(itemSchema).ExecuteUniqueSelect()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[1].(*item).ID())
}

func newItem(t *testing.T, s *Session) Persistent {
	p, err := s.New(itemSchema)
	require.NoError(t, err)
	require.NoError(t, itemName.Set(p, "n"))
	require.NoError(t, itemActive.Set(p, true))
	require.NoError(t, itemAuthorID.SetNull(p))
	return p
}

func TestSQLConnFactory_GeneratedKeys(t *testing.T) {
	const insert = "INSERT INTO item (name, active, author_id) VALUES ('n', '1', NULL)"

	t.Run("last insert id", func(t *testing.T) {
		db, d := newStubDB(t)
		s := newSQLSession(t, &SQLConnFactory{DB: db, AutoCommit: true, GeneratedKeys: LastInsertID})
		p := newItem(t, s)
		require.NoError(t, s.Save(p))
		assert.Equal(t, insert, d.last())
		assert.Equal(t, "7", p.Base().ID())
	})

	t.Run("returning", func(t *testing.T) {
		db, d := newStubDB(t)
		d.result(insert+" RETURNING id", []string{"id"}, []driver.Value{int64(11)})
		s := newSQLSession(t, &SQLConnFactory{DB: db, AutoCommit: true, GeneratedKeys: Returning})
		p := newItem(t, s)
		require.NoError(t, s.Save(p))
		assert.Equal(t, insert+" RETURNING id", d.last())
		assert.Equal(t, "11", p.Base().ID())
	})

	t.Run("returning without rows", func(t *testing.T) {
		db, d := newStubDB(t)
		d.result(insert+" RETURNING id", []string{"id"})
		s := newSQLSession(t, &SQLConnFactory{DB: db, AutoCommit: true, GeneratedKeys: Returning})
		assert.ErrorIs(t, s.Save(newItem(t, s)), ErrSQL)
	})
}

func TestSQLConnFactory_Transactions(t *testing.T) {
	db, d := newStubDB(t)
	f := &SQLConnFactory{DB: db}
	s := newSQLSession(t, f)

	p, err := s.GetShallow(itemSchema, "1")
	require.NoError(t, err)
	require.NoError(t, itemName.Set(p, "x"))
	require.NoError(t, s.SaveAllAndCommit())
	assert.Equal(t, "UPDATE item SET name = 'x' WHERE id = '1'", d.last())
	assert.Equal(t, 1, d.begun)
	assert.Equal(t, 1, d.committed)

	require.NoError(t, itemName.Set(p, "y"))
	require.NoError(t, s.Save(p))
	assert.Equal(t, 2, d.begun, "a new transaction starts after commit")
	require.NoError(t, s.Close())
	assert.Equal(t, 1, d.rolledBack, "close rolls back the pending transaction")
}

func TestSQLConnFactory_ExecError(t *testing.T) {
	db, _ := newStubDB(t)
	conn, err := (&SQLConnFactory{DB: db, AutoCommit: true}).Open()
	require.NoError(t, err)
	defer conn.Close()

	stmt, err := conn.Statement()
	require.NoError(t, err)
	_, err = stmt.ExecuteUpdate("FAIL")
	assert.ErrorContains(t, err, "syntax error")

	n, keys, err := stmt.ExecuteInsert("INSERT INTO log (msg) VALUES ('x')")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Nil(t, keys)
}
