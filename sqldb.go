package zorm

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// GeneratedKeysMode selects how SQLConnFactory reads generated ids.
type GeneratedKeysMode string

const (
	// LastInsertID uses sql.Result.LastInsertId, as MySQL does.
	LastInsertID GeneratedKeysMode = "last_insert_id"
	// Returning appends a RETURNING clause to the INSERT, as PostgreSQL needs.
	Returning GeneratedKeysMode = "returning"
)

// SQLConnFactory adapts a *sql.DB pool. Each session gets a dedicated
// *sql.Conn; without AutoCommit all its statements run in one transaction
// started on first use and ended by Commit or Rollback.
type SQLConnFactory struct {
	DB            *sql.DB
	AutoCommit    bool
	QueryTimeout  time.Duration
	GeneratedKeys GeneratedKeysMode
}

func (f *SQLConnFactory) context() (context.Context, context.CancelFunc) {
	if f.QueryTimeout > 0 {
		return context.WithTimeout(context.Background(), f.QueryTimeout)
	}
	return context.WithCancel(context.Background())
}

func (f *SQLConnFactory) Open() (Conn, error) {
	ctx, cancel := f.context()
	defer cancel()
	conn, err := f.DB.Conn(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "get connection from pool")
	}
	return &sqlConn{factory: f, conn: conn}, nil
}

// Close closes the underlying pool.
func (f *SQLConnFactory) Close() error {
	return f.DB.Close()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqlConn struct {
	factory *SQLConnFactory
	conn    *sql.Conn
	tx      *sql.Tx
}

func (c *sqlConn) target() (execQuerier, error) {
	if c.factory.AutoCommit {
		return c.conn, nil
	}
	if c.tx == nil {
		tx, err := c.conn.BeginTx(context.Background(), nil)
		if err != nil {
			return nil, errors.Wrap(err, "begin transaction")
		}
		c.tx = tx
	}
	return c.tx, nil
}

func (c *sqlConn) Statement() (Statement, error) {
	return &sqlStatement{conn: c}, nil
}

func (c *sqlConn) AutoCommit() bool { return c.factory.AutoCommit }

func (c *sqlConn) Commit() error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return tx.Commit()
}

func (c *sqlConn) Rollback() error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	return tx.Rollback()
}

// Close rolls back a pending transaction and returns the connection to the
// pool.
func (c *sqlConn) Close() error {
	rerr := c.Rollback()
	if err := c.conn.Close(); err != nil {
		return err
	}
	return rerr
}

type sqlStatement struct {
	conn *sqlConn
}

func (s *sqlStatement) ExecuteQuery(query string) (Cursor, error) {
	target, err := s.conn.target()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.conn.factory.context()
	rows, err := target.QueryContext(ctx, query)
	if err != nil {
		cancel()
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		cancel()
		return nil, err
	}
	return &sqlCursor{rows: rows, cols: cols, cancel: cancel}, nil
}

func (s *sqlStatement) ExecuteUpdate(query string) (int64, error) {
	res, err := s.exec(query)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqlStatement) exec(query string) (sql.Result, error) {
	target, err := s.conn.target()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.conn.factory.context()
	defer cancel()
	return target.ExecContext(ctx, query)
}

func (s *sqlStatement) ExecuteInsert(query string, keyColumns ...string) (int64, Cursor, error) {
	if len(keyColumns) == 0 {
		n, err := s.ExecuteUpdate(query)
		return n, nil, err
	}
	if s.conn.factory.GeneratedKeys == Returning {
		return s.insertReturning(query, keyColumns)
	}
	res, err := s.exec(query)
	if err != nil {
		return 0, nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return n, nil, errors.Wrap(err, "read generated key")
	}
	return n, NewStaticCursor(keyColumns[:1], [][]any{{id}}), nil
}

func (s *sqlStatement) insertReturning(query string, keyColumns []string) (n int64, keys Cursor, err error) {
	cur, err := s.ExecuteQuery(query + " RETURNING " + strings.Join(keyColumns, ", "))
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if cerr := cur.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	var rows [][]any
	for cur.Next() {
		row := make([]any, len(keyColumns))
		for i := range row {
			if row[i], err = cur.Value(i); err != nil {
				return 0, nil, err
			}
		}
		rows = append(rows, row)
	}
	if err := cur.Err(); err != nil {
		return 0, nil, err
	}
	return int64(len(rows)), NewStaticCursor(keyColumns, rows), nil
}

func (s *sqlStatement) Close() error { return nil }

type sqlCursor struct {
	rows   *sql.Rows
	cols   []string
	row    []any
	err    error
	cancel context.CancelFunc
}

func (c *sqlCursor) Columns() ([]string, error) { return c.cols, nil }

func (c *sqlCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	c.row = make([]any, len(c.cols))
	dest := make([]any, len(c.cols))
	for i := range dest {
		dest[i] = &c.row[i]
	}
	if err := c.rows.Scan(dest...); err != nil {
		c.err = err
		return false
	}
	return true
}

func (c *sqlCursor) Value(col int) (any, error) {
	if c.row == nil {
		return nil, illegalState("cursor is not on a row")
	}
	if col < 0 || col >= len(c.row) {
		return nil, illegalState("column %d out of range", col)
	}
	return c.row[col], nil
}

func (c *sqlCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *sqlCursor) Close() error {
	defer c.cancel()
	return c.rows.Close()
}
