package zorm

// Cursor iterates over the rows of a result.
// Value reads a cell of the current row; columns are zero based.
type Cursor interface {
	Columns() ([]string, error)
	Next() bool
	Value(col int) (any, error)
	Err() error
	Close() error
}

// Statement runs SQL text on a connection. It is created once per session
// and reused.
type Statement interface {
	ExecuteQuery(query string) (Cursor, error)
	// ExecuteUpdate returns the number of affected rows.
	ExecuteUpdate(query string) (int64, error)
	// ExecuteInsert returns the number of affected rows and, when keyColumns
	// are given, a cursor over the generated keys. The caller closes it.
	ExecuteInsert(query string, keyColumns ...string) (int64, Cursor, error)
	Close() error
}

// Conn is a database connection owned by one session.
type Conn interface {
	Statement() (Statement, error)
	AutoCommit() bool
	Commit() error
	Rollback() error
	Close() error
}

// ConnFactory opens connections for new sessions.
type ConnFactory interface {
	Open() (Conn, error)
}

// ConnFactoryFunc adapts a function to ConnFactory.
type ConnFactoryFunc func() (Conn, error)

func (f ConnFactoryFunc) Open() (Conn, error) { return f() }

// StaticCursor is a Cursor over rows held in memory.
type StaticCursor struct {
	cols   []string
	rows   [][]any
	pos    int
	closed bool
}

func NewStaticCursor(cols []string, rows [][]any) *StaticCursor {
	return &StaticCursor{cols: cols, rows: rows, pos: -1}
}

func (c *StaticCursor) Columns() ([]string, error) { return c.cols, nil }

func (c *StaticCursor) Next() bool {
	if c.closed || c.pos+1 >= len(c.rows) {
		c.pos = len(c.rows)
		return false
	}
	c.pos++
	return true
}

func (c *StaticCursor) Value(col int) (any, error) {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil, illegalState("cursor is not on a row")
	}
	row := c.rows[c.pos]
	if col < 0 || col >= len(row) {
		return nil, illegalState("column %d out of range", col)
	}
	return row[col], nil
}

func (c *StaticCursor) Err() error { return nil }

func (c *StaticCursor) Close() error {
	c.closed = true
	return nil
}

// Closed reports whether Close was called.
func (c *StaticCursor) Closed() bool { return c.closed }
