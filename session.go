package zorm

import (
	"log/slog"
	"sort"

	"github.com/pkg/errors"
)

// Session is a unit of work over one connection. It keeps an identity map
// with at most one record per (table, id), loads fields on demand and
// writes back modified fields on save.
//
// A session and its records must be used from a single goroutine.
type Session struct {
	manager *Manager
	logger  *slog.Logger
	id      int64

	conn   Conn
	stmt   Statement
	closed bool

	loaded map[string]Persistent

	autoFetchingFieldsOnRead bool
	numQueries               int
}

func newSession(m *Manager, conn Conn) *Session {
	return &Session{
		manager:                  m,
		logger:                   m.logger,
		conn:                     conn,
		autoFetchingFieldsOnRead: m.autoFetchingFieldsOnRead,
	}
}

// ID returns the session id, allocated on first use.
func (s *Session) ID() int64 {
	if s.id == 0 {
		s.id = nextSessionID()
	}
	return s.id
}

func (s *Session) AutoFetchingFieldsOnRead() bool { return s.autoFetchingFieldsOnRead }

// SetAutoFetchingFieldsOnRead controls whether reading a field that is not
// loaded fetches it from the database instead of failing.
func (s *Session) SetAutoFetchingFieldsOnRead(v bool) { s.autoFetchingFieldsOnRead = v }

func (s *Session) NumQueries() int { return s.numQueries }

func (s *Session) ClearNumQueries() { s.numQueries = 0 }

func (s *Session) IsClosed() bool { return s.closed }

func (s *Session) checkOpen() error {
	if s.closed {
		return illegalState("session %d is closed", s.ID())
	}
	return nil
}

// Conn returns the session connection, opening it on first use.
func (s *Session) Conn() (Conn, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if s.conn == nil {
		conn, err := s.manager.Conn()
		if err != nil {
			return nil, err
		}
		s.conn = conn
		s.logger.Debug("session connection opened", "session", s.ID())
	}
	return s.conn, nil
}

func (s *Session) statement() (Statement, error) {
	if s.stmt != nil {
		return s.stmt, s.checkOpen()
	}
	conn, err := s.Conn()
	if err != nil {
		return nil, err
	}
	stmt, err := conn.Statement()
	if err != nil {
		return nil, errors.Wrap(err, "create statement")
	}
	s.stmt = stmt
	return stmt, nil
}

// LogQuery counts the query and logs it at info level.
func (s *Session) LogQuery(query string) {
	s.numQueries++
	s.logger.Info("query", "session", s.ID(), "sql", query)
}

// SelectQuery returns a new query bound to the session.
func (s *Session) SelectQuery() *SelectQuery {
	return NewSelectQuery().SetSession(s)
}

// New returns a new record of the schema attached to the session.
func (s *Session) New(schema *Schema) (Persistent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	p := schema.New()
	recordOf(p).session = s
	return p, nil
}

// Attach binds p to its schema if needed and moves it to s. It is the way
// to adopt a record written as a literal.
func (s *Session) Attach(p Persistent) error {
	return recordOf(p).Attach(s)
}

// Get returns the record with the given id, loading the given fields, or the
// auto fetched fields when none are given, unless they are already loaded.
// It fails with ErrNotFound when the row does not exist.
func (s *Session) Get(schema *Schema, id string, fields ...Field) (Persistent, error) {
	if err := checkHasID(schema); err != nil {
		return nil, err
	}
	return s.getSingle(schema, id, true, fields)
}

// GetMany is Get for several ids. The result is parallel to ids.
func (s *Session) GetMany(schema *Schema, ids []string, fields ...Field) ([]Persistent, error) {
	if err := checkHasID(schema); err != nil {
		return nil, err
	}
	out := make([]Persistent, len(ids))
	for i, id := range ids {
		p, err := s.getSingle(schema, id, true, fields)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// GetShallow returns the cached record with the given id or a new one with
// only the id loaded. It never queries the database.
func (s *Session) GetShallow(schema *Schema, id string) (Persistent, error) {
	if err := checkHasID(schema); err != nil {
		return nil, err
	}
	return s.getSingle(schema, id, false, nil)
}

func (s *Session) GetShallowMany(schema *Schema, ids []string) ([]Persistent, error) {
	if err := checkHasID(schema); err != nil {
		return nil, err
	}
	out := make([]Persistent, len(ids))
	for i, id := range ids {
		p, err := s.getSingle(schema, id, false, nil)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func (s *Session) getSingle(schema *Schema, id string, fetch bool, fields []Field) (Persistent, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	p, cached := s.loaded[cacheKey(schema, id)]
	if !cached {
		idField := schema.IDField()
		if err := idField.Validate(id); err != nil {
			return nil, invalidValue(idField, id, err)
		}
		p = schema.New()
		r := recordOf(p)
		r.setFieldValueInternal(idField, id)
		r.persisted = true
	}
	r := recordOf(p)
	if fetch {
		if len(fields) == 0 {
			fields = schema.AutoFetchedFields()
		}
		if err := s.fetchFromDB(r, r.notInitialized(fields)); err != nil {
			return nil, err
		}
	}
	if !cached {
		if err := r.Attach(s); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// GetAndFetchFromCursor materializes one record from the current cursor
// row. For schemas with an id the column at firstCol holds the id and a NULL
// id yields a nil record; the following columns hold fields in order.
// Fields modified locally are not overwritten.
func (s *Session) GetAndFetchFromCursor(schema *Schema, fields []Field, cur Cursor, firstCol int) (Persistent, error) {
	col := firstCol
	var p Persistent
	if idField := schema.IDField(); idField == nil {
		p = schema.New()
	} else {
		raw, err := cur.Value(col)
		if err != nil {
			return nil, err
		}
		col++
		v, err := idField.FromSQLValue(raw)
		if err != nil {
			return nil, invalidSQLValue(idField, raw, err)
		}
		if v == nil {
			return nil, nil
		}
		id, ok := v.(string)
		if !ok {
			return nil, invalidSQLValue(idField, raw, errWrongType)
		}
		if p, err = s.GetShallow(schema, id); err != nil {
			return nil, err
		}
	}
	r := recordOf(p)
	for _, f := range fields {
		raw, err := cur.Value(col)
		if err != nil {
			return nil, err
		}
		col++
		if r.IsFieldModified(f) {
			continue
		}
		if err := setFromSQL(r, f, raw); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Fetch loads the given fields of p that are not loaded yet, or the auto
// fetched ones when no field is given. Loaded fields are never overwritten.
func (s *Session) Fetch(p Persistent, fields ...Field) error {
	r := recordOf(p)
	if err := s.checkOwned(r); err != nil {
		return err
	}
	if len(fields) == 0 {
		fields = r.schema.AutoFetchedFields()
	}
	for _, f := range fields {
		if err := r.checkField(f); err != nil {
			return err
		}
	}
	return s.fetchFromDB(r, r.notInitialized(fields))
}

func (s *Session) FetchField(p Persistent, f Field) error {
	return s.Fetch(p, f)
}

func (s *Session) checkOwned(r *Record) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if r.session != s {
		return illegalState("record %s is not attached to session %d", r, s.ID())
	}
	return r.checkNotNew()
}

// fetchFieldOnRead loads f for a read. An auto fetched field brings in all
// the missing auto fetched fields with it.
func (s *Session) fetchFieldOnRead(r *Record, f Field) error {
	if !s.autoFetchingFieldsOnRead {
		return illegalState("field %v of %s is not loaded and fetching on read is disabled", f, r)
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	if f.AutoFetched() {
		return s.fetchFromDB(r, r.notInitialized(r.schema.AutoFetchedFields()))
	}
	return s.fetchFromDB(r, []Field{f})
}

func (r *Record) notInitialized(fields []Field) []Field {
	var out []Field
	for _, f := range fields {
		if !r.IsFieldInitialized(f) {
			out = append(out, f)
		}
	}
	return out
}

func (s *Session) fetchFromDB(r *Record, fields []Field) (err error) {
	if len(fields) == 0 {
		return nil
	}
	query := selectByIDSQL(r.schema, r.ID(), fields)
	cur, err := s.executeQuery(query)
	if err != nil {
		return err
	}
	defer closeCursor(cur, query, &err)

	if !cur.Next() {
		if err := cur.Err(); err != nil {
			return sqlError(query, err)
		}
		return errors.Wrapf(ErrNotFound, "record %s", r)
	}
	for i, f := range fields {
		raw, err := cur.Value(i)
		if err != nil {
			return sqlError(query, err)
		}
		if err := setFromSQL(r, f, raw); err != nil {
			return errors.Wrapf(err, "read record %s", r)
		}
	}
	if cur.Next() {
		return errors.Wrapf(ErrPrimaryKeyViolation, "more than one row returned for record %s", r)
	}
	if err := cur.Err(); err != nil {
		return sqlError(query, err)
	}
	return nil
}

func (s *Session) executeQuery(query string) (Cursor, error) {
	stmt, err := s.statement()
	if err != nil {
		return nil, err
	}
	s.LogQuery(query)
	cur, err := stmt.ExecuteQuery(query)
	if err != nil {
		return nil, sqlError(query, err)
	}
	return cur, nil
}

func (s *Session) executeUpdate(query string) (int64, error) {
	stmt, err := s.statement()
	if err != nil {
		return 0, err
	}
	s.LogQuery(query)
	n, err := stmt.ExecuteUpdate(query)
	if err != nil {
		return 0, sqlError(query, err)
	}
	return n, nil
}

func closeCursor(cur Cursor, query string, err *error) {
	if cerr := cur.Close(); cerr != nil && *err == nil {
		*err = sqlError(query, cerr)
	}
}

func setFromSQL(r *Record, f Field, raw any) error {
	v, err := f.FromSQLValue(raw)
	if err != nil {
		return invalidSQLValue(f, raw, err)
	}
	if err := f.Validate(v); err != nil {
		return invalidValue(f, v, err)
	}
	r.setFieldValueInternal(f, v)
	return nil
}

// Save inserts a new record or updates the modified fields of an existing
// one. The record must be attached to the session.
func (s *Session) Save(p Persistent) error {
	r := recordOf(p)
	if err := s.checkOpen(); err != nil {
		return err
	}
	if r.session != s {
		return illegalState("record %s is not attached to session %d", r, s.ID())
	}
	if r.persisted {
		return s.saveExisting(r)
	}
	return s.saveNew(r)
}

func (s *Session) saveNew(r *Record) (err error) {
	schema := r.schema
	idField := schema.IDField()
	readID := idField != nil && idField.AutoGenerated() && !r.IsFieldInitialized(idField)

	for _, f := range schema.Fields() {
		if !f.AutoGenerated() && !r.IsFieldInitialized(f) {
			return illegalState("field %v of %s must be set before saving", f, r)
		}
	}

	var keyCols []string
	if readID {
		keyCols = []string{idField.Name()}
	}
	query := insertSQL(r)
	stmt, err := s.statement()
	if err != nil {
		return err
	}
	s.LogQuery(query)
	n, keys, err := stmt.ExecuteInsert(query, keyCols...)
	if keys != nil {
		defer closeCursor(keys, query, &err)
	}
	if err != nil {
		return sqlError(query, err)
	}
	if n != 1 {
		return sqlError(query, errors.Errorf("%d rows affected while saving %s", n, r))
	}
	if readID {
		if keys == nil || !keys.Next() {
			return sqlError(query, errors.Errorf("no generated key returned for %v", idField))
		}
		raw, err := keys.Value(0)
		if err != nil {
			return sqlError(query, err)
		}
		if err := setFromSQL(r, idField, raw); err != nil {
			return err
		}
	}

	// records without an id stay new
	if idField != nil {
		r.persisted = true
		r.SetModified(false)
		s.addToCache(r)
	}
	return nil
}

func (s *Session) saveExisting(r *Record) error {
	if !r.IsModified() {
		return nil
	}
	query, err := updateSQL(r)
	if err != nil {
		return err
	}
	n, err := s.executeUpdate(query)
	if err != nil {
		return err
	}
	switch {
	case n == 0:
		return errors.Wrapf(ErrNotFound, "update record %s", r)
	case n > 1:
		return errors.Wrapf(ErrPrimaryKeyViolation, "%d rows updated for record %s", n, r)
	}
	r.SetModified(false)
	return nil
}

// Delete removes the row with the given id. It returns false when no row
// matched. The cached record, if any, is detached.
func (s *Session) Delete(schema *Schema, id string) (bool, error) {
	if err := checkHasID(schema); err != nil {
		return false, err
	}
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	n, err := s.executeUpdate(deleteSQL(schema, id))
	if err != nil {
		return false, err
	}
	switch {
	case n == 0:
		return false, nil
	case n > 1:
		return false, errors.Wrapf(ErrPrimaryKeyViolation, "%d rows deleted from %s for id %s", n, schema.TableName(), id)
	}
	key := cacheKey(schema, id)
	if p, ok := s.loaded[key]; ok {
		recordOf(p).session = nil
		delete(s.loaded, key)
	}
	return true, nil
}

// DetachAll empties the identity map.
func (s *Session) DetachAll() {
	for _, p := range s.loaded {
		recordOf(p).session = nil
	}
	s.loaded = nil
}

// SaveAll saves every record of the identity map in key order.
func (s *Session) SaveAll() error {
	keys := make([]string, 0, len(s.loaded))
	for k := range s.loaded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.Save(s.loaded[k]); err != nil {
			return err
		}
	}
	return nil
}

// Commit commits the connection. It does nothing in auto-commit mode or
// when no connection was opened.
func (s *Session) Commit() error {
	if s.conn == nil || s.conn.AutoCommit() {
		return nil
	}
	s.logger.Debug("commit", "session", s.ID())
	if err := s.conn.Commit(); err != nil {
		return sqlError("COMMIT", err)
	}
	return nil
}

func (s *Session) Rollback() error {
	if s.conn == nil || s.conn.AutoCommit() {
		return nil
	}
	s.logger.Debug("rollback", "session", s.ID())
	if err := s.conn.Rollback(); err != nil {
		return sqlError("ROLLBACK", err)
	}
	return nil
}

func (s *Session) SaveAllAndCommit() error {
	if err := s.SaveAll(); err != nil {
		return err
	}
	return s.Commit()
}

// Close closes the statement and then the connection. Closing twice is a
// no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.stmt != nil {
		err = errors.Wrap(s.stmt.Close(), "close statement")
		s.stmt = nil
	}
	if s.conn != nil {
		if cerr := s.conn.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "close connection")
		}
		s.conn = nil
	}
	s.logger.Debug("session closed", "session", s.ID(), "queries", s.numQueries)
	return err
}

func (s *Session) addToCache(r *Record) {
	if s.loaded == nil {
		s.loaded = make(map[string]Persistent)
	}
	key := cacheKey(r.schema, r.ID())
	if old, ok := s.loaded[key]; ok && old != r.self {
		recordOf(old).session = nil
	}
	s.loaded[key] = r.self
}

func (s *Session) removeFromCache(r *Record) {
	if !r.schema.HasID() {
		return
	}
	key := cacheKey(r.schema, r.ID())
	if s.loaded[key] == r.self {
		delete(s.loaded, key)
	}
}

// Cached returns the record of the identity map for (schema, id).
func (s *Session) Cached(schema *Schema, id string) (Persistent, bool) {
	p, ok := s.loaded[cacheKey(schema, id)]
	return p, ok
}

func cacheKey(schema *Schema, id string) string {
	return schema.TableName() + ":" + id
}

func checkHasID(schema *Schema) error {
	if !schema.HasID() {
		return illegalState("schema %s has no id field", schema.TableName())
	}
	return nil
}
