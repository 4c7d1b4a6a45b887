package zorm

// Persistent is implemented by every record type. User types embed Record
// and return their schema:
//
//	type Item struct{ zorm.Record }
//
//	func (i *Item) Schema() *zorm.Schema { return ItemSchema }
//	func (i *Item) Base() *zorm.Record   { return &i.Record }
type Persistent interface {
	Schema() *Schema
	Base() *Record
}

// Record holds the column values of one row together with the state the
// session needs: which fields are loaded, which were changed since the
// last save, whether the row exists in the database and the owning session.
//
// Records are created with Schema.New or Session.New, or loaded by a
// session, which bind the embedded Record to its user type. A record
// written as a literal is bound by Session.Attach or by any field accessor;
// until then its own methods fail with ErrIllegalState.
type Record struct {
	schema *Schema
	self   Persistent

	values      []any
	initialized uint32
	modified    uint32
	persisted   bool

	session *Session
}

// recordOf returns the Record embedded in p, binding it to p on first use.
func recordOf(p Persistent) *Record {
	r := p.Base()
	if r.self == nil {
		r.self = p
		r.schema = p.Schema()
		r.values = make([]any, r.schema.NumFields())
	}
	return r
}

func bit(f Field) uint32 { return 1 << uint(f.Index()) }

func (r *Record) checkBound() error {
	if r.self == nil {
		return illegalState("record not bound; create it with Schema.New or Session.New, or attach it with Session.Attach")
	}
	return nil
}

func (r *Record) checkField(f Field) error {
	if err := r.checkBound(); err != nil {
		return err
	}
	if !r.schema.owns(f) {
		return illegalState("field %v does not belong to schema %s", f, r.schema.TableName())
	}
	return nil
}

func (r *Record) isID(f Field) bool {
	id := r.schema.IDField()
	return id != nil && Field(id) == f
}

// Persistent returns the user record embedding r.
func (r *Record) Persistent() Persistent { return r.self }

// GetFieldValue returns the value of f. A field that is not loaded yet is
// fetched from the database when the record is attached, not new and the
// session reads fields on demand; otherwise the call fails.
func (r *Record) GetFieldValue(f Field) (any, error) {
	if err := r.checkField(f); err != nil {
		return nil, err
	}
	if !r.IsFieldInitialized(f) {
		if err := r.checkAttached(); err != nil {
			return nil, err
		}
		if err := r.checkNotNew(); err != nil {
			return nil, err
		}
		if err := r.session.fetchFieldOnRead(r, f); err != nil {
			return nil, err
		}
	}
	return r.values[f.Index()], nil
}

// SetFieldValue validates v and stores it as a modified value. The id of a
// record that exists in the database can not be changed.
func (r *Record) SetFieldValue(f Field, v any) error {
	if err := r.checkField(f); err != nil {
		return err
	}
	if r.persisted && r.isID(f) {
		return illegalState("id field %v of %s can not be modified", f, r)
	}
	if err := f.Validate(v); err != nil {
		return invalidValue(f, v, err)
	}
	r.setFieldValueInternal(f, v)
	r.modified |= bit(f)
	return nil
}

func (r *Record) setFieldValueInternal(f Field, v any) {
	r.values[f.Index()] = v
	r.initialized |= bit(f)
}

// ClearFieldValue unloads f. The id of a record that exists in the database
// can not be cleared.
func (r *Record) ClearFieldValue(f Field) error {
	if err := r.checkField(f); err != nil {
		return err
	}
	if r.persisted && r.isID(f) {
		return illegalState("id field %v of %s can not be cleared", f, r)
	}
	r.clear(f)
	return nil
}

// ClearAllFieldValues unloads every field except the id of a record that
// exists in the database.
func (r *Record) ClearAllFieldValues() {
	if r.schema == nil {
		return
	}
	for _, f := range r.schema.Fields() {
		if r.persisted && r.isID(f) {
			continue
		}
		r.clear(f)
	}
}

func (r *Record) clear(f Field) {
	r.values[f.Index()] = nil
	r.initialized &^= bit(f)
	r.modified &^= bit(f)
}

// SetModified(true) marks every loaded field except the id as modified so
// the next save writes them all. SetModified(false) forgets all changes.
func (r *Record) SetModified(modified bool) {
	if !modified {
		r.modified = 0
		return
	}
	r.modified = r.initialized
	if r.schema == nil {
		return
	}
	if id := r.schema.IDField(); id != nil {
		r.modified &^= bit(id)
	}
}

func (r *Record) IsModified() bool { return r.modified != 0 }

func (r *Record) IsFieldInitialized(f Field) bool { return r.initialized&bit(f) != 0 }

func (r *Record) IsFieldModified(f Field) bool { return r.modified&bit(f) != 0 }

// IsNew reports whether the record has not been saved or loaded yet.
func (r *Record) IsNew() bool { return !r.persisted }

func (r *Record) IsAttached() bool { return r.session != nil }

func (r *Record) Session() *Session { return r.session }

// ID returns the id value, or "" when the schema has no id or the id is not
// set.
func (r *Record) ID() string {
	if r.schema == nil {
		return ""
	}
	id := r.schema.IDField()
	if id == nil {
		return ""
	}
	v, _ := r.values[id.Index()].(string)
	return v
}

// Attach moves the record to s. A record that exists in the database is
// installed in the identity map of s, displacing any previous occupant.
func (r *Record) Attach(s *Session) error {
	if r.session == s {
		return nil
	}
	if s == nil {
		r.Detach()
		return nil
	}
	if err := r.checkBound(); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}
	r.Detach()
	r.session = s
	if r.persisted {
		s.addToCache(r)
	}
	return nil
}

// Detach removes the record from its session.
func (r *Record) Detach() {
	if r.session == nil {
		return
	}
	if r.persisted {
		r.session.removeFromCache(r)
	}
	r.session = nil
}

// Fetch loads the given fields that are not loaded yet, or the auto fetched
// ones when no field is given.
func (r *Record) Fetch(fields ...Field) error {
	if err := r.checkAttached(); err != nil {
		return err
	}
	return r.session.Fetch(r.self, fields...)
}

func (r *Record) FetchField(f Field) error {
	if err := r.checkAttached(); err != nil {
		return err
	}
	return r.session.FetchField(r.self, f)
}

func (r *Record) FetchAutoFetched() error {
	if err := r.checkBound(); err != nil {
		return err
	}
	return r.Fetch(r.schema.AutoFetchedFields()...)
}

// Save writes the record through its session.
func (r *Record) Save() error {
	if err := r.checkAttached(); err != nil {
		return err
	}
	return r.session.Save(r.self)
}

// Delete removes the row of the record and reports whether it existed.
func (r *Record) Delete() (bool, error) {
	if err := r.checkAttached(); err != nil {
		return false, err
	}
	if err := r.checkNotNew(); err != nil {
		return false, err
	}
	return r.session.Delete(r.schema, r.ID())
}

func (r *Record) String() string {
	if r.schema == nil {
		return "[UNBOUND]"
	}
	id := r.schema.IDField()
	if id == nil || !r.IsFieldInitialized(id) {
		return r.schema.TableName() + ":[NEW]"
	}
	return r.schema.TableName() + ":" + r.ID()
}

func (r *Record) checkAttached() error {
	if err := r.checkBound(); err != nil {
		return err
	}
	if r.session == nil {
		return illegalState("record %s must be attached to a session", r)
	}
	return nil
}

func (r *Record) checkNotNew() error {
	if !r.persisted {
		return illegalState("record %s must not be new", r)
	}
	return nil
}
