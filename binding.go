package zorm

import (
	"context"
)

// Binding holds the current session of one goroutine or request. Opening a
// new session closes the previous one.
type Binding struct {
	manager *Manager
	session *Session
}

func NewBinding(m *Manager) *Binding {
	return &Binding{manager: m}
}

func (b *Binding) NewSession() (*Session, error) {
	return b.bind(b.manager.NewSession())
}

func (b *Binding) NewSessionWithConn(conn Conn) (*Session, error) {
	return b.bind(b.manager.NewSessionWithConn(conn))
}

func (b *Binding) bind(s *Session) (*Session, error) {
	if err := b.CloseSession(); err != nil {
		s.Close()
		return nil, err
	}
	b.session = s
	return s, nil
}

// Session returns the bound session, or nil.
func (b *Binding) Session() *Session { return b.session }

// CloseSession closes and unbinds the current session.
func (b *Binding) CloseSession() error {
	if b.session == nil {
		return nil
	}
	s := b.session
	b.session = nil
	return s.Close()
}

type sessionKey struct{}

// ContextWithSession returns a copy of ctx carrying s.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session carried by ctx.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
