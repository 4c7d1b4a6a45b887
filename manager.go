package zorm

import (
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"
)

var sessionIDs atomic.Int64

func nextSessionID() int64 {
	return sessionIDs.Add(1)
}

// Manager opens sessions over connections produced by a ConnFactory and
// holds the defaults they start with.
type Manager struct {
	factory                  ConnFactory
	autoFetchingFieldsOnRead bool
	logger                   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithAutoFetchingFieldsOnRead sets the default of
// Session.AutoFetchingFieldsOnRead for new sessions.
func WithAutoFetchingFieldsOnRead(v bool) Option {
	return func(m *Manager) { m.autoFetchingFieldsOnRead = v }
}

// WithLogger sets the logger used by sessions. The default is
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(factory ConnFactory, opts ...Option) *Manager {
	m := &Manager{factory: factory, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManagerFromConfig opens the database described by cfg and returns a
// manager over it.
func NewManagerFromConfig(cfg *Config) (*Manager, error) {
	factory, err := cfg.Open()
	if err != nil {
		return nil, err
	}
	return NewManager(factory,
		WithAutoFetchingFieldsOnRead(cfg.AutoFetchingFieldsOnRead),
		WithLogger(cfg.Logger()),
	), nil
}

// Conn opens a new connection.
func (m *Manager) Conn() (Conn, error) {
	if m.factory == nil {
		return nil, illegalState("manager has no connection factory")
	}
	conn, err := m.factory.Open()
	if err != nil {
		return nil, errors.Wrap(err, "open connection")
	}
	return conn, nil
}

func (m *Manager) Logger() *slog.Logger { return m.logger }

func (m *Manager) AutoFetchingFieldsOnRead() bool { return m.autoFetchingFieldsOnRead }

// NewSession returns a session that opens its connection on first use.
func (m *Manager) NewSession() *Session {
	return newSession(m, nil)
}

// NewSessionWithConn returns a session over conn. The session closes conn.
func (m *Manager) NewSessionWithConn(conn Conn) *Session {
	return newSession(m, conn)
}
