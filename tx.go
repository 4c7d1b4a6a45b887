package zorm

// Tx runs fn within the session transaction. When fn returns an error the
// transaction is rolled back; otherwise every cached record is saved and
// the transaction committed.
// It returns ErrNoTxSupport when the connection is in auto-commit mode.
func (s *Session) Tx(fn func(s *Session) error) error {
	conn, err := s.Conn()
	if err != nil {
		return err
	}
	if conn.AutoCommit() {
		return ErrNoTxSupport
	}

	if err := fn(s); err != nil {
		if rerr := s.Rollback(); rerr != nil {
			s.logger.Error("rollback failed", "session", s.ID(), "err", rerr)
		}
		return err
	}

	if err := s.SaveAllAndCommit(); err != nil {
		if rerr := s.Rollback(); rerr != nil {
			s.logger.Error("rollback failed", "session", s.ID(), "err", rerr)
		}
		return err
	}
	return nil
}
