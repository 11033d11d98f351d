package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nightwatch-dev/nightwatch/internal/nighterrors"
)

// Session is one quiet-hours occurrence for one chat, bounded by an open and
// a close.
type Session struct {
	SessionID      string
	ChatID         int64
	OpenedAt       int64
	ScheduledClose string // "HH:MM" end-of-window time-of-day
	Closed         bool
	MessageCount   int
	CompletedAt    int64
}

// OpenSession opens a new session for a chat and marks the chat quiet-active
// in the same transaction. The session id is chosen by the caller and must be
// stable across restarts. Returns ErrAlreadyOpen if a non-closed session
// exists for the chat; callers treat that as a no-op.
func (s *Store) OpenSession(chatID int64, sessionID, scheduledClose string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin open-session tx: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow(`SELECT session_id FROM quiet_sessions WHERE chat_id = ? AND closed = 0`, chatID).Scan(&existing)
	if err == nil {
		return nil, nighterrors.ErrAlreadyOpen
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check open session: %w", err)
	}

	sess := &Session{
		SessionID:      sessionID,
		ChatID:         chatID,
		OpenedAt:       time.Now().UnixMilli(),
		ScheduledClose: scheduledClose,
	}

	_, err = tx.Exec(`
		INSERT INTO quiet_sessions (session_id, chat_id, opened_at, scheduled_close, closed)
		VALUES (?, ?, ?, ?, 0)`,
		sess.SessionID, sess.ChatID, sess.OpenedAt, sess.ScheduledClose,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	// quiet_active and "an open session exists" are one fact stored twice;
	// they only ever change inside the same transaction.
	if _, err := tx.Exec(`UPDATE chat_settings SET quiet_active = 1 WHERE chat_id = ?`, chatID); err != nil {
		return nil, fmt.Errorf("failed to mark chat quiet-active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit open-session tx: %w", err)
	}
	return sess, nil
}

// CurrentOpenSession returns the chat's open session, or (nil, nil) when no
// session is open.
func (s *Store) CurrentOpenSession(chatID int64) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := &Session{}
	var completedAt sql.NullInt64

	err := s.db.QueryRow(`
		SELECT session_id, chat_id, opened_at, scheduled_close, closed, message_count, completed_at
		FROM quiet_sessions WHERE chat_id = ? AND closed = 0`, chatID).Scan(
		&sess.SessionID, &sess.ChatID, &sess.OpenedAt, &sess.ScheduledClose,
		&sess.Closed, &sess.MessageCount, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open session: %w", err)
	}
	sess.CompletedAt = completedAt.Int64
	return sess, nil
}

// GetSession retrieves a session by id. Returns ErrNotFound for unknown ids.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := &Session{}
	var completedAt sql.NullInt64

	err := s.db.QueryRow(`
		SELECT session_id, chat_id, opened_at, scheduled_close, closed, message_count, completed_at
		FROM quiet_sessions WHERE session_id = ?`, sessionID).Scan(
		&sess.SessionID, &sess.ChatID, &sess.OpenedAt, &sess.ScheduledClose,
		&sess.Closed, &sess.MessageCount, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nighterrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	sess.CompletedAt = completedAt.Int64
	return sess, nil
}

// CloseSession marks a session closed with its final message count and clears
// the chat's quiet-active flag in the same transaction. Closing an
// already-closed session returns ErrAlreadyClosed; callers treat that as a
// no-op.
func (s *Store) CloseSession(sessionID string, messageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin close-session tx: %w", err)
	}
	defer tx.Rollback()

	var chatID int64
	var closed bool
	err = tx.QueryRow(`SELECT chat_id, closed FROM quiet_sessions WHERE session_id = ?`, sessionID).Scan(&chatID, &closed)
	if errors.Is(err, sql.ErrNoRows) {
		return nighterrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up session: %w", err)
	}
	if closed {
		return nighterrors.ErrAlreadyClosed
	}

	_, err = tx.Exec(`
		UPDATE quiet_sessions SET closed = 1, message_count = ?, completed_at = ?
		WHERE session_id = ?`,
		messageCount, time.Now().UnixMilli(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	if _, err := tx.Exec(`UPDATE chat_settings SET quiet_active = 0 WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("failed to clear quiet-active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit close-session tx: %w", err)
	}
	return nil
}

// CountOpenSessions returns the number of open sessions across all chats.
// Used for the active-sessions gauge.
func (s *Store) CountOpenSessions() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM quiet_sessions WHERE closed = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count open sessions: %w", err)
	}
	return n, nil
}
