package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nightwatch-dev/nightwatch/internal/nighterrors"
)

// maxSummaryRunes bounds the stored textual summary of a captured message.
const maxSummaryRunes = 500

// CapturedMessage is a reference to a message recorded during an open
// session, retained until the purge executor deletes it.
type CapturedMessage struct {
	ID         string
	SessionID  string
	ChatID     int64
	MessageID  int64
	SenderID   int64
	Kind       string
	Summary    string
	CapturedAt int64
}

// AppendMessage records a captured message against a session. The summary is
// truncated to a bounded length before storage. Re-capturing the same
// (chat, message) pair is a silent no-op. The insert is guarded on the
// session still being open; a reader that saw the session before it closed
// gets ErrSessionClosed instead of leaving a row the purge executor will
// never visit.
func (s *Store) AppendMessage(m *CapturedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CapturedAt == 0 {
		m.CapturedAt = time.Now().UnixMilli()
	}
	if r := []rune(m.Summary); len(r) > maxSummaryRunes {
		m.Summary = string(r[:maxSummaryRunes])
	}

	query := `
	INSERT OR IGNORE INTO captured_messages (id, session_id, chat_id, message_id, sender_id, kind, summary, captured_at)
	SELECT ?, ?, ?, ?, ?, ?, ?, ?
	WHERE EXISTS (SELECT 1 FROM quiet_sessions WHERE session_id = ? AND closed = 0)
	`

	res, err := s.db.Exec(query,
		m.ID, m.SessionID, m.ChatID, m.MessageID, m.SenderID, m.Kind, m.Summary, m.CapturedAt,
		m.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to append captured message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to append captured message: %w", err)
	}
	if n == 0 {
		// Either a duplicate capture or the session closed under us.
		var dup int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM captured_messages WHERE session_id = ? AND chat_id = ? AND message_id = ?`,
			m.SessionID, m.ChatID, m.MessageID).Scan(&dup)
		if err != nil {
			return fmt.Errorf("failed to append captured message: %w", err)
		}
		if dup == 0 {
			return fmt.Errorf("session %s: %w", m.SessionID, nighterrors.ErrSessionClosed)
		}
	}
	return nil
}

// MessagesForSession returns all captured messages for a session in insertion
// order.
func (s *Store) MessagesForSession(sessionID string) ([]CapturedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, session_id, chat_id, message_id, sender_id, kind, summary, captured_at
		FROM captured_messages WHERE session_id = ? ORDER BY captured_at, message_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list captured messages: %w", err)
	}
	defer rows.Close()

	var msgs []CapturedMessage
	for rows.Next() {
		var m CapturedMessage
		if err := rows.Scan(&m.ID, &m.SessionID, &m.ChatID, &m.MessageID, &m.SenderID,
			&m.Kind, &m.Summary, &m.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan captured message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountForSession returns the number of captured messages for a session.
func (s *Store) CountForSession(sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM captured_messages WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count captured messages: %w", err)
	}
	return n, nil
}

// DeleteMessagesForSession removes all retained rows for a session. The purge
// executor is the only caller; the store never expires entries on its own.
func (s *Store) DeleteMessagesForSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM captured_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete captured messages: %w", err)
	}
	return nil
}
