package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nightwatch-dev/nightwatch/internal/nighterrors"
)

// ChatConfig is a chat's quiet-hours configuration.
type ChatConfig struct {
	ChatID      int64
	Title       string
	Enabled     bool
	StartTime   string // "HH:MM", 24h
	EndTime     string // "HH:MM", 24h
	NotifyText  string
	Tracked     bool
	QuietActive bool
	AddedAt     int64
}

// ValidateWindow checks a quiet-hours window. Times are "HH:MM" 24h at minute
// granularity; start == end is degenerate and rejected. Windows crossing
// midnight (start > end) are valid.
func ValidateWindow(start, end string) error {
	for _, tod := range []string{start, end} {
		if _, err := time.Parse("15:04", tod); err != nil {
			return fmt.Errorf("%w: bad time %q, want HH:MM", nighterrors.ErrInvalidWindow, tod)
		}
	}
	if start == end {
		return fmt.Errorf("%w: start and end are both %q", nighterrors.ErrInvalidWindow, start)
	}
	return nil
}

// UpsertChat registers a chat or updates its title. New chats get the given
// window and notification text; existing chats keep their settings.
func (s *Store) UpsertChat(chatID int64, title, startTime, endTime, notifyText string) error {
	if err := ValidateWindow(startTime, endTime); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO chat_settings (chat_id, title, start_time, end_time, notify_text, tracked, added_at)
	VALUES (?, ?, ?, ?, ?, 1, ?)
	ON CONFLICT(chat_id) DO UPDATE SET title = excluded.title, tracked = 1
	`

	_, err := s.db.Exec(query, chatID, title, startTime, endTime, notifyText, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert chat %d: %w", chatID, err)
	}
	return nil
}

// GetChat retrieves a chat's configuration. Returns ErrNotFound for unknown
// chats.
func (s *Store) GetChat(chatID int64) (*ChatConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanChat(s.db.QueryRow(chatQuery+` WHERE chat_id = ?`, chatID))
}

const chatQuery = `
	SELECT chat_id, title, enabled, start_time, end_time, notify_text, tracked, quiet_active, added_at
	FROM chat_settings`

func (s *Store) scanChat(row *sql.Row) (*ChatConfig, error) {
	c := &ChatConfig{}
	err := row.Scan(&c.ChatID, &c.Title, &c.Enabled, &c.StartTime, &c.EndTime,
		&c.NotifyText, &c.Tracked, &c.QuietActive, &c.AddedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nighterrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return c, nil
}

// SetEnabled toggles quiet-hours for a chat.
func (s *Store) SetEnabled(chatID int64, enabled bool) error {
	return s.updateChat(chatID, `UPDATE chat_settings SET enabled = ? WHERE chat_id = ?`, enabled, chatID)
}

// SetWindow updates a chat's quiet-hours window. Invalid windows are rejected
// and never stored.
func (s *Store) SetWindow(chatID int64, start, end string) error {
	if err := ValidateWindow(start, end); err != nil {
		return err
	}
	return s.updateChat(chatID, `UPDATE chat_settings SET start_time = ?, end_time = ? WHERE chat_id = ?`, start, end, chatID)
}

// SetNotifyText updates the window-open notification text.
func (s *Store) SetNotifyText(chatID int64, text string) error {
	return s.updateChat(chatID, `UPDATE chat_settings SET notify_text = ? WHERE chat_id = ?`, text, chatID)
}

// MarkNotified records the day ("YYYY-MM-DD") an open notification was
// delivered for the chat.
func (s *Store) MarkNotified(chatID int64, day string) error {
	return s.updateChat(chatID, `UPDATE chat_settings SET last_notified_day = ? WHERE chat_id = ?`, day, chatID)
}

// SetTitle updates the stored chat title.
func (s *Store) SetTitle(chatID int64, title string) error {
	return s.updateChat(chatID, `UPDATE chat_settings SET title = ? WHERE chat_id = ?`, title, chatID)
}

func (s *Store) updateChat(chatID int64, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update chat %d: %w", chatID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return nighterrors.ErrNotFound
	}
	return nil
}

// ListEnabledChats returns all tracked chats with quiet-hours enabled.
func (s *Store) ListEnabledChats() ([]ChatConfig, error) {
	return s.listChats(chatQuery + ` WHERE enabled = 1 AND tracked = 1`)
}

// ListChats returns all tracked chats.
func (s *Store) ListChats() ([]ChatConfig, error) {
	return s.listChats(chatQuery + ` WHERE tracked = 1 ORDER BY added_at`)
}

func (s *Store) listChats(query string) ([]ChatConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []ChatConfig
	for rows.Next() {
		var c ChatConfig
		if err := rows.Scan(&c.ChatID, &c.Title, &c.Enabled, &c.StartTime, &c.EndTime,
			&c.NotifyText, &c.Tracked, &c.QuietActive, &c.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}
