package store

import (
	"fmt"
)

func (s *Store) migrate() error {
	return s.migrateV1()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_settings (
		chat_id           INTEGER PRIMARY KEY,
		title             TEXT NOT NULL DEFAULT '',
		enabled           INTEGER NOT NULL DEFAULT 0,
		start_time        TEXT NOT NULL,
		end_time          TEXT NOT NULL,
		notify_text       TEXT NOT NULL DEFAULT '',
		tracked           INTEGER NOT NULL DEFAULT 1,
		quiet_active      INTEGER NOT NULL DEFAULT 0,
		added_at          INTEGER NOT NULL,
		last_notified_day TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_chats_enabled ON chat_settings(enabled) WHERE tracked = 1;

	CREATE TABLE IF NOT EXISTS quiet_sessions (
		session_id      TEXT PRIMARY KEY,
		chat_id         INTEGER NOT NULL REFERENCES chat_settings(chat_id),
		opened_at       INTEGER NOT NULL,
		scheduled_close TEXT NOT NULL,
		closed          INTEGER NOT NULL DEFAULT 0,
		message_count   INTEGER NOT NULL DEFAULT 0,
		completed_at    INTEGER
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_open ON quiet_sessions(chat_id) WHERE closed = 0;
	CREATE INDEX IF NOT EXISTS idx_sessions_chat ON quiet_sessions(chat_id, opened_at);

	CREATE TABLE IF NOT EXISTS captured_messages (
		id          TEXT PRIMARY KEY,
		session_id  TEXT NOT NULL REFERENCES quiet_sessions(session_id),
		chat_id     INTEGER NOT NULL,
		message_id  INTEGER NOT NULL,
		sender_id   INTEGER NOT NULL,
		kind        TEXT NOT NULL DEFAULT 'text',
		summary     TEXT NOT NULL DEFAULT '',
		captured_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_captured_session ON captured_messages(session_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_captured_identity ON captured_messages(chat_id, message_id);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}

	return nil
}
