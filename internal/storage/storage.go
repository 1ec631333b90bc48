package storage

import (
	"database/sql"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// Storage keeps per-chat configuration in SQLite
type Storage struct {
	db  *sql.DB
	log *slog.Logger

	defaultDeleteSeconds int
}

// New creates a new Storage instance and initializes the database.
// defaultDeleteSeconds is returned for chats without their own override.
func New(dbPath string, defaultDeleteSeconds int, log *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = slog.Default()
	}

	s := &Storage{db: db, log: log, defaultDeleteSeconds: max(0, defaultDeleteSeconds)}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS chat_settings (
			chat_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (chat_id, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_settings_key ON chat_settings(key)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Generic settings ---

// Get returns a raw setting value
func (s *Storage) Get(chatID int64, key string) (string, error) {
	var value string
	err := s.db.QueryRow(
		"SELECT value FROM chat_settings WHERE chat_id = ? AND key = ?",
		chatID, key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores a raw setting value
func (s *Storage) Set(chatID int64, key, value string) error {
	now := time.Now().Unix()
	_, err := s.db.Exec(
		`INSERT INTO chat_settings (chat_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(chat_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		chatID, key, value, now,
	)
	return err
}

// Delete removes a setting so the default applies again
func (s *Storage) Delete(chatID int64, key string) error {
	_, err := s.db.Exec(
		"DELETE FROM chat_settings WHERE chat_id = ? AND key = ?",
		chatID, key,
	)
	return err
}

// --- Templates ---

// LoadWelcomeText returns the chat's welcome template or the default one
func (s *Storage) LoadWelcomeText(chatID int64) string {
	return s.loadText(chatID, KeyWelcomeText, DefaultWelcome)
}

// SaveWelcomeText stores a trimmed welcome template
func (s *Storage) SaveWelcomeText(chatID int64, text string) error {
	return s.Set(chatID, KeyWelcomeText, strings.TrimSpace(text))
}

// ResetWelcomeText restores the default welcome template
func (s *Storage) ResetWelcomeText(chatID int64) error {
	return s.Delete(chatID, KeyWelcomeText)
}

// LoadRegistrationText returns the chat's registration template or the default one
func (s *Storage) LoadRegistrationText(chatID int64) string {
	return s.loadText(chatID, KeyRegistrationText, DefaultRegistration)
}

// SaveRegistrationText stores a trimmed registration template
func (s *Storage) SaveRegistrationText(chatID int64, text string) error {
	return s.Set(chatID, KeyRegistrationText, strings.TrimSpace(text))
}

// ResetRegistrationText restores the default registration template
func (s *Storage) ResetRegistrationText(chatID int64) error {
	return s.Delete(chatID, KeyRegistrationText)
}

func (s *Storage) loadText(chatID int64, key, fallback string) string {
	value, err := s.Get(chatID, key)
	if err != nil {
		if err != ErrNotFound {
			s.log.Error("load setting", "chat_id", chatID, "key", key, "error", err)
		}
		return fallback
	}
	if value = strings.TrimSpace(value); value == "" {
		return fallback
	}
	return value
}

// --- Numeric settings ---

// DefaultDeleteSeconds returns the global welcome auto-delete delay
func (s *Storage) DefaultDeleteSeconds() int {
	return s.defaultDeleteSeconds
}

// LoadDeleteSeconds returns the effective welcome auto-delete delay for a chat
func (s *Storage) LoadDeleteSeconds(chatID int64) int {
	return s.loadInt(chatID, KeyDeleteSeconds, s.defaultDeleteSeconds)
}

// SaveDeleteSeconds overrides the welcome auto-delete delay for a chat
func (s *Storage) SaveDeleteSeconds(chatID int64, seconds int) error {
	return s.Set(chatID, KeyDeleteSeconds, strconv.Itoa(max(0, seconds)))
}

// ResetDeleteSeconds drops the chat override so the global default applies
func (s *Storage) ResetDeleteSeconds(chatID int64) error {
	return s.Delete(chatID, KeyDeleteSeconds)
}

// LoadAutoCleanHours returns the auto-clean interval for a chat (0 = disabled)
func (s *Storage) LoadAutoCleanHours(chatID int64) int {
	return s.loadInt(chatID, KeyAutoCleanHours, 0)
}

// SaveAutoCleanHours stores the auto-clean interval for a chat
func (s *Storage) SaveAutoCleanHours(chatID int64, hours int) error {
	return s.Set(chatID, KeyAutoCleanHours, strconv.Itoa(max(0, hours)))
}

// ListAutoClean returns every chat with a positive auto-clean interval
func (s *Storage) ListAutoClean() ([]AutoCleanConfig, error) {
	rows, err := s.db.Query(
		"SELECT chat_id, value FROM chat_settings WHERE key = ? ORDER BY chat_id",
		KeyAutoCleanHours,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []AutoCleanConfig
	for rows.Next() {
		var chatID int64
		var raw string
		if err := rows.Scan(&chatID, &raw); err != nil {
			return nil, err
		}

		hours, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			s.log.Warn("malformed auto-clean setting", "chat_id", chatID, "value", raw)
			continue
		}
		if hours > 0 {
			configs = append(configs, AutoCleanConfig{ChatID: chatID, IntervalHours: hours})
		}
	}

	return configs, rows.Err()
}

// loadInt parses a numeric setting. Missing, malformed and negative values
// fall back to defaultVal.
func (s *Storage) loadInt(chatID int64, key string, defaultVal int) int {
	raw, err := s.Get(chatID, key)
	if err != nil {
		if err != ErrNotFound {
			s.log.Error("load setting", "chat_id", chatID, "key", key, "error", err)
		}
		return defaultVal
	}

	val, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		s.log.Warn("malformed setting, using default",
			"chat_id", chatID,
			"key", key,
			"value", raw,
			"default", defaultVal,
		)
		return defaultVal
	}
	return max(0, val)
}
